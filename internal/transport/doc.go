// Package transport implements the Transport Connection component.
//
// A Conn owns one WebSocket per logical namespace and:
//   - Runs the disconnected → connecting → connected lifecycle, with a
//     terminal failed state after exhausting reconnection attempts
//   - Sends application-level ping frames and force-reconnects on a missed pong
//   - Reconnects with exponential backoff after transient errors
//   - Surfaces connection errors as observable state, never panics or throws
package transport
