// Package poller implements the degraded-mode snapshot poller.
//
// The poller:
//   - Re-fetches tracked order snapshots over REST on a fixed interval
//   - Covers for the live connection while it is down or failed
//   - Uses concurrent requests with bounded concurrency
package poller
