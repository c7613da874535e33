// Package watch orchestrates one live order view: it owns the transport
// connection, the room membership manager, and the event reducer for a
// namespace, and drives connect/disconnect from the demand evaluator.
//
// The watcher:
//   - Seeds aggregate state from the REST snapshot before going live
//   - Connects only while at least one tracked order is still in flight
//   - Replays room membership after every reconnect and resyncs snapshots
//   - Folds inbound events into aggregates and notifies subscribers
//   - Registers itself with the recovery registry while running
package watch
