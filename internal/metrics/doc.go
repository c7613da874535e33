// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection lifecycle state and reconnect counts per namespace
//   - Heartbeat timeouts
//   - Room join replays
//   - Delta merge and drop rates
package metrics
