package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState tracks the lifecycle state per namespace:
	// -1 failed, 0 disconnected, 1 connecting, 2 connected.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orderlive_connection_state",
		Help: "Connection lifecycle state (-1 failed, 0 disconnected, 1 connecting, 2 connected).",
	}, []string{"namespace"})

	// Reconnects counts automatic reconnection attempts.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderlive_reconnects_total",
		Help: "Automatic reconnection attempts.",
	}, []string{"namespace"})

	// HeartbeatTimeouts counts missed pongs that forced a reconnect.
	HeartbeatTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderlive_heartbeat_timeouts_total",
		Help: "Heartbeat pongs that did not arrive within the timeout window.",
	}, []string{"namespace"})

	// RoomsJoined counts acknowledged room joins, including reconnect replays.
	RoomsJoined = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderlive_rooms_joined_total",
		Help: "Acknowledged room joins.",
	}, []string{"kind"})

	// DeltasApplied counts status deltas merged into an aggregate.
	DeltasApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderlive_deltas_applied_total",
		Help: "Inbound events merged into aggregate state.",
	}, []string{"event"})

	// DeltasDropped counts events dropped for untracked targets.
	DeltasDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderlive_deltas_dropped_total",
		Help: "Inbound events dropped (untracked order or vendor, stale merge).",
	}, []string{"event"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
