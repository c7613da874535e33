package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrTimeout          = errors.New("operation timeout")
	ErrServerDisconnect = errors.New("server disconnected the connection")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout (no pong)")
	ErrRetriesExhausted = errors.New("reconnection attempts exhausted")
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed" // Terminal; requires manual recovery
)

// Frame is one message on the wire, in either direction. Control frames
// (joins, acks, ping/pong) and data events share the envelope.
type Frame struct {
	Event string          `json:"event"`
	ID    int64           `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Liveness event names.
const (
	EventPing = "ping"
	EventPong = "pong"
)

// Config configures a Conn.
type Config struct {
	URL       string // WebSocket URL (e.g., wss://api.foodsquare.app/live)
	Namespace string // Logical channel group: "customer" or "vendor"
	Token     string // Bearer token supplied by the API layer

	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration // How often to send a ping while connected
	HeartbeatTimeout  time.Duration // Max wait for the matching pong
	ReconnectBase     time.Duration // First backoff delay
	ReconnectMax      time.Duration // Backoff cap
	MaxAttempts       int           // Failed attempts before the terminal failed state
	BufferSize        int           // Inbound frame channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		ReconnectBase:     1 * time.Second,
		ReconnectMax:      30 * time.Second,
		MaxAttempts:       10,
		BufferSize:        256,
	}
}

// Backoff returns the reconnection delay for the given attempt number:
// min(base * 2^attempt, max). Attempt numbering starts at 0.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// Subscription is a handle to a registered listener. Unsubscribe is
// idempotent and safe to call from any goroutine.
type Subscription struct {
	cancel func()
}

// NewSubscription wraps a cancel function into a subscription handle.
func NewSubscription(cancel func()) *Subscription {
	var once sync.Once
	return &Subscription{cancel: func() { once.Do(cancel) }}
}

// Unsubscribe removes the listener.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}
