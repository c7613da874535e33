package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/foodsquare/orderlive/internal/metrics"
)

// Conn is one logical connection. It is reusable: Connect/Disconnect may be
// called repeatedly as demand comes and goes.
type Conn struct {
	cfg       Config
	logger    *slog.Logger
	sessionID string

	// Write serialization
	writeMu sync.Mutex

	mu       sync.Mutex
	state    State
	ws       *websocket.Conn
	err      error // Surfaced error state; nil unless failed or server-closed
	attempts int
	lastPong time.Time
	gen      uint64 // Connection generation; stale goroutines and timers bail out
	retry    *time.Timer

	frames chan Frame

	listenerMu sync.Mutex
	listenerID int64
	listeners  map[int64]func(State)
}

// NewConn creates a connection in the disconnected state.
func NewConn(cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:       cfg,
		logger:    logger.With("namespace", cfg.Namespace),
		sessionID: uuid.NewString(),
		state:     StateDisconnected,
		frames:    make(chan Frame, cfg.BufferSize),
		listeners: make(map[int64]func(State)),
	}
}

// SessionID identifies this connection instance across reconnects.
func (c *Conn) SessionID() string { return c.sessionID }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the surfaced error state, nil while healthy or retrying.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Attempts returns the current failed-attempt count.
func (c *Conn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LastLiveness returns the time of the last successful liveness signal.
func (c *Conn) LastLiveness() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong
}

// Frames returns the inbound frame channel. Pong frames are consumed
// internally and never appear here. The channel is never closed; consumers
// select against their own done signal.
func (c *Conn) Frames() <-chan Frame {
	return c.frames
}

// OnState registers a listener invoked on every state transition. The
// returned subscription unregisters it.
func (c *Conn) OnState(fn func(State)) *Subscription {
	c.listenerMu.Lock()
	c.listenerID++
	id := c.listenerID
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return NewSubscription(func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	})
}

func (c *Conn) notify(s State) {
	metrics.ConnectionState.WithLabelValues(c.cfg.Namespace).Set(stateValue(s))

	c.listenerMu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func stateValue(s State) float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateFailed:
		return -1
	}
	return 0
}

// Connect establishes the connection. No-op unless currently disconnected;
// in the failed state it returns the terminal error instead. A dial failure
// is returned to the caller and also schedules an automatic retry.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	case StateFailed:
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notify(StateConnecting)

	return c.dial(ctx)
}

// dial performs one connection attempt from the connecting state.
func (c *Conn) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	header.Set("X-Namespace", c.cfg.Namespace)
	header.Set("X-Session-Id", c.sessionID)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.logger.Warn("connect failed", "error", err, "attempt", c.Attempts())
		c.scheduleRetry()
		return err
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.ws = ws
	c.state = StateConnected
	c.err = nil
	c.attempts = 0
	c.lastPong = time.Now()
	c.mu.Unlock()

	go c.readLoop(ws, gen)
	go c.heartbeatLoop(ws, gen)

	c.logger.Debug("connected", "url", c.cfg.URL)
	c.notify(StateConnected)
	return nil
}

// Disconnect tears the connection down: cancels pending timers, closes the
// socket, and returns to disconnected. Idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected && c.ws == nil && c.retry == nil {
		c.mu.Unlock()
		return
	}
	c.stopRetryLocked()
	c.gen++
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.err = nil
	c.attempts = 0
	c.mu.Unlock()

	if ws != nil {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.Close()
	}

	c.logger.Debug("disconnected")
	c.notify(StateDisconnected)
}

// Recover resets a failed or stuck connection and attempts one fresh connect.
// Used by the recovery registry's force-recovery path.
func (c *Conn) Recover(ctx context.Context) error {
	c.mu.Lock()
	c.stopRetryLocked()
	c.gen++
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.err = nil
	c.attempts = 0
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	return c.Connect(ctx)
}

// Send writes a frame. Returns ErrNotConnected when the connection is down.
func (c *Conn) Send(f Frame) error {
	c.mu.Lock()
	if c.state != StateConnected || c.ws == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return ws.WriteJSON(f)
}

// stopRetryLocked cancels a pending reconnect timer. Caller holds c.mu.
func (c *Conn) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// scheduleRetry arranges the next reconnection attempt per the backoff
// policy, or transitions to the terminal failed state.
func (c *Conn) scheduleRetry() {
	c.mu.Lock()
	c.stopRetryLocked()

	if c.attempts >= c.cfg.MaxAttempts {
		c.state = StateFailed
		c.err = ErrRetriesExhausted
		c.mu.Unlock()

		c.logger.Error("reconnection attempts exhausted", "max_attempts", c.cfg.MaxAttempts)
		c.notify(StateFailed)
		return
	}

	delay := Backoff(c.attempts, c.cfg.ReconnectBase, c.cfg.ReconnectMax)
	c.attempts++
	c.state = StateDisconnected
	gen := c.gen
	c.retry = time.AfterFunc(delay, func() {
		c.retryConnect(gen)
	})
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Info("reconnection scheduled", "attempt", attempt, "delay", delay)
	c.notify(StateDisconnected)
}

// retryConnect runs a scheduled reconnection attempt.
func (c *Conn) retryConnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateDisconnected {
		// Torn down or reconnected by other means while we waited.
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.state = StateConnecting
	c.mu.Unlock()
	c.notify(StateConnecting)

	metrics.Reconnects.WithLabelValues(c.cfg.Namespace).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()
	c.dial(ctx)
}

// dropConnection closes the socket after a transport-level failure and
// re-enters the reconnection path. fresh restarts the backoff ladder at
// attempt 0 (heartbeat timeouts are treated as brand-new disconnects).
func (c *Conn) dropConnection(gen uint64, cause error, fresh bool) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	ws := c.ws
	c.ws = nil
	if fresh {
		c.attempts = 0
	}
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}

	c.logger.Warn("connection dropped", "error", cause)
	c.scheduleRetry()
}

// serverClosed marks a server-initiated close: surfaced immediately, no
// automatic retry.
func (c *Conn) serverClosed(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.err = ErrServerDisconnect
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}

	c.logger.Warn("server closed the connection")
	c.notify(StateDisconnected)
}

// readLoop decodes inbound frames until the socket dies. Pongs refresh the
// liveness clock and are swallowed; everything else goes to the frame channel.
func (c *Conn) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			stale := c.gen != gen
			c.mu.Unlock()
			if stale {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.ClosePolicyViolation) {
				c.serverClosed(gen)
			} else {
				c.dropConnection(gen, err, false)
			}
			return
		}

		if f.Event == EventPong {
			c.mu.Lock()
			if c.gen == gen {
				c.lastPong = time.Now()
			}
			c.mu.Unlock()
			continue
		}

		select {
		case c.frames <- f:
		default:
			c.logger.Warn("frame buffer full, dropping", "event", f.Event)
		}
	}
}

// heartbeatLoop sends a ping every interval and verifies the pong arrives
// within the timeout window. A missed pong force-closes the socket and
// reconnects immediately at attempt 0.
func (c *Conn) heartbeatLoop(ws *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		sentAt := time.Now()
		if err := c.Send(Frame{Event: EventPing}); err != nil {
			// Socket already dead; the read loop handles the failure.
			return
		}

		time.AfterFunc(c.cfg.HeartbeatTimeout, func() {
			c.mu.Lock()
			missed := c.gen == gen && c.lastPong.Before(sentAt)
			c.mu.Unlock()
			if missed {
				metrics.HeartbeatTimeouts.WithLabelValues(c.cfg.Namespace).Inc()
				c.dropConnection(gen, ErrHeartbeatTimeout, true)
			}
		})
	}
}
