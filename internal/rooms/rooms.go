// Package rooms implements the Room Membership Manager.
//
// The manager tracks which rooms the connection intends to be joined to and
// replays the full set after every reconnect, because the transport does not
// preserve room membership across connections. Joins are acknowledged by the
// server; leaves are fire-and-forget.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foodsquare/orderlive/internal/metrics"
	"github.com/foodsquare/orderlive/internal/transport"
)

// Kind identifies the room namespace a room id lives in.
type Kind string

const (
	KindUser   Kind = "user"
	KindOrder  Kind = "order"
	KindVendor Kind = "vendor"
)

// Room is one broadcast channel on the transport.
type Room struct {
	Kind Kind
	ID   string
}

// UserRoom scopes all order events for one user.
func UserRoom(userID string) Room { return Room{Kind: KindUser, ID: userID} }

// OrderRoom scopes events to one parent order's sub-orders.
func OrderRoom(orderID string) Room { return Room{Kind: KindOrder, ID: orderID} }

// VendorRoom scopes a vendor's live-queue events.
func VendorRoom(vendorID string) Room { return Room{Kind: KindVendor, ID: vendorID} }

// Key returns the unique set key for the room.
func (r Room) Key() string { return string(r.Kind) + ":" + r.ID }

func (r Room) joinEvent() string  { return fmt.Sprintf("join-%s-room", r.Kind) }
func (r Room) leaveEvent() string { return fmt.Sprintf("leave-%s-room", r.Kind) }
func (r Room) ackEvent() string   { return fmt.Sprintf("joined-%s-room", r.Kind) }

type roomPayload struct {
	Room string `json:"room"`
}

// Sender is the outbound half of the transport the manager needs.
type Sender interface {
	Send(transport.Frame) error
}

// Config configures a Manager.
type Config struct {
	JoinTimeout time.Duration // Max wait for a join acknowledgement
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{JoinTimeout: 10 * time.Second}
}

// Manager tracks intended room membership for one connection.
type Manager struct {
	cfg    Config
	sender Sender
	logger *slog.Logger

	mu        sync.Mutex
	rooms     map[string]Room
	connected bool
	nextID    int64
	pending   map[int64]chan transport.Frame
}

// NewManager creates a manager with an empty room set.
func NewManager(cfg Config, sender Sender, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		sender:  sender,
		logger:  logger,
		rooms:   make(map[string]Room),
		pending: make(map[int64]chan transport.Frame),
	}
}

// Rooms returns the current room set, sorted by key.
func (m *Manager) Rooms() []Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Join adds the room to the set. If connected, the join is issued right away
// and waits for the server acknowledgement; otherwise it is deferred until
// the next replay.
func (m *Manager) Join(ctx context.Context, r Room) error {
	m.mu.Lock()
	m.rooms[r.Key()] = r
	connected := m.connected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.sendJoin(ctx, r)
}

// Leave removes the room from the set. While connected a best-effort leave
// is sent; while disconnected the removal is purely local.
func (m *Manager) Leave(r Room) {
	m.mu.Lock()
	delete(m.rooms, r.Key())
	connected := m.connected
	m.mu.Unlock()

	if !connected {
		return
	}
	if err := m.sender.Send(transport.Frame{Event: r.leaveEvent(), Data: mustJSON(roomPayload{Room: r.ID})}); err != nil {
		m.logger.Debug("leave send failed", "room", r.Key(), "error", err)
	}
}

// Replay marks the connection up and rejoins every room in the set exactly
// once. Called on every transition into connected.
func (m *Manager) Replay(ctx context.Context) error {
	m.mu.Lock()
	m.connected = true
	snapshot := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		snapshot = append(snapshot, r)
	}
	m.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Key() < snapshot[j].Key() })

	var firstErr error
	for _, r := range snapshot {
		if err := m.sendJoin(ctx, r); err != nil {
			m.logger.Warn("room replay join failed", "room", r.Key(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Suspend marks the connection down after a transport drop. The room set is
// kept for the next replay; pending join waits are abandoned.
func (m *Manager) Suspend() {
	m.mu.Lock()
	m.connected = false
	m.pending = make(map[int64]chan transport.Frame)
	m.mu.Unlock()
}

// Clear empties the room set on explicit teardown.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.connected = false
	m.rooms = make(map[string]Room)
	m.pending = make(map[int64]chan transport.Frame)
	m.mu.Unlock()
}

// HandleFrame consumes join acknowledgements. Returns true when the frame was
// a control ack and should not be routed further.
func (m *Manager) HandleFrame(f transport.Frame) bool {
	switch f.Event {
	case "joined-user-room", "joined-order-room", "joined-vendor-room":
		m.mu.Lock()
		ch, ok := m.pending[f.ID]
		if ok {
			delete(m.pending, f.ID)
		}
		m.mu.Unlock()
		if ok {
			select {
			case ch <- f:
			default:
			}
		}
		return true
	case "left-user-room", "left-order-room", "left-vendor-room":
		return true
	}
	return false
}

// sendJoin issues one join command and waits for its acknowledgement.
func (m *Manager) sendJoin(ctx context.Context, r Room) error {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	ch := make(chan transport.Frame, 1)
	m.pending[id] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	frame := transport.Frame{
		Event: r.joinEvent(),
		ID:    id,
		Data:  mustJSON(roomPayload{Room: r.ID}),
	}
	if err := m.sender.Send(frame); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.JoinTimeout):
		return transport.ErrTimeout
	case ack := <-ch:
		if ack.Event != r.ackEvent() {
			m.logger.Warn("unexpected join ack", "room", r.Key(), "event", ack.Event)
		}
		metrics.RoomsJoined.WithLabelValues(string(r.Kind)).Inc()
		m.logger.Debug("joined room", "room", r.Key())
		return nil
	}
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
