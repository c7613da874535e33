package rooms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foodsquare/orderlive/internal/transport"
)

// fakeSender records outbound frames and acknowledges joins inline, the way
// the server would.
type fakeSender struct {
	mu      sync.Mutex
	frames  []transport.Frame
	manager *Manager
	ackJoin bool
	fail    bool
}

func (f *fakeSender) Send(frame transport.Frame) error {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	ack := f.ackJoin
	fail := f.fail
	f.mu.Unlock()

	if fail {
		return errors.New("send failed")
	}
	if ack && frame.ID != 0 {
		ackEvent := map[string]string{
			"join-user-room":   "joined-user-room",
			"join-order-room":  "joined-order-room",
			"join-vendor-room": "joined-vendor-room",
		}[frame.Event]
		if ackEvent != "" {
			go f.manager.HandleFrame(transport.Frame{Event: ackEvent, ID: frame.ID})
		}
	}
	return nil
}

func (f *fakeSender) sent() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Frame(nil), f.frames...)
}

func (f *fakeSender) countEvent(event string) int {
	n := 0
	for _, fr := range f.sent() {
		if fr.Event == event {
			n++
		}
	}
	return n
}

func newTestManager() (*Manager, *fakeSender) {
	sender := &fakeSender{ackJoin: true}
	m := NewManager(Config{JoinTimeout: time.Second}, sender, nil)
	sender.manager = m
	return m, sender
}

func TestManager_DeferredJoin(t *testing.T) {
	m, sender := newTestManager()

	// Not connected: the mutation is local only.
	if err := m.Join(context.Background(), OrderRoom("P1")); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if n := len(sender.sent()); n != 0 {
		t.Errorf("sent %d frames while disconnected, want 0", n)
	}
	if len(m.Rooms()) != 1 {
		t.Errorf("rooms = %v, want [order:P1]", m.Rooms())
	}
}

func TestManager_ImmediateJoinWhileConnected(t *testing.T) {
	m, sender := newTestManager()

	if err := m.Replay(context.Background()); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if err := m.Join(context.Background(), UserRoom("u1")); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if n := sender.countEvent("join-user-room"); n != 1 {
		t.Errorf("join-user-room sent %d times, want 1", n)
	}
}

func TestManager_ReplayJoinsEachRoomOnce(t *testing.T) {
	m, sender := newTestManager()

	ctx := context.Background()
	m.Join(ctx, UserRoom("u1"))
	m.Join(ctx, OrderRoom("P1"))
	m.Join(ctx, OrderRoom("P2"))
	m.Join(ctx, VendorRoom("v1"))

	if err := m.Replay(ctx); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if n := sender.countEvent("join-order-room"); n != 2 {
		t.Errorf("join-order-room sent %d times, want 2", n)
	}
	if n := sender.countEvent("join-user-room"); n != 1 {
		t.Errorf("join-user-room sent %d times, want 1", n)
	}
	if n := sender.countEvent("join-vendor-room"); n != 1 {
		t.Errorf("join-vendor-room sent %d times, want 1", n)
	}

	// A drop and second replay rejoins everything exactly once more.
	m.Suspend()
	if err := m.Replay(ctx); err != nil {
		t.Fatalf("second Replay failed: %v", err)
	}
	if n := sender.countEvent("join-order-room"); n != 4 {
		t.Errorf("join-order-room sent %d times after reconnect, want 4", n)
	}
}

func TestManager_LeaveWhileDisconnected(t *testing.T) {
	m, sender := newTestManager()

	m.Join(context.Background(), OrderRoom("P1"))
	m.Leave(OrderRoom("P1"))

	if len(m.Rooms()) != 0 {
		t.Errorf("rooms = %v, want empty", m.Rooms())
	}
	if n := len(sender.sent()); n != 0 {
		t.Errorf("sent %d frames while disconnected, want 0", n)
	}
}

func TestManager_LeaveWhileConnected(t *testing.T) {
	m, sender := newTestManager()
	ctx := context.Background()

	m.Replay(ctx)
	m.Join(ctx, OrderRoom("P1"))
	m.Leave(OrderRoom("P1"))

	if n := sender.countEvent("leave-order-room"); n != 1 {
		t.Errorf("leave-order-room sent %d times, want 1", n)
	}
}

func TestManager_JoinTimeout(t *testing.T) {
	sender := &fakeSender{ackJoin: false}
	m := NewManager(Config{JoinTimeout: 30 * time.Millisecond}, sender, nil)
	sender.manager = m

	m.Replay(context.Background())
	err := m.Join(context.Background(), OrderRoom("P1"))
	if err != transport.ErrTimeout {
		t.Errorf("Join = %v, want ErrTimeout", err)
	}
}

func TestManager_ClearEmptiesRoomSet(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	m.Join(ctx, OrderRoom("P1"))
	m.Join(ctx, UserRoom("u1"))
	m.Clear()

	if len(m.Rooms()) != 0 {
		t.Errorf("rooms = %v, want empty after Clear", m.Rooms())
	}
}

func TestManager_HandleFrameRouting(t *testing.T) {
	m, _ := newTestManager()

	if !m.HandleFrame(transport.Frame{Event: "joined-order-room", ID: 99}) {
		t.Error("join ack should be consumed")
	}
	if !m.HandleFrame(transport.Frame{Event: "left-user-room"}) {
		t.Error("leave ack should be consumed")
	}
	if m.HandleFrame(transport.Frame{Event: "order-status-updated"}) {
		t.Error("data events should not be consumed")
	}
}
