package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// echoPongs answers every ping frame with a pong and otherwise keeps the
// connection open.
func echoPongs(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Event == EventPing {
			conn.WriteJSON(Frame{Event: EventPong})
		}
	}
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Namespace = "customer"
	cfg.ReconnectBase = 10 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond
	cfg.MaxAttempts = 3
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	var prev time.Duration
	for attempt := 0; attempt < 12; attempt++ {
		d := Backoff(attempt, base, max)
		if d < prev {
			t.Errorf("backoff decreased at attempt %d: %s < %s", attempt, d, prev)
		}
		if d > max {
			t.Errorf("backoff exceeded cap at attempt %d: %s", attempt, d)
		}
		prev = d
	}

	if got := Backoff(0, base, max); got != time.Second {
		t.Errorf("Backoff(0) = %s, want 1s", got)
	}
	if got := Backoff(3, base, max); got != 8*time.Second {
		t.Errorf("Backoff(3) = %s, want 8s", got)
	}
	if got := Backoff(10, base, max); got != max {
		t.Errorf("Backoff(10) = %s, want capped at %s", got, max)
	}
}

func TestConn_ConnectDisconnect(t *testing.T) {
	server := mockWSServer(t, echoPongs)
	defer server.Close()

	conn := NewConn(testConfig(wsURL(server)), nil)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if conn.State() != StateConnected {
		t.Errorf("state = %q, want connected", conn.State())
	}
	if conn.Attempts() != 0 {
		t.Errorf("attempts = %d, want 0 after success", conn.Attempts())
	}

	// Connect is a no-op while connected.
	if err := conn.Connect(context.Background()); err != nil {
		t.Errorf("second Connect returned %v", err)
	}

	conn.Disconnect()
	if conn.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected", conn.State())
	}

	// Disconnect is idempotent.
	conn.Disconnect()
}

func TestConn_FramesDelivered(t *testing.T) {
	server := mockWSServer(t, func(ws *websocket.Conn) {
		ws.WriteJSON(Frame{Event: "order-status-updated", Data: []byte(`{"parentOrderId":"P1"}`)})
		echoPongs(ws)
	})
	defer server.Close()

	conn := NewConn(testConfig(wsURL(server)), nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	select {
	case f := <-conn.Frames():
		if f.Event != "order-status-updated" {
			t.Errorf("event = %q, want order-status-updated", f.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestConn_PongConsumedInternally(t *testing.T) {
	server := mockWSServer(t, echoPongs)
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.HeartbeatTimeout = 100 * time.Millisecond

	conn := NewConn(cfg, nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	before := conn.LastLiveness()
	waitFor(t, time.Second, func() bool { return conn.LastLiveness().After(before) })

	select {
	case f := <-conn.Frames():
		t.Errorf("pong leaked to the frame channel: %+v", f)
	default:
	}
	if conn.State() != StateConnected {
		t.Errorf("state = %q, want connected", conn.State())
	}
}

func TestConn_HeartbeatTimeoutForcesReconnect(t *testing.T) {
	var conns atomic.Int32
	server := mockWSServer(t, func(ws *websocket.Conn) {
		n := conns.Add(1)
		for {
			var f Frame
			if err := ws.ReadJSON(&f); err != nil {
				return
			}
			// First connection never answers pings; later ones do.
			if f.Event == EventPing && n > 1 {
				ws.WriteJSON(Frame{Event: EventPong})
			}
		}
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.HeartbeatInterval = 40 * time.Millisecond
	cfg.HeartbeatTimeout = 20 * time.Millisecond

	conn := NewConn(cfg, nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	waitFor(t, 3*time.Second, func() bool { return conns.Load() >= 2 })
	waitFor(t, 3*time.Second, func() bool { return conn.State() == StateConnected })

	if conn.Attempts() != 0 {
		t.Errorf("attempts = %d, want 0 after recovery", conn.Attempts())
	}
}

func TestConn_ServerCloseNotRetried(t *testing.T) {
	server := mockWSServer(t, func(ws *websocket.Conn) {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "maintenance"),
			time.Now().Add(time.Second),
		)
	})
	defer server.Close()

	conn := NewConn(testConfig(wsURL(server)), nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return conn.Err() == ErrServerDisconnect })

	// No automatic retry follows a server-initiated close.
	time.Sleep(100 * time.Millisecond)
	if conn.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected", conn.State())
	}
	if conn.Err() != ErrServerDisconnect {
		t.Errorf("err = %v, want ErrServerDisconnect", conn.Err())
	}
}

func TestConn_RetriesExhaustedThenRecover(t *testing.T) {
	var refuse atomic.Bool
	refuse.Store(true)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refuse.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		echoPongs(ws)
	}))
	defer server.Close()

	conn := NewConn(testConfig(wsURL(server)), nil)

	if err := conn.Connect(context.Background()); err == nil {
		t.Fatal("expected first connect to fail")
	}

	waitFor(t, 3*time.Second, func() bool { return conn.State() == StateFailed })
	if conn.Err() != ErrRetriesExhausted {
		t.Errorf("err = %v, want ErrRetriesExhausted", conn.Err())
	}

	// No further attempts are scheduled once failed.
	attempts := conn.Attempts()
	time.Sleep(150 * time.Millisecond)
	if got := conn.Attempts(); got != attempts {
		t.Errorf("attempts kept climbing after failure: %d → %d", attempts, got)
	}

	// Connect stays a no-op in the failed state.
	if err := conn.Connect(context.Background()); err != ErrRetriesExhausted {
		t.Errorf("Connect in failed state = %v, want ErrRetriesExhausted", err)
	}

	// Manual recovery resets the ladder and succeeds.
	refuse.Store(false)
	if err := conn.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	defer conn.Disconnect()

	if conn.State() != StateConnected {
		t.Errorf("state = %q, want connected after recovery", conn.State())
	}
	if conn.Attempts() != 0 {
		t.Errorf("attempts = %d, want 0 after recovery", conn.Attempts())
	}
}

func TestConn_StateListener(t *testing.T) {
	server := mockWSServer(t, echoPongs)
	defer server.Close()

	conn := NewConn(testConfig(wsURL(server)), nil)

	var mu sync.Mutex
	var seen []State
	sub := conn.OnState(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn.Disconnect()

	mu.Lock()
	got := append([]State(nil), seen...)
	mu.Unlock()

	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}

	// After unsubscribing, no further notifications arrive.
	sub.Unsubscribe()
	conn.Connect(context.Background())
	conn.Disconnect()

	mu.Lock()
	after := len(seen)
	mu.Unlock()
	if after != len(want) {
		t.Errorf("listener fired after unsubscribe: %d transitions", after)
	}
}
