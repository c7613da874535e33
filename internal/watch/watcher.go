package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foodsquare/orderlive/internal/api"
	"github.com/foodsquare/orderlive/internal/demand"
	"github.com/foodsquare/orderlive/internal/metrics"
	"github.com/foodsquare/orderlive/internal/order"
	"github.com/foodsquare/orderlive/internal/poller"
	"github.com/foodsquare/orderlive/internal/recovery"
	"github.com/foodsquare/orderlive/internal/rooms"
	"github.com/foodsquare/orderlive/internal/transport"
)

// Config configures a Watcher.
type Config struct {
	UserID   string // Customer watcher: receives this user's order events
	VendorID string // Vendor watcher: receives this vendor's queue events

	Transport transport.Config
	Rooms     rooms.Config
	Demand    demand.Config
	Poller    poller.Config

	ConnectTimeout    time.Duration // Per connect attempt driven by demand
	ResyncOnReconnect bool          // Re-fetch REST snapshots after a reconnect
}

// DefaultConfig returns sensible defaults for one namespace.
func DefaultConfig() Config {
	return Config{
		Transport:         transport.DefaultConfig(),
		Rooms:             rooms.DefaultConfig(),
		Demand:            demand.DefaultConfig(),
		Poller:            poller.DefaultConfig(),
		ConnectTimeout:    15 * time.Second,
		ResyncOnReconnect: true,
	}
}

// Watcher maintains the live view for one namespace.
type Watcher struct {
	cfg      Config
	logger   *slog.Logger
	rest     *api.Client // May be nil: no snapshot seeding or resync
	registry *recovery.Registry

	conn    *transport.Conn
	rooms   *rooms.Manager
	reducer *order.Reducer
	deb     *demand.Debouncer
	poll    *poller.Poller // Non-nil only with a REST client

	mu              sync.Mutex
	started         bool
	wasConnected    bool
	lastFingerprint string
	fingerprinted   bool

	stateSub *transport.Subscription
	done     chan struct{}
	wg       sync.WaitGroup

	subMu  sync.Mutex
	subID  int64
	oneSub map[int64]func(Update)
}

// New creates a watcher. rest may be nil when no snapshot source exists;
// registry defaults to the process-wide one.
func New(cfg Config, rest *api.Client, registry *recovery.Registry, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = recovery.Default
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	w := &Watcher{
		cfg:      cfg,
		logger:   logger.With("namespace", cfg.Transport.Namespace),
		rest:     rest,
		registry: registry,
		reducer:  order.NewReducer(logger),
		done:     make(chan struct{}),
		oneSub:   make(map[int64]func(Update)),
	}
	w.conn = transport.NewConn(cfg.Transport, logger)
	w.rooms = rooms.NewManager(cfg.Rooms, w.conn, logger)
	w.deb = demand.NewDebouncer(cfg.Demand, w.applyDemand)
	if rest != nil {
		w.poll = poller.New(cfg.Poller, rest, w.reducer, cfg.VendorID, poller.HandlerFuncs{
			Order: w.handlePolledOrder,
			Queue: w.handlePolledQueue,
		}, logger)
	}
	return w
}

// handlePolledOrder folds one REST-polled snapshot into the live view.
func (w *Watcher) handlePolledOrder(agg order.OrderAggregate) error {
	w.reducer.SeedOrder(agg)
	clone := agg.Clone()
	w.publish(Update{Event: EventOrderStatusUpdated, Order: &clone})
	w.evaluateDemand()
	return nil
}

func (w *Watcher) handlePolledQueue(q order.VendorQueue) error {
	w.reducer.SeedQueue(q)
	clone := q.Clone()
	w.publish(Update{Event: EventQueueUpdated, Queue: &clone})
	return nil
}

// checkerName keys this watcher in the recovery registry.
func (w *Watcher) checkerName() string {
	who := w.cfg.UserID
	if who == "" {
		who = w.cfg.VendorID
	}
	return fmt.Sprintf("watch:%s:%s", w.cfg.Transport.Namespace, who)
}

// Start seeds aggregate state, wires the event loop, and evaluates initial
// demand. It does not force a connection: demand decides.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.seed(ctx); err != nil {
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return fmt.Errorf("seed snapshot: %w", err)
	}

	w.stateSub = w.conn.OnState(w.onState)

	w.wg.Add(1)
	go w.dispatchLoop()

	w.registry.AddChecker(w.checkerName(), recovery.Checker{
		Retries: w.conn.Attempts,
		Recover: w.Recover,
	})

	w.evaluateDemand()
	w.logger.Info("watcher started",
		"user", w.cfg.UserID,
		"vendor", w.cfg.VendorID,
		"tracked_orders", len(w.reducer.TrackedOrders()),
	)
	return nil
}

// Stop tears the watcher down: demand timers first, then rooms, then the
// transport, then the registry entry. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	w.deb.Stop()
	if w.poll != nil {
		w.poll.Stop()
	}
	if w.stateSub != nil {
		w.stateSub.Unsubscribe()
	}
	w.leaveAllRooms()
	w.rooms.Clear()
	w.conn.Disconnect()
	w.registry.RemoveChecker(w.checkerName())

	close(w.done)
	w.wg.Wait()
	w.logger.Info("watcher stopped")
}

// seed installs the REST snapshot the CRUD layer is authoritative for.
func (w *Watcher) seed(ctx context.Context) error {
	if w.cfg.VendorID != "" {
		w.reducer.TrackVendor(w.cfg.VendorID)
	}
	if w.rest == nil {
		return nil
	}

	if w.cfg.UserID != "" {
		orders, err := w.rest.GetUserOrders(ctx, w.cfg.UserID, true)
		if err != nil {
			return err
		}
		for _, agg := range orders {
			w.reducer.SeedOrder(agg)
		}
		w.logger.Debug("seeded user orders", "count", len(orders))
	}

	if w.cfg.VendorID != "" {
		queue, err := w.rest.GetVendorQueue(ctx, w.cfg.VendorID)
		if err != nil {
			return err
		}
		w.reducer.SeedQueue(queue)
		w.logger.Debug("seeded vendor queue", "vendor", w.cfg.VendorID)
	}
	return nil
}

// Track starts watching a parent order. Until data arrives, demand assumes
// the order is live.
func (w *Watcher) Track(orderID string) {
	w.reducer.TrackOrder(orderID)
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Rooms.JoinTimeout)
	defer cancel()
	if err := w.rooms.Join(ctx, rooms.OrderRoom(orderID)); err != nil {
		w.logger.Warn("order room join failed", "order", orderID, "error", err)
	}
	w.evaluateDemand()
}

// Untrack stops watching a parent order and leaves its room.
func (w *Watcher) Untrack(orderID string) {
	w.reducer.UntrackOrder(orderID)
	w.rooms.Leave(rooms.OrderRoom(orderID))
	w.evaluateDemand()
}

// Seed installs an order snapshot supplied by the caller (e.g. right after
// placing an order, before the REST listing would include it).
func (w *Watcher) Seed(agg order.OrderAggregate) {
	w.reducer.SeedOrder(agg)
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Rooms.JoinTimeout)
	defer cancel()
	if err := w.rooms.Join(ctx, rooms.OrderRoom(agg.ID)); err != nil {
		w.logger.Warn("order room join failed", "order", agg.ID, "error", err)
	}
	w.evaluateDemand()
}

// Order returns a clone of one tracked aggregate.
func (w *Watcher) Order(id string) (order.OrderAggregate, bool) {
	return w.reducer.Order(id)
}

// Queue returns a clone of the vendor queue view.
func (w *Watcher) Queue() (order.VendorQueue, bool) {
	return w.reducer.Queue(w.cfg.VendorID)
}

// State exposes the transport lifecycle state for UI rendering.
func (w *Watcher) State() transport.State { return w.conn.State() }

// Err exposes the surfaced connection error, nil while healthy or retrying.
func (w *Watcher) Err() error { return w.conn.Err() }

// Rooms returns the current room membership intent.
func (w *Watcher) Rooms() []rooms.Room { return w.rooms.Rooms() }

// On registers an update listener. The returned subscription unregisters it.
func (w *Watcher) On(fn func(Update)) *transport.Subscription {
	w.subMu.Lock()
	w.subID++
	id := w.subID
	w.oneSub[id] = fn
	w.subMu.Unlock()

	return transport.NewSubscription(func() {
		w.subMu.Lock()
		delete(w.oneSub, id)
		w.subMu.Unlock()
	})
}

func (w *Watcher) publish(u Update) {
	w.subMu.Lock()
	fns := make([]func(Update), 0, len(w.oneSub))
	for _, fn := range w.oneSub {
		fns = append(fns, fn)
	}
	w.subMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Recover resets the connection out-of-band, used by the recovery registry's
// force-recovery path.
func (w *Watcher) Recover(ctx context.Context) error {
	return w.conn.Recover(ctx)
}

// evaluateDemand recomputes the fingerprint and, only when it changed, feeds
// the new demand into the debouncer.
func (w *Watcher) evaluateDemand() {
	statuses := w.reducer.Statuses()
	fp := order.Fingerprint(statuses)

	w.mu.Lock()
	if w.fingerprinted && fp == w.lastFingerprint {
		w.mu.Unlock()
		return
	}
	w.lastFingerprint = fp
	w.fingerprinted = true
	w.mu.Unlock()

	needed := demand.Needed(statuses) || w.cfg.VendorID != ""
	w.deb.Update(needed)
}

// applyDemand runs debounced connect/disconnect transitions.
func (w *Watcher) applyDemand(needed bool) {
	if needed {
		w.joinIntendedRooms()
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ConnectTimeout)
		defer cancel()
		if err := w.conn.Connect(ctx); err != nil {
			w.logger.Warn("demand connect failed", "error", err)
		}
		return
	}

	w.logger.Debug("demand gone, disconnecting")
	w.conn.Disconnect()
	w.rooms.Clear()
}

// joinIntendedRooms rebuilds the room set from tracked state. Joins are
// deferred while disconnected and land with the replay on connect.
func (w *Watcher) joinIntendedRooms() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Rooms.JoinTimeout)
	defer cancel()

	if w.cfg.UserID != "" {
		w.rooms.Join(ctx, rooms.UserRoom(w.cfg.UserID))
	}
	if w.cfg.VendorID != "" {
		w.rooms.Join(ctx, rooms.VendorRoom(w.cfg.VendorID))
	}
	for _, id := range w.reducer.TrackedOrders() {
		w.rooms.Join(ctx, rooms.OrderRoom(id))
	}
}

func (w *Watcher) leaveAllRooms() {
	for _, r := range w.rooms.Rooms() {
		w.rooms.Leave(r)
	}
}

// onState reacts to transport lifecycle transitions.
func (w *Watcher) onState(s transport.State) {
	switch s {
	case transport.StateConnected:
		if w.poll != nil {
			w.poll.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Rooms.JoinTimeout)
		if err := w.rooms.Replay(ctx); err != nil {
			w.logger.Warn("room replay incomplete", "error", err)
		}
		cancel()

		// Re-register: a reconnected connection replaces its prior checker.
		w.registry.AddChecker(w.checkerName(), recovery.Checker{
			Retries: w.conn.Attempts,
			Recover: w.Recover,
		})

		w.mu.Lock()
		reconnected := w.wasConnected
		w.wasConnected = true
		w.mu.Unlock()

		if reconnected && w.cfg.ResyncOnReconnect && w.rest != nil {
			w.wg.Add(1)
			go w.resync()
		}

	case transport.StateDisconnected, transport.StateFailed:
		w.rooms.Suspend()
		if s == transport.StateFailed {
			w.logger.Error("connection failed permanently; waiting for manual recovery")
			// Degraded mode: keep the view moving over REST until recovery.
			if w.poll != nil {
				w.poll.Start()
			}
		}
	}
}

// resync re-fetches REST snapshots after a reconnect to reconcile events
// missed while the link was down.
func (w *Watcher) resync() {
	defer w.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range w.reducer.TrackedOrders() {
		agg, err := w.rest.GetOrder(ctx, id)
		if err != nil {
			w.logger.Warn("resync order fetch failed", "order", id, "error", err)
			continue
		}
		w.reducer.SeedOrder(agg)
		clone := agg.Clone()
		w.publish(Update{Event: EventOrderStatusUpdated, Order: &clone})
	}

	if w.cfg.VendorID != "" {
		queue, err := w.rest.GetVendorQueue(ctx, w.cfg.VendorID)
		if err != nil {
			w.logger.Warn("resync queue fetch failed", "vendor", w.cfg.VendorID, "error", err)
		} else {
			w.reducer.SeedQueue(queue)
			clone := queue.Clone()
			w.publish(Update{Event: EventQueueUpdated, Queue: &clone})
		}
	}

	w.evaluateDemand()
	w.logger.Debug("resync complete")
}

// dispatchLoop consumes inbound frames: control acks go to the room manager,
// data events to the reducer.
func (w *Watcher) dispatchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case f := <-w.conn.Frames():
			if w.rooms.HandleFrame(f) {
				continue
			}
			w.handleEvent(f)
		}
	}
}

// handleEvent decodes one data event and folds it into aggregate state.
func (w *Watcher) handleEvent(f transport.Frame) {
	switch f.Event {
	case EventOrderStatusUpdated, EventVendorOrderRejected:
		var p orderEventPayload
		if !w.decode(f, &p) {
			return
		}
		d := p.delta()
		if f.Event == EventVendorOrderRejected && d.Status == "" {
			d.Status = order.StatusRejected
		}
		if w.reducer.ApplyStatus(d) {
			metrics.DeltasApplied.WithLabelValues(f.Event).Inc()
			w.publishOrder(f.Event, d.ParentOrderID)
			w.publishQueue(f.Event, d.VendorID)
			w.evaluateDemand()
		} else {
			metrics.DeltasDropped.WithLabelValues(f.Event).Inc()
		}

	case EventOrderCompleted:
		var p completedPayload
		if !w.decode(f, &p) {
			return
		}
		if w.reducer.ApplyCompleted(p.ParentOrderID, p.UpdatedAt) {
			metrics.DeltasApplied.WithLabelValues(f.Event).Inc()
			w.publishOrder(f.Event, p.ParentOrderID)
			w.evaluateDemand()
		} else {
			metrics.DeltasDropped.WithLabelValues(f.Event).Inc()
		}

	case EventNewOrder:
		var p orderEventPayload
		if !w.decode(f, &p) {
			return
		}
		if w.reducer.ApplyNewSubOrder(p.ParentOrderID, p.SubOrder) {
			metrics.DeltasApplied.WithLabelValues(f.Event).Inc()
			w.publishOrder(f.Event, p.ParentOrderID)
			w.publishQueue(f.Event, p.SubOrder.VendorID)
			w.evaluateDemand()
		} else {
			metrics.DeltasDropped.WithLabelValues(f.Event).Inc()
		}

	case EventNewOrderCreated:
		var p createdPayload
		if !w.decode(f, &p) {
			return
		}
		if w.reducer.ApplyNewOrder(p.Order) {
			metrics.DeltasApplied.WithLabelValues(f.Event).Inc()
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Rooms.JoinTimeout)
			w.rooms.Join(ctx, rooms.OrderRoom(p.Order.ID))
			cancel()
			w.publishOrder(f.Event, p.Order.ID)
			w.evaluateDemand()
		}

	case EventOrderRemoved:
		var p removedPayload
		if !w.decode(f, &p) {
			return
		}
		if w.reducer.ApplyRemoved(p.VendorID, p.SubOrderID) {
			metrics.DeltasApplied.WithLabelValues(f.Event).Inc()
			w.publishQueue(f.Event, p.VendorID)
		} else {
			metrics.DeltasDropped.WithLabelValues(f.Event).Inc()
		}

	case EventQueueUpdated:
		var p queuePayload
		if !w.decode(f, &p) {
			return
		}
		if w.reducer.ApplyQueueUpdate(p.VendorID, p.Section, p.Orders) {
			metrics.DeltasApplied.WithLabelValues(f.Event).Inc()
			w.publishQueue(f.Event, p.VendorID)
		} else {
			metrics.DeltasDropped.WithLabelValues(f.Event).Inc()
		}

	default:
		w.logger.Debug("ignoring unknown event", "event", f.Event)
	}
}

func (w *Watcher) decode(f transport.Frame, v any) bool {
	if err := json.Unmarshal(f.Data, v); err != nil {
		w.logger.Warn("malformed event payload", "event", f.Event, "error", err)
		return false
	}
	return true
}

func (w *Watcher) publishOrder(event, orderID string) {
	if agg, ok := w.reducer.Order(orderID); ok {
		w.publish(Update{Event: event, Order: &agg})
	}
}

func (w *Watcher) publishQueue(event, vendorID string) {
	if vendorID == "" {
		return
	}
	if q, ok := w.reducer.Queue(vendorID); ok {
		w.publish(Update{Event: event, Queue: &q})
	}
}
