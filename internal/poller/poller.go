package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foodsquare/orderlive/internal/api"
	"github.com/foodsquare/orderlive/internal/order"
)

// OrderSource provides the parent order IDs to refresh.
type OrderSource interface {
	TrackedOrders() []string
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleOrder(agg order.OrderAggregate) error
	HandleQueue(q order.VendorQueue) error
}

// HandlerFuncs is a function adapter for SnapshotHandler.
type HandlerFuncs struct {
	Order func(agg order.OrderAggregate) error
	Queue func(q order.VendorQueue) error
}

func (h HandlerFuncs) HandleOrder(agg order.OrderAggregate) error {
	if h.Order == nil {
		return nil
	}
	return h.Order(agg)
}

func (h HandlerFuncs) HandleQueue(q order.VendorQueue) error {
	if h.Queue == nil {
		return nil
	}
	return h.Queue(q)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 30s)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically re-fetches order snapshots via the REST API. It is the
// degraded-mode fallback while the live connection is down: the view keeps
// moving, just slower.
type Poller struct {
	cfg      Config
	client   *api.Client
	source   OrderSource
	vendorID string
	handler  SnapshotHandler
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller. vendorID may be empty for customer-side watchers.
func New(cfg Config, client *api.Client, source OrderSource, vendorID string, handler SnapshotHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		source:   source,
		vendorID: vendorID,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins the polling loop. No-op when already running.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx)
	p.logger.Info("snapshot poller started", "interval", p.cfg.Interval)
}

// Stop halts the polling loop and waits for in-flight fetches. No-op when not
// running.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("snapshot poller stopped")
}

// Running reports whether the polling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// pollAll refreshes every tracked order concurrently, then the vendor queue.
func (p *Poller) pollAll(ctx context.Context) {
	start := time.Now()

	ids := p.source.TrackedOrders()
	if len(ids) == 0 && p.vendorID == "" {
		p.logger.Debug("nothing to poll")
		return
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, failed atomic.Int64

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := p.pollOrder(ctx, id); err != nil {
				p.logger.Warn("order poll failed", "order", id, "error", err)
				failed.Add(1)
				return
			}
			fetched.Add(1)
		}(id)
	}
	wg.Wait()

	if p.vendorID != "" {
		if err := p.pollQueue(ctx); err != nil {
			p.logger.Warn("queue poll failed", "vendor", p.vendorID, "error", err)
			failed.Add(1)
		} else {
			fetched.Add(1)
		}
	}

	p.logger.Debug("poll cycle complete",
		"orders", len(ids),
		"fetched", fetched.Load(),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)
}

func (p *Poller) pollOrder(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	agg, err := p.client.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return p.handler.HandleOrder(agg)
}

func (p *Poller) pollQueue(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	q, err := p.client.GetVendorQueue(ctx, p.vendorID)
	if err != nil {
		return err
	}
	return p.handler.HandleQueue(q)
}
