// Package recovery implements the Connection Recovery Registry.
//
// The registry is the one process-wide mutable structure: every healthy
// connection registers a named checker, the registry polls retry counts to
// derive overall health, and ForceRecovery is the manual retry-everything
// escape hatch surfaced to the UI layer.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Health is the overall state across all registered checkers.
type Health string

const (
	HealthHealthy    Health = "healthy"    // No checker is retrying
	HealthRecovering Health = "recovering" // Some retries, all below the threshold
	HealthFailed     Health = "failed"     // At least one checker hit the threshold
)

// Checker is a registered liveness probe for one connection.
type Checker struct {
	// Retries returns the connection's current failed-attempt count.
	Retries func() int

	// Recover triggers an out-of-band reconnection attempt.
	Recover func(ctx context.Context) error
}

// Config configures a Registry.
type Config struct {
	PollInterval  time.Duration // Health evaluation cadence
	FailThreshold int           // Retry count at which a checker counts as failed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  time.Second,
		FailThreshold: 5,
	}
}

type entry struct {
	name        string
	checker     Checker
	lastSuccess time.Time
}

// Registry tracks active connection checkers. Monitoring starts lazily with
// the first checker and stops when the last one is removed.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	checkers map[string]*entry
	stop     chan struct{} // Non-nil while the monitor runs
	last     Health        // Last observed health, for transition logging
}

// New creates a registry.
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = DefaultConfig().FailThreshold
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		checkers: make(map[string]*entry),
		last:     HealthHealthy,
	}
}

// Default is the process-wide registry shared by all connections.
var Default = New(DefaultConfig(), nil)

// AddChecker registers a checker under name, replacing any prior one with the
// same name (a reconnected connection re-registers itself).
func (r *Registry) AddChecker(name string, c Checker) {
	r.mu.Lock()
	r.checkers[name] = &entry{name: name, checker: c, lastSuccess: time.Now()}
	if r.stop == nil {
		r.stop = make(chan struct{})
		go r.monitor(r.stop)
		r.logger.Debug("recovery monitor started")
	}
	r.mu.Unlock()
}

// RemoveChecker unregisters a checker. Stops the monitor when the last
// checker goes away.
func (r *Registry) RemoveChecker(name string) {
	r.mu.Lock()
	delete(r.checkers, name)
	if len(r.checkers) == 0 && r.stop != nil {
		close(r.stop)
		r.stop = nil
		r.logger.Debug("recovery monitor stopped")
	}
	r.mu.Unlock()
}

// Names returns the registered checker names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		out = append(out, name)
	}
	return out
}

// Health derives the overall state from current retry counts.
func (r *Registry) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthLocked()
}

func (r *Registry) healthLocked() Health {
	health := HealthHealthy
	for _, e := range r.checkers {
		retries := e.checker.Retries()
		if retries >= r.cfg.FailThreshold {
			return HealthFailed
		}
		if retries > 0 {
			health = HealthRecovering
		}
	}
	return health
}

// ForceRecovery triggers a reconnection attempt on every registered checker
// simultaneously and reports whether all of them succeeded.
func (r *Registry) ForceRecovery(ctx context.Context) bool {
	r.mu.Lock()
	targets := make([]*entry, 0, len(r.checkers))
	for _, e := range r.checkers {
		targets = append(targets, e)
	}
	r.mu.Unlock()

	if len(targets) == 0 {
		return true
	}

	var wg sync.WaitGroup
	results := make([]error, len(targets))
	for i, e := range targets {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			results[i] = e.checker.Recover(ctx)
		}(i, e)
	}
	wg.Wait()

	ok := true
	for i, err := range results {
		if err != nil {
			ok = false
			r.logger.Warn("forced recovery failed", "checker", targets[i].name, "error", err)
		}
	}
	r.logger.Info("forced recovery finished", "checkers", len(targets), "all_succeeded", ok)
	return ok
}

// monitor polls checker retry counts, refreshes last-success times, and logs
// health transitions.
func (r *Registry) monitor(stop chan struct{}) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			now := time.Now()
			for _, e := range r.checkers {
				if e.checker.Retries() == 0 {
					e.lastSuccess = now
				}
			}
			health := r.healthLocked()
			changed := health != r.last
			r.last = health
			r.mu.Unlock()

			if changed {
				r.logger.Info("connection health changed", "health", health)
			}
		}
	}
}
