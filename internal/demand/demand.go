// Package demand implements the Connection Demand Evaluator.
//
// Demand is a pure predicate over the watched-order statuses; transitions are
// debounced asymmetrically so rapid flapping of the watched set produces at
// most one connect and one disconnect.
package demand

import (
	"sync"
	"time"

	"github.com/foodsquare/orderlive/internal/order"
)

// Config holds the debounce delays.
type Config struct {
	ConnectDelay    time.Duration // Not-needed → needed
	DisconnectDelay time.Duration // Needed → not-needed; longer, to catch a trailing final event
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectDelay:    1500 * time.Millisecond,
		DisconnectDelay: 3 * time.Second,
	}
}

// Needed reports whether a live connection is currently justified: any
// tracked sub-order is still live, or an order is watched with no data yet
// (assume demand until the initial fetch lands).
func Needed(statuses []order.IDStatus) bool {
	for _, s := range statuses {
		if s.Status == "" {
			return true
		}
		if !s.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// Debouncer turns raw demand changes into debounced apply calls. A new change
// replaces any pending one; it never stacks timers.
type Debouncer struct {
	cfg   Config
	apply func(needed bool)

	mu      sync.Mutex
	timer   *time.Timer
	current bool
	pending *bool
}

// NewDebouncer creates a debouncer. apply is invoked from a timer goroutine
// once a change survives its delay.
func NewDebouncer(cfg Config, apply func(needed bool)) *Debouncer {
	return &Debouncer{cfg: cfg, apply: apply}
}

// Current returns the last applied demand.
func (d *Debouncer) Current() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Update records a new demand value. No-op when it matches the applied state
// and nothing is pending; otherwise it cancels any pending transition and
// schedules this one.
func (d *Debouncer) Update(needed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil && *d.pending == needed {
		return
	}
	if d.pending == nil && needed == d.current {
		return
	}

	d.stopTimerLocked()

	if needed == d.current {
		// A pending opposite transition was cancelled before it fired.
		d.pending = nil
		return
	}

	delay := d.cfg.DisconnectDelay
	if needed {
		delay = d.cfg.ConnectDelay
	}
	want := needed
	d.pending = &want
	d.timer = time.AfterFunc(delay, func() { d.fire(want) })
}

func (d *Debouncer) fire(want bool) {
	d.mu.Lock()
	if d.pending == nil || *d.pending != want {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.timer = nil
	d.current = want
	d.mu.Unlock()

	d.apply(want)
}

// Stop cancels any pending transition. Safe to call repeatedly.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.pending = nil
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
