package order

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Reducer folds inbound status deltas into the tracked aggregate views.
// All mutation happens under one mutex; consumers receive clones.
type Reducer struct {
	logger *slog.Logger

	mu     sync.RWMutex
	orders map[string]*OrderAggregate // Parent order id → aggregate (nil until seeded)
	queues map[string]*VendorQueue    // Vendor id → queue view
}

// NewReducer creates an empty reducer.
func NewReducer(logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{
		logger: logger,
		orders: make(map[string]*OrderAggregate),
		queues: make(map[string]*VendorQueue),
	}
}

// TrackOrder registers interest in a parent order id. Until a snapshot or
// delta arrives the aggregate has no data, which the demand evaluator treats
// as "assume live".
func (r *Reducer) TrackOrder(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		r.orders[id] = nil
	}
}

// UntrackOrder drops a parent order and its state.
func (r *Reducer) UntrackOrder(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
}

// TrackedOrders returns the tracked parent order ids, sorted.
func (r *Reducer) TrackedOrders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SeedOrder installs a REST-fetched snapshot, replacing any prior state for
// that order. Seeding implies tracking.
func (r *Reducer) SeedOrder(agg OrderAggregate) {
	clone := agg.Clone()
	clone.Summary = ComputeSummary(clone.SubOrders)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[clone.ID] = &clone
}

// TrackVendor registers interest in a vendor's live queue.
func (r *Reducer) TrackVendor(vendorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[vendorID]; !ok {
		r.queues[vendorID] = &VendorQueue{VendorID: vendorID}
	}
}

// UntrackVendor drops a vendor queue and its state.
func (r *Reducer) UntrackVendor(vendorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, vendorID)
}

// SeedQueue installs a REST-fetched vendor queue snapshot.
func (r *Reducer) SeedQueue(q VendorQueue) {
	clone := q.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[clone.VendorID] = &clone
}

// Order returns a clone of one tracked aggregate. ok is false when the order
// is untracked or has no data yet.
func (r *Reducer) Order(id string) (OrderAggregate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, tracked := r.orders[id]
	if !tracked || agg == nil {
		return OrderAggregate{}, false
	}
	return agg.Clone(), true
}

// Queue returns a clone of one tracked vendor queue.
func (r *Reducer) Queue(vendorID string) (VendorQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[vendorID]
	if !ok {
		return VendorQueue{}, false
	}
	return q.Clone(), true
}

// Statuses returns the fingerprint input: one entry per sub-order of every
// tracked order, plus an empty-status entry for each order awaiting data.
func (r *Reducer) Statuses() []IDStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]IDStatus, 0, len(r.orders))
	for id, agg := range r.orders {
		if agg == nil || len(agg.SubOrders) == 0 {
			out = append(out, IDStatus{ID: id})
			continue
		}
		for _, so := range agg.SubOrders {
			out = append(out, IDStatus{ID: so.ID, Status: so.Status})
		}
	}
	return out
}

// Fingerprint is a stable string over the current sub-order statuses. Demand
// is re-evaluated only when this changes.
func Fingerprint(statuses []IDStatus) string {
	pairs := make([]string, len(statuses))
	for i, s := range statuses {
		pairs[i] = s.ID + ":" + string(s.Status)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// statusRank orders statuses by lifecycle progress. Used to reject regressions
// when deltas carry no timestamps.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusAccepted:
		return 1
	case StatusPreparing:
		return 2
	case StatusReady:
		return 3
	case StatusCompleted, StatusRejected, StatusCancelled:
		return 4
	}
	return 0
}

// supersedes reports whether the delta should overwrite the current sub-order
// state. Timestamped deltas win on recency; untimestamped ones win only when
// they do not regress the status ladder. Equal deltas always win, which keeps
// the merge idempotent.
func supersedes(d StatusDelta, cur SubOrder) bool {
	if d.UpdatedAt != 0 && cur.UpdatedAt != 0 {
		return d.UpdatedAt >= cur.UpdatedAt
	}
	return statusRank(d.Status) >= statusRank(cur.Status)
}

// ApplyStatus merges one status delta. Deltas for untracked orders are
// dropped. Returns true when the aggregate or a queue actually changed.
func (r *Reducer) ApplyStatus(d StatusDelta) bool {
	if !d.Status.IsValid() {
		r.logger.Warn("dropping delta with unknown status",
			"order", d.ParentOrderID,
			"status", d.Status,
		)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.applyToOrderLocked(d)
	if r.applyToQueueLocked(d) {
		changed = true
	}
	return changed
}

// applyToOrderLocked merges the delta into the tracked parent aggregate.
func (r *Reducer) applyToOrderLocked(d StatusDelta) bool {
	agg, tracked := r.orders[d.ParentOrderID]
	if !tracked {
		r.logger.Debug("dropping delta for untracked order",
			"order", d.ParentOrderID,
			"sub_order", d.SubOrderID,
		)
		return false
	}
	if agg == nil {
		agg = &OrderAggregate{ID: d.ParentOrderID}
		r.orders[d.ParentOrderID] = agg
	}

	idx := -1
	for i := range agg.SubOrders {
		if agg.SubOrders[i].ID == d.SubOrderID {
			idx = i
			break
		}
	}

	if idx < 0 {
		// First sight of this sub-order: a new-order event may still be in
		// flight or lost across a reconnect.
		agg.SubOrders = append(agg.SubOrders, subOrderFromDelta(d))
		agg.Summary = ComputeSummary(agg.SubOrders)
		return true
	}

	cur := agg.SubOrders[idx]
	if !supersedes(d, cur) {
		return false
	}

	merged := cur
	merged.Status = d.Status
	if d.VendorID != "" {
		merged.VendorID = d.VendorID
	}
	if d.Reason != "" {
		merged.Reason = d.Reason
	}
	if d.RefundID != "" {
		merged.RefundID = d.RefundID
	}
	if d.RefundAmount != 0 {
		merged.RefundAmount = d.RefundAmount
	}
	if d.UpdatedAt != 0 {
		merged.UpdatedAt = d.UpdatedAt
	}

	if merged == cur {
		return false
	}
	agg.SubOrders[idx] = merged
	agg.Summary = ComputeSummary(agg.SubOrders)
	return true
}

// applyToQueueLocked repositions the sub-order in the vendor queue view, if
// that vendor is tracked.
func (r *Reducer) applyToQueueLocked(d StatusDelta) bool {
	if d.VendorID == "" {
		return false
	}
	q, ok := r.queues[d.VendorID]
	if !ok {
		return false
	}

	if d.Status.IsTerminal() {
		return q.remove(d.SubOrderID)
	}
	q.place(QueueEntry{
		SubOrderID:    d.SubOrderID,
		ParentOrderID: d.ParentOrderID,
		Status:        d.Status,
		PlacedAt:      d.UpdatedAt,
	})
	return true
}

func subOrderFromDelta(d StatusDelta) SubOrder {
	return SubOrder{
		ID:           d.SubOrderID,
		VendorID:     d.VendorID,
		Status:       d.Status,
		Reason:       d.Reason,
		RefundID:     d.RefundID,
		RefundAmount: d.RefundAmount,
		UpdatedAt:    d.UpdatedAt,
	}
}

// ApplyCompleted marks every still-live sub-order of the parent completed.
// Sub-orders already rejected or cancelled keep their terminal status.
func (r *Reducer) ApplyCompleted(parentOrderID string, updatedAt int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, tracked := r.orders[parentOrderID]
	if !tracked || agg == nil {
		r.logger.Debug("dropping completion for untracked order", "order", parentOrderID)
		return false
	}

	changed := false
	for i := range agg.SubOrders {
		so := &agg.SubOrders[i]
		if so.Status.IsTerminal() {
			continue
		}
		so.Status = StatusCompleted
		if updatedAt != 0 {
			so.UpdatedAt = updatedAt
		}
		changed = true

		if q, ok := r.queues[so.VendorID]; ok {
			q.remove(so.ID)
		}
	}
	if changed {
		agg.Summary = ComputeSummary(agg.SubOrders)
	}
	return changed
}

// ApplyNewSubOrder adds a freshly created sub-order to its tracked parent and
// to the vendor queue. Idempotent: a duplicate event updates in place.
func (r *Reducer) ApplyNewSubOrder(parentOrderID string, so SubOrder) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false

	if agg, tracked := r.orders[parentOrderID]; tracked {
		if agg == nil {
			agg = &OrderAggregate{ID: parentOrderID}
			r.orders[parentOrderID] = agg
		}
		idx := -1
		for i := range agg.SubOrders {
			if agg.SubOrders[i].ID == so.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			agg.SubOrders = append(agg.SubOrders, so)
			changed = true
		} else if agg.SubOrders[idx] != so {
			agg.SubOrders[idx] = so
			changed = true
		}
		if changed {
			agg.Summary = ComputeSummary(agg.SubOrders)
		}
	}

	if q, ok := r.queues[so.VendorID]; ok {
		q.place(QueueEntry{
			SubOrderID:    so.ID,
			ParentOrderID: parentOrderID,
			Status:        so.Status,
			PlacedAt:      so.UpdatedAt,
		})
		changed = true
	}

	return changed
}

// ApplyNewOrder installs a newly created parent order. New orders arrive on
// the user room for the watcher's own user, so they start tracked.
func (r *Reducer) ApplyNewOrder(agg OrderAggregate) bool {
	clone := agg.Clone()
	clone.Summary = ComputeSummary(clone.SubOrders)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.orders[clone.ID]; ok && existing != nil {
		return false
	}
	r.orders[clone.ID] = &clone
	return true
}

// ApplyRemoved removes a sub-order from a vendor queue entirely.
func (r *Reducer) ApplyRemoved(vendorID, subOrderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[vendorID]
	if !ok {
		r.logger.Debug("dropping removal for untracked vendor", "vendor", vendorID)
		return false
	}
	return q.remove(subOrderID)
}

// ApplyQueueUpdate replaces one section of a vendor queue wholesale.
func (r *Reducer) ApplyQueueUpdate(vendorID string, section Section, entries []QueueEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[vendorID]
	if !ok {
		r.logger.Debug("dropping queue update for untracked vendor", "vendor", vendorID)
		return false
	}
	q.replaceSection(section, entries)
	return true
}
