package order

// -----------------------------------------------------------------------------
// Status Vocabulary
// -----------------------------------------------------------------------------

// Status is the lifecycle state of a single sub-order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further updates are expected for this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady,
		StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Customer View
// -----------------------------------------------------------------------------

// SubOrder is one vendor's portion of a multi-vendor parent order.
type SubOrder struct {
	ID       string `json:"id"`
	VendorID string `json:"vendorId"`
	Status   Status `json:"status"`

	// Rejection details (set only when Status == rejected)
	Reason       string `json:"reason,omitempty"`
	RefundID     string `json:"refundId,omitempty"`
	RefundAmount int64  `json:"refundAmount,omitempty"` // Cents

	UpdatedAt int64 `json:"updatedAt,omitempty"` // Unix milliseconds
}

// Summary holds derived counts over an aggregate's sub-orders.
// Always recomputed from the sub-order list, never mutated independently.
type Summary struct {
	Pending   int
	Accepted  int
	Preparing int
	Ready     int
	Completed int
	Rejected  int
	Cancelled int
	Overall   Status
}

// OrderAggregate is the live view of one parent order.
type OrderAggregate struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	SubOrders []SubOrder `json:"subOrders"`
	Summary   Summary    `json:"-"`
}

// Clone returns a deep copy safe to hand to consumers.
func (a *OrderAggregate) Clone() OrderAggregate {
	out := *a
	out.SubOrders = make([]SubOrder, len(a.SubOrders))
	copy(out.SubOrders, a.SubOrders)
	return out
}

// AllTerminal reports whether every sub-order has reached a terminal status.
// An aggregate with no sub-orders is not terminal: data has not arrived yet.
func (a *OrderAggregate) AllTerminal() bool {
	if len(a.SubOrders) == 0 {
		return false
	}
	for _, so := range a.SubOrders {
		if !so.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// ComputeSummary derives summary counts and the overall status from the
// current sub-order list.
func ComputeSummary(subs []SubOrder) Summary {
	var s Summary
	for _, so := range subs {
		switch so.Status {
		case StatusPending:
			s.Pending++
		case StatusAccepted:
			s.Accepted++
		case StatusPreparing:
			s.Preparing++
		case StatusReady:
			s.Ready++
		case StatusCompleted:
			s.Completed++
		case StatusRejected:
			s.Rejected++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	s.Overall = overallStatus(s, len(subs))
	return s
}

// overallStatus collapses per-status counts into one parent-order status.
// While any sub-order is live, the overall status is the least-advanced live
// status; once every sub-order is terminal, a single completion outranks
// rejections and cancellations.
func overallStatus(s Summary, total int) Status {
	if total == 0 {
		return StatusPending
	}
	terminal := s.Completed + s.Rejected + s.Cancelled
	if terminal == total {
		switch {
		case s.Completed > 0:
			return StatusCompleted
		case s.Rejected > 0:
			return StatusRejected
		default:
			return StatusCancelled
		}
	}
	switch {
	case s.Pending > 0:
		return StatusPending
	case s.Accepted > 0:
		return StatusAccepted
	case s.Preparing > 0:
		return StatusPreparing
	default:
		return StatusReady
	}
}

// -----------------------------------------------------------------------------
// Deltas
// -----------------------------------------------------------------------------

// StatusDelta is one inbound status change, consumed once and folded into an
// OrderAggregate.
type StatusDelta struct {
	ParentOrderID string `json:"parentOrderId"`
	SubOrderID    string `json:"subOrderId"`
	VendorID      string `json:"vendorId,omitempty"`
	Status        Status `json:"status"`

	// Rejection-specific fields
	Reason       string `json:"reason,omitempty"`
	RefundID     string `json:"refundId,omitempty"`
	RefundAmount int64  `json:"refundAmount,omitempty"`

	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// IDStatus is one entry of the watched-order fingerprint input.
type IDStatus struct {
	ID     string
	Status Status
}
