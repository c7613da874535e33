package watch

import (
	"github.com/foodsquare/orderlive/internal/order"
)

// Inbound event names (server → client).
const (
	EventOrderStatusUpdated  = "order-status-updated"
	EventVendorOrderRejected = "vendor-order-rejected"
	EventOrderCompleted      = "order-completed"
	EventNewOrder            = "new-order"
	EventNewOrderCreated     = "new-order-created"
	EventOrderRemoved        = "order-removed"
	EventQueueUpdated        = "queue-updated"
)

// orderEventPayload is the common shape of sub-order-scoped events.
type orderEventPayload struct {
	ParentOrderID string         `json:"parentOrderId"`
	VendorID      string         `json:"vendorId,omitempty"`
	SubOrder      order.SubOrder `json:"subOrder"`

	// Rejection-specific fields (vendor-order-rejected)
	Reason       string `json:"reason,omitempty"`
	RefundID     string `json:"refundId,omitempty"`
	RefundAmount int64  `json:"refundAmount,omitempty"`

	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// delta flattens the payload into a StatusDelta for the reducer.
func (p orderEventPayload) delta() order.StatusDelta {
	d := order.StatusDelta{
		ParentOrderID: p.ParentOrderID,
		SubOrderID:    p.SubOrder.ID,
		VendorID:      p.VendorID,
		Status:        p.SubOrder.Status,
		Reason:        p.Reason,
		RefundID:      p.RefundID,
		RefundAmount:  p.RefundAmount,
		UpdatedAt:     p.UpdatedAt,
	}
	if d.VendorID == "" {
		d.VendorID = p.SubOrder.VendorID
	}
	if d.Reason == "" {
		d.Reason = p.SubOrder.Reason
	}
	if d.RefundID == "" {
		d.RefundID = p.SubOrder.RefundID
	}
	if d.RefundAmount == 0 {
		d.RefundAmount = p.SubOrder.RefundAmount
	}
	if d.UpdatedAt == 0 {
		d.UpdatedAt = p.SubOrder.UpdatedAt
	}
	return d
}

// completedPayload is the shape of order-completed.
type completedPayload struct {
	ParentOrderID string `json:"parentOrderId"`
	UpdatedAt     int64  `json:"updatedAt,omitempty"`
}

// createdPayload is the shape of new-order-created.
type createdPayload struct {
	Order order.OrderAggregate `json:"order"`
}

// removedPayload is the shape of order-removed.
type removedPayload struct {
	VendorID      string `json:"vendorId"`
	SubOrderID    string `json:"subOrderId"`
	ParentOrderID string `json:"parentOrderId,omitempty"`
}

// queuePayload is the shape of queue-updated: a bulk replacement of one
// vendor-queue section.
type queuePayload struct {
	VendorID string             `json:"vendorId"`
	Section  order.Section      `json:"section"`
	Orders   []order.QueueEntry `json:"orders"`
}

// Update is delivered to subscribers after an event changed aggregate state.
// Exactly one of Order and Queue is set.
type Update struct {
	Event string
	Order *order.OrderAggregate
	Queue *order.VendorQueue
}
