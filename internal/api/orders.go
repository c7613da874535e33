package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/foodsquare/orderlive/internal/order"
)

// UserOrdersResponse is the payload of GET /v1/users/{id}/orders.
type UserOrdersResponse struct {
	Orders []order.OrderAggregate `json:"orders"`
}

// OrderResponse is the payload of GET /v1/orders/{id}.
type OrderResponse struct {
	Order order.OrderAggregate `json:"order"`
}

// VendorQueueResponse is the payload of GET /v1/vendors/{id}/queue.
type VendorQueueResponse struct {
	Queue order.VendorQueue `json:"queue"`
}

// GetUserOrders fetches the active orders for a user. activeOnly limits the
// response to orders with at least one live sub-order.
func (c *Client) GetUserOrders(ctx context.Context, userID string, activeOnly bool) ([]order.OrderAggregate, error) {
	query := url.Values{}
	if activeOnly {
		query.Set("active", "true")
	}

	var resp UserOrdersResponse
	path := fmt.Sprintf("/v1/users/%s/orders", url.PathEscape(userID))
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetOrder fetches one parent order with its sub-orders.
func (c *Client) GetOrder(ctx context.Context, orderID string) (order.OrderAggregate, error) {
	var resp OrderResponse
	path := fmt.Sprintf("/v1/orders/%s", url.PathEscape(orderID))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return order.OrderAggregate{}, err
	}
	return resp.Order, nil
}

// GetVendorQueue fetches a vendor's live queue snapshot.
func (c *Client) GetVendorQueue(ctx context.Context, vendorID string) (order.VendorQueue, error) {
	var resp VendorQueueResponse
	path := fmt.Sprintf("/v1/vendors/%s/queue", url.PathEscape(vendorID))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return order.VendorQueue{}, err
	}
	return resp.Queue, nil
}
