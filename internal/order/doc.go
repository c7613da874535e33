// Package order implements the order data model and the Event Reducer.
//
// The reducer:
//   - Tracks OrderAggregates (customer view) and VendorQueues (vendor view)
//   - Folds inbound status deltas into aggregates with last-write-wins merges
//   - Recomputes derived summary counts from scratch after every merge
//   - Drops deltas for orders that are not tracked
package order
