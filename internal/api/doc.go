// Package api provides the REST client used to seed live aggregate state.
//
// The platform's CRUD layer serves the authoritative order and vendor-queue
// snapshots; the watcher fetches them here before live deltas start arriving.
//
// Endpoints:
//   - GET /v1/users/{id}/orders — active orders for one user
//   - GET /v1/orders/{id} — one parent order with its sub-orders
//   - GET /v1/vendors/{id}/queue — a vendor's live queue, segmented
package api
