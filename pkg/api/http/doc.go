// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Synchronous plan execution
//   - Asynchronous submission, status, result and cancellation
//   - Capability listing
//   - Health checks
//   - Prometheus metrics
//
// Requests under /api/v1 carry the tenant in the X-Tenant-ID header and are
// rate limited per tenant.
package http
