// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Plan submission, run reports and cancellation
//   - Registered agent discovery
//   - Health checks
//   - Prometheus metrics
package http
