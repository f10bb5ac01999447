// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Schema management, validation and publication
//   - Execution create/start/cancel/query/cleanup
//   - Per-execution progress as a Server-Sent Events stream
//   - Health checks
//   - Prometheus metrics
package http
