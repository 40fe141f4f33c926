// Package api implements the bridge's HTTP API and WebSocket event stream.
//
// This package provides:
//   - Read endpoints for the vehicle's objects, device record and history
//   - A command endpoint carrying commands to the vehicle module, and the
//     command log recording each of them
//   - A WebSocket hub broadcasting object and connection events
//   - Prometheus scraping on the metrics path
//   - Middleware stack (request ID, logging, recovery, body limit, bearer auth)
//
// # Security
//
// POST /api/v1/commands requires a bearer JWT with the "command" scope and
// GET /api/v1/commands the "read" scope, both signed with api.auth.secret.
// Without a secret these endpoints are disabled. Object reads and the
// WebSocket stream are open.
//
// # Graceful Degradation
//
// The server keeps serving reads while the broker is unreachable. Commands
// fail fast with 503 until the session reconnects.
package api
