// Package metrics exposes the bridge's Prometheus instrumentation.
//
// All collectors are registered on a caller-supplied registry so tests and
// multiple sessions never collide on the default registry. The HTTP API
// serves the same registry at /metrics.
package metrics
