package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/ovms-bridge/internal/auth"
	"github.com/nerrad567/ovms-bridge/internal/vehicle"
)

const defaultMetricsPath = "/metrics"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics.Enabled && s.gatherer != nil {
		path := s.metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}
		r.Handle(path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/device", s.handleGetDevice)
		r.Get("/stats", s.handleStats)

		r.Route("/objects", func(r chi.Router) {
			r.Get("/", s.handleListObjects)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetObject)
				r.Get("/history", s.handleObjectHistory)
				r.Get("/binding", s.handleObjectBinding)
			})
		})

		r.With(s.authMiddleware(auth.ScopeCommand)).Post("/commands", s.handleSendCommand)
		r.With(s.authMiddleware(auth.ScopeRead)).Get("/commands", s.handleListCommands)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// healthCheckTimeout bounds each dependency check made by GET /health.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Vehicle       string            `json:"vehicle"`
	Connection    string            `json:"connection"`
	Objects       int               `json:"objects"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	WSClients     int               `json:"ws_clients"`
	Components    map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok" while the broker session and every checked
// dependency are up, "degraded" otherwise. It always answers 200 so the
// process is not restarted for a broker outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.vehicle.Stats()
	status := "ok"
	if !s.vehicle.IsConnected() {
		status = "degraded"
	}

	var components map[string]string
	if len(s.checks) > 0 {
		components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				components[name] = err.Error()
				status = "degraded"
				continue
			}
			components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       s.version,
		Vehicle:       s.vehicleID,
		Connection:    stats.Connection.State,
		Objects:       stats.Objects,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		WSClients:     s.hub.ClientCount(),
		Components:    components,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		vehicle.Stats
		WSClients int `json:"ws_clients"`
	}{s.vehicle.Stats(), s.hub.ClientCount()})
}
