package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/ovms-bridge/internal/audit"
	"github.com/nerrad567/ovms-bridge/internal/command"
)

// maxCommandTimeout caps the per-request timeout.
const maxCommandTimeout = 120 * time.Second

// CommandRequest is the body of POST /api/v1/commands.
type CommandRequest struct {
	Command    string `json:"command"`
	Parameters string `json:"parameters,omitempty"`

	// Timeout in seconds; zero uses command.timeout from configuration.
	Timeout float64 `json:"timeout,omitempty"`
}

// handleSendCommand sends a command to the vehicle module and waits for its
// reply. The body is always the command.Result; the status reflects the
// outcome.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeBadRequest(w, "command is required")
		return
	}
	if req.Timeout < 0 || math.IsNaN(req.Timeout) {
		writeBadRequest(w, "timeout must not be negative")
		return
	}
	timeout := min(time.Duration(req.Timeout*float64(time.Second)), maxCommandTimeout)

	subject := ""
	if c := claimsFrom(r.Context()); c != nil {
		subject = c.Subject
	}
	s.logger.Info("command requested", "command", req.Command, "subject", subject,
		"request_id", r.Context().Value(ctxKeyRequestID))

	started := time.Now()
	res := s.vehicle.SendCommand(r.Context(), req.Command, req.Parameters, timeout)
	s.recordCommand(r.Context(), subject, res, time.Since(started))

	status := commandStatus(res)
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
	}
	writeJSON(w, status, res)
}

// commandStatus maps a command outcome to an HTTP status.
func commandStatus(res command.Result) int {
	switch res.Outcome {
	case command.OutcomeReplied:
		return http.StatusOK
	case command.OutcomeTimedOut:
		return http.StatusGatewayTimeout
	case command.OutcomeRejected:
		switch {
		case errors.Is(res.Err, command.ErrRateLimited):
			return http.StatusTooManyRequests
		case errors.Is(res.Err, command.ErrEmptyCommand):
			return http.StatusBadRequest
		case errors.Is(res.Err, command.ErrPublishFailed):
			return http.StatusBadGateway
		default:
			return http.StatusServiceUnavailable
		}
	default:
		// expired or canceled
		return http.StatusServiceUnavailable
	}
}

// recordCommand writes the outcome to the command log. Failures are logged
// and never change the response.
func (s *Server) recordCommand(ctx context.Context, subject string, res command.Result, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		VehicleID:  s.vehicleID,
		Command:    res.Command,
		Parameters: res.Parameters,
		CommandID:  res.CommandID,
		Subject:    subject,
		Source:     audit.SourceAPI,
		Outcome:    string(res.Outcome),
		Success:    res.Success,
		Response:   responseText(res.Response),
		Error:      res.Error,
		DurationMS: elapsed.Milliseconds(),
	}
	// The request context may already be gone when the client hung up.
	if err := s.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("recording command failed", "command", res.Command, "error", err)
	}
}

// responseText renders a decoded reply for storage.
func responseText(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// handleListCommands returns the command log, newest first.
// Supports ?command, ?outcome, ?subject, ?limit and ?offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeUnavailable, "command log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Command: q.Get("command"),
		Outcome: q.Get("outcome"),
		Subject: q.Get("subject"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command log failed", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
