package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/store"
	"github.com/nerrad567/ovms-bridge/internal/vehicle"
)

// handleListObjects returns all objects, optionally filtered by
// ?type=scalar|boolean|actuator|positional_fix and ?category=battery.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	category := r.URL.Query().Get("category")

	objects := s.vehicle.Objects()
	if typ != "" || category != "" {
		objects = slices.DeleteFunc(objects, func(o *entity.Object) bool {
			return (typ != "" && string(o.Type) != typ) || (category != "" && o.Category != category)
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	obj, ok := s.vehicle.Object(id)
	if !ok {
		writeNotFound(w, "object not found")
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// handleObjectBinding returns the registry view of an object.
func (s *Server) handleObjectBinding(w http.ResponseWriter, r *http.Request) {
	b, ok := s.vehicle.Binding(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "object not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleObjectHistory returns recorded value changes, newest first.
// ?limit defaults to 50 and is capped at 200.
func (s *Server) handleObjectHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.vehicle.Object(id); !ok {
		writeNotFound(w, "object not found")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.vehicle.History(r.Context(), id, limit)
	switch {
	case errors.Is(err, vehicle.ErrNoStore):
		writeError(w, http.StatusNotImplemented, ErrCodeUnavailable, "state history is not enabled")
		return
	case errors.Is(err, store.ErrObjectIDRequired):
		writeBadRequest(w, "object id is required")
		return
	case err != nil:
		s.logger.Error("loading state history failed", "id", id, "error", err)
		writeInternalError(w, "failed to load state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.vehicle.Device())
}
