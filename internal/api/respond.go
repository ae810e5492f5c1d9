package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AhsanAkhlaq/skewplay/internal/dataset"
	"github.com/AhsanAkhlaq/skewplay/internal/engine"
	"github.com/AhsanAkhlaq/skewplay/internal/quota"
	"github.com/AhsanAkhlaq/skewplay/internal/session"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
	"github.com/AhsanAkhlaq/skewplay/internal/workflow"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps a domain error onto an HTTP status. Unrecognized
// errors are logged and reported as 500 with the fallback message so internal
// detail does not leak to the client.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, store.ErrUserNotFound):
		s.writeError(w, http.StatusUnauthorized, "unknown user")
	case errors.Is(err, store.ErrDatasetNotFound):
		s.writeError(w, http.StatusNotFound, "dataset not found")
	case errors.Is(err, store.ErrWorkflowNotFound):
		s.writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, dataset.ErrSampleReadOnly):
		s.writeError(w, http.StatusForbidden, "sample datasets are read-only")
	case errors.Is(err, quota.ErrQuotaExceeded):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrWorkflowLimit):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrUnavailable):
		s.writeError(w, http.StatusBadGateway, "compute engine unavailable")
	case errors.Is(err, engine.ErrBadResponse):
		s.writeError(w, http.StatusBadGateway, "compute engine returned a malformed response")
	default:
		s.logger.Error(fallback, "error", err)
		s.writeError(w, http.StatusInternalServerError, fallback)
	}
}
