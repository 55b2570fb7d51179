// File path: internal/api/audit_handler.go
package api

import (
	"errors"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/careatlas/nlsql/internal/audit"
)

func (s *Server) handleAuditTrace(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		writeError(w, http.StatusBadRequest, errBadInput, "request id required", nil)
		return
	}
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, errInternal, "audit store not configured", nil)
		return
	}
	trace, err := s.audit.RequestTrace(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, errAuditRecordNotFound, "no audit record for "+requestID, nil)
			return
		}
		writeError(w, http.StatusInternalServerError, errInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}
