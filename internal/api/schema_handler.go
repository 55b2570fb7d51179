// File path: internal/api/schema_handler.go
package api

import (
	"net/http"
	"time"
)

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	manifest := s.cache.Current()
	if manifest == nil {
		writeError(w, http.StatusServiceUnavailable, errInternal, "schema manifest not warmed yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, schemaSummary{
		SnapshotID: manifest.SnapshotID,
		BuiltAt:    manifest.BuiltAt.Format(time.RFC3339),
		Tables:     manifest.TableNames(),
	})
}

func (s *Server) handleSchemaBust(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" {
		writeError(w, http.StatusForbidden, errInvalidCredentials,
			"cache bust disabled: NLSQL_ADMIN_TOKEN not configured", nil)
		return
	}
	if r.Header.Get("X-Admin-Token") != s.adminToken {
		writeError(w, http.StatusUnauthorized, errInvalidCredentials, "invalid admin token", nil)
		return
	}
	result, err := s.invalidator.Bust(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
