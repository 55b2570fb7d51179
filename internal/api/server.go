// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/careatlas/nlsql/internal/agent"
	"github.com/careatlas/nlsql/internal/audit"
	"github.com/careatlas/nlsql/internal/common"
	"github.com/careatlas/nlsql/internal/schema"
)

// Server exposes the generation, schema administration and audit endpoints.
type Server struct {
	router       chi.Router
	orchestrator *agent.Orchestrator
	cache        *schema.Cache
	invalidator  *schema.Invalidator
	audit        *audit.Store
	adminToken   string
}

// NewServer wires the handlers. The admin token guards the cache bust; it is
// read from NLSQL_ADMIN_TOKEN and the bust endpoint refuses to run without
// one configured.
func NewServer(orch *agent.Orchestrator, cache *schema.Cache, inv *schema.Invalidator, auditStore *audit.Store) *Server {
	srv := &Server{
		router:       chi.NewRouter(),
		orchestrator: orch,
		cache:        cache,
		invalidator:  inv,
		audit:        auditStore,
		adminToken:   strings.TrimSpace(os.Getenv("NLSQL_ADMIN_TOKEN")),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path,
				"dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/query/generate", s.handleGenerate)
	s.router.Get("/v1/schema", s.handleSchema)
	s.router.Post("/v1/schema/bust", s.handleSchemaBust)
	s.router.Get("/v1/audit/{requestID}", s.handleAuditTrace)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("api: request failed", "status", status, "code", code, "error", message)
	} else {
		logger.Warn("api: request failed", "status", status, "code", code, "error", message)
	}
	writeJSON(w, status, errorResponse{
		Error:   errorBody{Code: code, Message: message},
		Details: details,
	})
}
