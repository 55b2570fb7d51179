// File path: internal/api/query_handler.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/careatlas/nlsql/internal/agent"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadInput, "invalid JSON body: "+err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, errBadInput, "question required", nil)
		return
	}

	result, err := s.orchestrator.Generate(r.Context(), agent.Request{
		Question: req.Question,
		UserID:   req.UserID,
		Model:    req.Model,
	})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, errBadInput, err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, errInternal, err.Error(), nil)
		return
	}

	metadata := generateMetadata{
		RequestID:  result.RequestID,
		Model:      result.Model,
		Tokens:     result.Tokens,
		DurationMS: result.Duration.Milliseconds(),
		SnapshotID: result.SnapshotID,
		Iterations: result.Iterations,
		State:      string(result.State),
	}

	switch result.State {
	case agent.StateCompleted, agent.StateForcedCompletion:
		writeJSON(w, http.StatusOK, generateResponse{
			OK:          true,
			SQL:         result.SQL,
			Explanation: result.Explanation,
			Metadata:    metadata,
		})
	case agent.StateTimedOut:
		writeError(w, http.StatusGatewayTimeout, errUpstreamTimeout, result.Err,
			map[string]interface{}{"metadata": metadata, "trace": result.Records})
	case agent.StateFailed:
		switch result.Failure {
		case agent.FailureValidation:
			writeError(w, http.StatusUnprocessableEntity, errValidationRejected, result.Err,
				map[string]interface{}{"violations": result.Violations, "metadata": metadata})
		case agent.FailureTool:
			writeError(w, http.StatusBadGateway, errToolExecution, result.Err,
				map[string]interface{}{"metadata": metadata})
		default:
			writeError(w, http.StatusInternalServerError, errInternal, result.Err,
				map[string]interface{}{"metadata": metadata})
		}
	default:
		// Fail closed: an unexpected state never leaks a partial query.
		writeError(w, http.StatusInternalServerError, errInternal,
			"unexpected terminal state "+string(result.State), nil)
	}
}
