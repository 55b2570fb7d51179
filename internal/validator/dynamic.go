// File path: internal/validator/dynamic.go
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PGPlanRunner runs EXPLAIN (FORMAT JSON) on a pool whose DSN pins
// default_transaction_read_only=on and a short statement_timeout. The pinned
// session is the second line of defense behind the static stage.
type PGPlanRunner struct {
	db *sqlx.DB
}

func NewPGPlanRunner(db *sqlx.DB) *PGPlanRunner {
	return &PGPlanRunner{db: db}
}

func (r *PGPlanRunner) ExplainJSON(ctx context.Context, query string) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("plan runner not initialised")
	}
	var plan string
	if err := r.db.QueryRowxContext(ctx, "EXPLAIN (FORMAT JSON) "+query).Scan(&plan); err != nil {
		return "", err
	}
	return plan, nil
}

// planCheck runs the dry run and classifies the outcome. Any error is a
// rejection; a timeout gets its own code so audits can tell starvation from
// malformed SQL.
func (v *Validator) planCheck(ctx context.Context, query string) (ViolationCode, bool) {
	planCtx, cancel := context.WithTimeout(ctx, v.cfg.StatementTimeout)
	defer cancel()
	plan, err := v.plan.ExplainJSON(planCtx, query)
	if err != nil {
		if isTimeout(err) {
			return ViolationPlanTimeout, false
		}
		return ViolationPlanCheckFailed, false
	}
	if !planIsReadOnly(plan) {
		return ViolationPlanNotReadOnly, false
	}
	return "", true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 57014 query_canceled: the pinned statement_timeout fired.
		return pqErr.Code == "57014"
	}
	return false
}

// mutatingNodeTypes are plan nodes that move or change data.
var mutatingNodeTypes = map[string]struct{}{
	"ModifyTable": {},
	"Insert":      {},
	"Update":      {},
	"Delete":      {},
	"Merge":       {},
	"LockRows":    {},
}

// planIsReadOnly walks the JSON plan tree and rejects any mutating node. An
// unparsable plan fails closed.
func planIsReadOnly(plan string) bool {
	var parsed interface{}
	if err := json.Unmarshal([]byte(plan), &parsed); err != nil {
		return false
	}
	return walkPlan(parsed)
}

func walkPlan(node interface{}) bool {
	switch value := node.(type) {
	case map[string]interface{}:
		if nodeType, ok := value["Node Type"].(string); ok {
			key := strings.TrimSpace(nodeType)
			if _, bad := mutatingNodeTypes[key]; bad {
				return false
			}
		}
		if op, ok := value["Operation"].(string); ok {
			switch strings.ToLower(op) {
			case "insert", "update", "delete", "merge":
				return false
			}
		}
		for _, child := range value {
			if !walkPlan(child) {
				return false
			}
		}
	case []interface{}:
		for _, child := range value {
			if !walkPlan(child) {
				return false
			}
		}
	}
	return true
}
