// File path: internal/validator/validator.go
package validator

import (
	"context"

	"github.com/careatlas/nlsql/internal/common"
)

// RuleVersion tags every verdict so audit records stay comparable across
// validator revisions. Bump it whenever a rule changes behaviour.
const RuleVersion = "2026.08-1"

// ViolationCode identifies one triggered rejection rule.
type ViolationCode string

const (
	ViolationEmptyQuery       ViolationCode = "EMPTY_QUERY"
	ViolationNotASelect       ViolationCode = "NOT_A_SELECT"
	ViolationForbiddenKeyword ViolationCode = "FORBIDDEN_KEYWORD"
	ViolationMultiStatement   ViolationCode = "MULTI_STATEMENT"
	ViolationVolatileFunction ViolationCode = "VOLATILE_FUNCTION"
	ViolationLockingClause    ViolationCode = "LOCKING_CLAUSE"
	ViolationRowCapInvalid    ViolationCode = "ROW_CAP_INVALID"
	ViolationTooManyJoins     ViolationCode = "TOO_MANY_JOINS"
	ViolationSubqueryTooDeep  ViolationCode = "SUBQUERY_TOO_DEEP"
	ViolationTooManyAggs      ViolationCode = "TOO_MANY_AGGREGATES"
	ViolationPlanCheckFailed  ViolationCode = "PLAN_CHECK_FAILED"
	ViolationPlanNotReadOnly  ViolationCode = "PLAN_NOT_READ_ONLY"
	ViolationPlanTimeout      ViolationCode = "PLAN_TIMEOUT"
)

// Verdict is the validator's outcome for one candidate query. Verdicts are
// produced fresh per candidate and never cached.
type Verdict struct {
	Accepted        bool            `json:"accepted"`
	NormalizedQuery string          `json:"normalized_query,omitempty"`
	Violations      []ViolationCode `json:"violations,omitempty"`
	RuleVersion     string          `json:"rule_version"`
}

// PlanRunner performs the plan-only dry run of stage two. It must run on a
// connection pinned to read-only semantics with a short statement timeout.
type PlanRunner interface {
	ExplainJSON(ctx context.Context, query string) (string, error)
}

// Validator is the two-stage gate every candidate query must pass before it
// is trusted: static pattern rejection first, then a dynamic read-only plan
// check.
type Validator struct {
	cfg  Config
	plan PlanRunner
}

// New wires a validator. A nil plan runner skips stage two, which is only
// acceptable in tests.
func New(cfg Config, plan PlanRunner) *Validator {
	cfg.applyDefaults()
	return &Validator{cfg: cfg, plan: plan}
}

type callOptions struct {
	maxRows int
}

// Option adjusts a single Validate call.
type Option func(*callOptions)

// WithMaxRows lowers the row cap for this call. The exploratory-read tool
// uses it to clamp harder than the final-answer path. Values above the
// configured maximum are ignored.
func WithMaxRows(n int) Option {
	return func(o *callOptions) {
		if n > 0 {
			o.maxRows = n
		}
	}
}

// Validate runs both stages and reports every triggered violation. Stage two
// only runs when stage one passed: a statically unsafe query never reaches
// the data source, even for planning.
func (v *Validator) Validate(ctx context.Context, query string, opts ...Option) Verdict {
	call := callOptions{maxRows: v.cfg.MaxRows}
	for _, opt := range opts {
		opt(&call)
	}
	if call.maxRows > v.cfg.MaxRows {
		call.maxRows = v.cfg.MaxRows
	}

	normalized, violations := v.staticCheck(query, call.maxRows)
	if len(violations) > 0 {
		common.Logger().Debug("validator: static rejection",
			"violations", len(violations), "rule_version", RuleVersion)
		return Verdict{Violations: violations, RuleVersion: RuleVersion}
	}
	if v.plan != nil {
		if code, ok := v.planCheck(ctx, normalized); !ok {
			common.Logger().Debug("validator: plan rejection", "code", string(code))
			return Verdict{Violations: []ViolationCode{code}, RuleVersion: RuleVersion}
		}
	}
	return Verdict{Accepted: true, NormalizedQuery: normalized, RuleVersion: RuleVersion}
}
