// File path: internal/agent/tools.go
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tmc/langchaingo/llms"

	"github.com/careatlas/nlsql/internal/common"
	"github.com/careatlas/nlsql/internal/validator"
)

// Tool names form a closed set; dispatch pattern-matches on them instead of
// looking handlers up in a registry.
const (
	toolLookupText   = "lookup_text"
	toolExploreQuery = "run_exploratory_query"
	toolFinalize     = "finalize_query"
)

type lookupTextParams struct {
	Term  string `json:"term"`
	Limit int    `json:"limit,omitempty"`
}

type exploreQueryParams struct {
	Query         string `json:"query"`
	Justification string `json:"justification"`
}

type finalizeParams struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
}

// toolDefinitions advertises the callable tools to the reasoning engine.
// finalize_query is listed too, but it is the orchestrator's own terminal
// transition trigger rather than an executable lookup.
func toolDefinitions(lookupColumn string) []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: toolLookupText,
				Description: fmt.Sprintf(
					"Fuzzy-match a term against the %s column and return the closest stored values with similarity scores. Use it to resolve how an ambiguous term is actually spelled in the data.",
					lookupColumn),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"term":  map[string]any{"type": "string", "description": "search term to match"},
						"limit": map[string]any{"type": "integer", "description": "maximum matches to return"},
					},
					"required": []string{"term"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        toolExploreQuery,
				Description: "Run a small read-only exploratory SQL query to inspect real data before finalizing. The query is validated and row-capped; a justification is required and audited.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":         map[string]any{"type": "string", "description": "read-only SELECT to execute"},
						"justification": map[string]any{"type": "string", "description": "why this lookup is needed"},
					},
					"required": []string{"query", "justification"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        toolFinalize,
				Description: "Submit the final read-only SQL query answering the user's question, with a short explanation.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sql":         map[string]any{"type": "string", "description": "final SELECT statement"},
						"explanation": map[string]any{"type": "string", "description": "one sentence on what the query returns"},
					},
					"required": []string{"sql"},
				},
			},
		},
	}
}

// ToolExecutor runs the exploration tools against the capped read pool. The
// fuzzy lookup is privileged (fixed parameterized shape, no free-form SQL);
// the exploratory read always goes through the validator first with the
// smaller exploratory row cap.
type ToolExecutor struct {
	db        *sqlx.DB
	validator *validator.Validator
	cfg       Config
}

// NewToolExecutor wires the exploration tools.
func NewToolExecutor(db *sqlx.DB, v *validator.Validator, cfg Config) *ToolExecutor {
	cfg.applyDefaults()
	return &ToolExecutor{db: db, validator: v, cfg: cfg}
}

// Execute dispatches one tool call and returns the feedback string appended
// to the conversation. Tool failures come back as feedback, not as errors:
// the loop continues and the engine decides what to do with them. The error
// return is reserved for unrecoverable executor state.
func (e *ToolExecutor) Execute(ctx context.Context, call llms.ToolCall) (string, error) {
	if call.FunctionCall == nil {
		return "tool call missing function payload", nil
	}
	switch call.FunctionCall.Name {
	case toolLookupText:
		var params lookupTextParams
		if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &params); err != nil {
			return fmt.Sprintf("invalid %s arguments: %v", toolLookupText, err), nil
		}
		return e.lookupText(ctx, params)
	case toolExploreQuery:
		var params exploreQueryParams
		if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &params); err != nil {
			return fmt.Sprintf("invalid %s arguments: %v", toolExploreQuery, err), nil
		}
		return e.exploreQuery(ctx, params)
	default:
		return fmt.Sprintf("unknown tool %q; available tools: %s, %s, %s",
			call.FunctionCall.Name, toolLookupText, toolExploreQuery, toolFinalize), nil
	}
}

type lookupMatch struct {
	Match string  `json:"match" db:"match"`
	Score float64 `json:"score" db:"score"`
}

// lookupText performs the similarity-ranked match against the designated
// free-text column. The statement shape is fixed and parameterized, which is
// why this tool may bypass the validator. The limit is clamped regardless of
// what the engine asked for.
func (e *ToolExecutor) lookupText(ctx context.Context, params lookupTextParams) (string, error) {
	term := strings.TrimSpace(params.Term)
	if term == "" {
		return "lookup_text requires a non-empty term", nil
	}
	if e.db == nil {
		return "", fmt.Errorf("exploratory pool not configured")
	}
	limit := params.Limit
	if limit <= 0 || limit > e.cfg.LookupLimit {
		limit = e.cfg.LookupLimit
	}
	query := fmt.Sprintf(
		"SELECT %s AS match, similarity(%s, $1) AS score FROM %s WHERE %s %% $1 ORDER BY score DESC, match ASC LIMIT $2",
		pq.QuoteIdentifier(e.cfg.LookupColumn),
		pq.QuoteIdentifier(e.cfg.LookupColumn),
		pq.QuoteIdentifier(e.cfg.LookupTable),
		pq.QuoteIdentifier(e.cfg.LookupColumn),
	)
	var matches []lookupMatch
	if err := e.db.SelectContext(ctx, &matches, query, term, limit); err != nil {
		common.Logger().Warn("agent: fuzzy lookup failed", "term", term, "error", err)
		return fmt.Sprintf("lookup failed: %v", err), nil
	}
	if len(matches) == 0 {
		return fmt.Sprintf("no matches for %q", term), nil
	}
	payload, err := json.Marshal(matches)
	if err != nil {
		return "", fmt.Errorf("encode lookup matches: %w", err)
	}
	return string(payload), nil
}

// exploreQuery routes the free-form read through the validator with the
// exploratory row cap, then executes the normalized text. Rejections are
// surfaced as feedback so the engine can adjust instead of aborting the
// whole request.
func (e *ToolExecutor) exploreQuery(ctx context.Context, params exploreQueryParams) (string, error) {
	if strings.TrimSpace(params.Justification) == "" {
		return "run_exploratory_query requires a justification", nil
	}
	if e.validator == nil {
		return "", fmt.Errorf("validator not configured")
	}
	verdict := e.validator.Validate(ctx, params.Query, validator.WithMaxRows(e.cfg.ExploratoryRows))
	if !verdict.Accepted {
		return rejectionFeedback(verdict), nil
	}
	if e.db == nil {
		return "", fmt.Errorf("exploratory pool not configured")
	}
	rows, err := e.db.QueryxContext(ctx, verdict.NormalizedQuery)
	if err != nil {
		common.Logger().Warn("agent: exploratory query failed", "error", err)
		return fmt.Sprintf("query failed: %v", err), nil
	}
	defer rows.Close()
	var out []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return fmt.Sprintf("scan failed: %v", err), nil
		}
		for key, value := range row {
			if raw, ok := value.([]byte); ok {
				row[key] = string(raw)
			}
		}
		out = append(out, row)
		// The normalized query already carries the cap; this is the
		// belt-and-braces bound on what reaches the conversation.
		if len(out) >= e.cfg.ExploratoryRows {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Sprintf("query failed: %v", err), nil
	}
	if len(out) == 0 {
		return "query returned no rows", nil
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode exploratory rows: %w", err)
	}
	return string(payload), nil
}

func rejectionFeedback(verdict validator.Verdict) string {
	codes := make([]string, 0, len(verdict.Violations))
	for _, code := range verdict.Violations {
		codes = append(codes, string(code))
	}
	return fmt.Sprintf("query rejected by validator (%s): %s; revise the statement and try again",
		verdict.RuleVersion, strings.Join(codes, ", "))
}
