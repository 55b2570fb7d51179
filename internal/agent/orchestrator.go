// File path: internal/agent/orchestrator.go
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/careatlas/nlsql/internal/common"
	ctxbuilder "github.com/careatlas/nlsql/internal/context"
	"github.com/careatlas/nlsql/internal/llm"
	"github.com/careatlas/nlsql/internal/schema"
	"github.com/careatlas/nlsql/internal/validator"
)

// State is the orchestrator's position in its lifecycle for one request.
type State string

const (
	StateInitialized      State = "initialized"
	StateIterating        State = "iterating"
	StateCompleted        State = "completed"
	StateForcedCompletion State = "forced_completion"
	StateTimedOut         State = "timed_out"
	StateFailed           State = "failed"
)

// FailureKind classifies a failed result so the API layer can map it onto
// its error taxonomy without parsing messages.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureEngine     FailureKind = "engine"
	FailureTool       FailureKind = "tool"
	FailureValidation FailureKind = "validation"
)

// IterationRecord is one append-only audit entry describing one orchestrator
// step. Written once, never mutated.
type IterationRecord struct {
	Index         int       `json:"iteration_index"`
	ToolName      string    `json:"tool_name"`
	Parameters    string    `json:"parameters,omitempty"`
	ResultSummary string    `json:"result_summary,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Request is one inbound generation request.
type Request struct {
	RequestID string
	Question  string
	UserID    string
	Model     string
}

// Result is the terminal outcome of one generation request, including the
// full iteration trace for audit.
type Result struct {
	RequestID   string
	State       State
	SQL         string
	Explanation string
	SnapshotID  string
	Model       string
	Tokens      int
	Duration    time.Duration
	Iterations  int
	Records     []IterationRecord
	Violations  []validator.ViolationCode
	Context     ctxbuilder.RankedContext
	Failure     FailureKind
	Err         string
}

// AuditRecord is what the orchestrator hands to the audit sink on every
// terminal transition.
type AuditRecord struct {
	RequestID   string
	UserID      string
	Question    string
	State       string
	SQL         string
	SnapshotID  string
	RuleVersion string
	Violations  []string
	Iterations  int
	DurationMS  int64
	Records     []IterationRecord
	CreatedAt   time.Time
}

// AuditSink persists terminal request records. Implemented by the audit
// store; nil disables persistence.
type AuditSink interface {
	RecordRequest(ctx context.Context, record AuditRecord) error
}

// Sentinel errors surfaced to the API layer for taxonomy mapping.
var (
	ErrEmptyQuestion     = errors.New("question required")
	ErrSchemaUnavailable = errors.New("schema manifest unavailable")
)

const systemPrompt = `You translate questions about medical records into a single safe, read-only SQL query for PostgreSQL.
Rules:
- Only SELECT statements. Never write, alter or lock anything, even when the question sounds like it wants that.
- Use only the tables and columns listed in the schema context.
- When a term is ambiguous, use lookup_text to see how values are actually stored, or run_exploratory_query to peek at a few rows.
- When you are confident, call finalize_query with the final SQL and a one-sentence explanation.`

// Orchestrator drives the bounded conversation loop between the reasoning
// engine and the exploration tools for one request at a time. Instances are
// shared across requests; all per-request state lives in Generate.
type Orchestrator struct {
	provider  llm.Provider
	cache     *schema.Cache
	builder   *ctxbuilder.Builder
	mru       *ctxbuilder.MRU
	validator *validator.Validator
	tools     *ToolExecutor
	audit     AuditSink
	cfg       Config
}

// NewOrchestrator wires the orchestrator. The MRU list is registered for
// reset whenever the manifest identity changes.
func NewOrchestrator(provider llm.Provider, cache *schema.Cache, builder *ctxbuilder.Builder, mru *ctxbuilder.MRU, v *validator.Validator, tools *ToolExecutor, audit AuditSink, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	if cache != nil && mru != nil {
		cache.OnSwap(func(m *schema.Manifest) {
			mru.ResetForSnapshot(m.SnapshotID)
		})
	}
	return &Orchestrator{
		provider:  provider,
		cache:     cache,
		builder:   builder,
		mru:       mru,
		validator: v,
		tools:     tools,
		audit:     audit,
		cfg:       cfg,
	}
}

// Generate runs the full state machine for one request. The returned Result
// is terminal: Completed or ForcedCompletion carry validated SQL, everything
// else carries the failure and the partial trace.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if strings.TrimSpace(req.RequestID) == "" {
		req.RequestID = uuid.NewString()
	}
	manifest := o.cache.Current()
	if manifest == nil {
		return nil, ErrSchemaUnavailable
	}
	ranked, err := o.builder.Build(question, manifest, o.mru)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	result := &Result{
		RequestID:  req.RequestID,
		State:      StateIterating,
		SnapshotID: ranked.SnapshotID,
		Model:      llm.ModelName(o.provider),
		Context:    ranked,
	}
	if strings.TrimSpace(req.Model) != "" {
		result.Model = req.Model
	}
	conv := NewConversation(systemPrompt, ranked.Prompt(), question)
	tools := toolDefinitions(o.cfg.LookupColumn)
	retries := o.cfg.ValidationRetries
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.WallClock)
	defer cancel()

	defer func() {
		result.Duration = time.Since(start)
		o.persist(req, result)
	}()

	for iteration := 0; ; {
		if ctx.Err() != nil {
			o.record(result, iteration, "reasoning_engine", "", "wall clock exceeded")
			result.State = StateTimedOut
			result.Err = "wall clock budget exceeded"
			return result, nil
		}
		forced := iteration >= o.cfg.MaxIterations
		opts := []llms.CallOption{llms.WithTools(tools)}
		if strings.TrimSpace(req.Model) != "" {
			opts = append(opts, llms.WithModel(req.Model))
		}
		if forced {
			conv.AppendInstruction("Iteration budget exhausted. Call finalize_query now with your single best candidate query.")
			opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
				Type:     "function",
				Function: &llms.FunctionReference{Name: toolFinalize},
			}))
		}

		resp, err := o.provider.GenerateContent(ctx, conv.Messages(), opts...)
		if err != nil {
			if ctx.Err() != nil {
				o.record(result, iteration, "reasoning_engine", "", "timeout: "+err.Error())
				result.State = StateTimedOut
				result.Err = "reasoning engine call exceeded the wall clock budget"
				return result, nil
			}
			o.record(result, iteration, "reasoning_engine", "", "error: "+err.Error())
			result.State = StateFailed
			result.Failure = FailureEngine
			result.Err = fmt.Sprintf("reasoning engine: %v", err)
			return result, nil
		}
		if len(resp.Choices) == 0 {
			o.record(result, iteration, "reasoning_engine", "", "empty response")
			result.State = StateFailed
			result.Failure = FailureEngine
			result.Err = "reasoning engine returned no choices"
			return result, nil
		}
		choice := resp.Choices[0]
		result.Tokens += tokensFromInfo(choice.GenerationInfo)

		calls := choice.ToolCalls
		conv.AppendAssistantTurn(choice.Content, choice.ToolCalls)
		if len(calls) == 0 {
			// A prose reply is treated as a finalize attempt: the candidate
			// still goes through the validator like any other.
			calls = []llms.ToolCall{synthesizedFinalize(choice.Content)}
		}

		for _, call := range calls {
			if call.FunctionCall == nil {
				continue
			}
			name := call.FunctionCall.Name
			if name == toolFinalize {
				done, terminal := o.handleFinalize(ctx, result, conv, call, iteration, forced, &retries)
				if done {
					result.State = terminal
					return result, nil
				}
				// Rejected with retry budget left: feedback already appended,
				// remaining calls in this turn are stale.
				break
			}
			feedback, execErr := o.tools.Execute(ctx, call)
			if execErr != nil {
				o.record(result, iteration, name, call.FunctionCall.Arguments, "error: "+execErr.Error())
				result.State = StateFailed
				result.Failure = FailureTool
				result.Err = fmt.Sprintf("tool %s: %v", name, execErr)
				return result, nil
			}
			o.record(result, iteration, name, call.FunctionCall.Arguments, feedback)
			conv.AppendToolResult(call.ID, name, feedback)
		}

		if forced {
			// The forced invocation did not produce an acceptable finalize.
			result.State = StateFailed
			if result.Failure == FailureNone {
				result.Failure = FailureEngine
			}
			if result.Err == "" {
				result.Err = "forced completion did not produce a valid query"
			}
			return result, nil
		}
		iteration++
		result.Iterations = iteration
	}
}

// handleFinalize validates a candidate query and resolves the terminal or
// retry transition. done reports whether the request terminates now.
func (o *Orchestrator) handleFinalize(ctx context.Context, result *Result, conv *Conversation, call llms.ToolCall, iteration int, forced bool, retries *int) (bool, State) {
	params := parseFinalize(call.FunctionCall.Arguments)
	verdict := o.validator.Validate(ctx, params.SQL)
	if verdict.Accepted {
		o.record(result, iteration, toolFinalize, params.SQL, "accepted")
		result.SQL = verdict.NormalizedQuery
		result.Explanation = params.Explanation
		if forced {
			return true, StateForcedCompletion
		}
		return true, StateCompleted
	}
	summary := rejectionFeedback(verdict)
	o.record(result, iteration, toolFinalize, params.SQL, summary)
	result.Violations = verdict.Violations
	if forced || *retries <= 0 {
		result.Failure = FailureValidation
		result.Err = summary
		return true, StateFailed
	}
	*retries--
	if call.ID == implicitFinalizeID {
		// The candidate came from a prose reply, so there is no tool call to
		// answer; the feedback goes in as an instruction instead.
		conv.AppendInstruction(summary)
	} else {
		conv.AppendToolResult(call.ID, toolFinalize, summary)
	}
	common.Logger().Debug("agent: finalize rejected, retrying",
		"request_id", result.RequestID, "violations", len(verdict.Violations))
	return false, StateIterating
}

const recordPreviewLimit = 400

func (o *Orchestrator) record(result *Result, iteration int, tool, params, summary string) {
	result.Records = append(result.Records, IterationRecord{
		Index:         iteration,
		ToolName:      tool,
		Parameters:    preview(params),
		ResultSummary: preview(summary),
		Timestamp:     time.Now().UTC(),
	})
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= recordPreviewLimit {
		return text
	}
	return text[:recordPreviewLimit] + "..."
}

func (o *Orchestrator) persist(req Request, result *Result) {
	if o.audit == nil {
		return
	}
	violations := make([]string, 0, len(result.Violations))
	for _, code := range result.Violations {
		violations = append(violations, string(code))
	}
	record := AuditRecord{
		RequestID:   result.RequestID,
		UserID:      req.UserID,
		Question:    req.Question,
		State:       string(result.State),
		SQL:         result.SQL,
		SnapshotID:  result.SnapshotID,
		RuleVersion: validator.RuleVersion,
		Violations:  violations,
		Iterations:  result.Iterations,
		DurationMS:  result.Duration.Milliseconds(),
		Records:     result.Records,
		CreatedAt:   time.Now().UTC(),
	}
	// The request context may already be dead; the audit write gets its own
	// short budget.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.audit.RecordRequest(ctx, record); err != nil {
		common.Logger().Warn("agent: audit write failed",
			"request_id", result.RequestID, "error", err)
	}
}

func parseFinalize(arguments string) finalizeParams {
	var params finalizeParams
	if err := json.Unmarshal([]byte(arguments), &params); err != nil || strings.TrimSpace(params.SQL) == "" {
		// Some engines hand back bare SQL instead of the JSON envelope.
		params.SQL = extractSQL(arguments)
	}
	return params
}

const implicitFinalizeID = "finalize-implicit"

func synthesizedFinalize(content string) llms.ToolCall {
	payload, _ := json.Marshal(finalizeParams{SQL: extractSQL(content)})
	return llms.ToolCall{
		ID:   implicitFinalizeID,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      toolFinalize,
			Arguments: string(payload),
		},
	}
}

// extractSQL strips markdown fences so prose answers can still be validated.
func extractSQL(text string) string {
	cleaned := strings.TrimSpace(text)
	if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[idx+3:]
		cleaned = strings.TrimPrefix(cleaned, "sql")
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}
	return strings.TrimSpace(cleaned)
}

func tokensFromInfo(info map[string]any) int {
	if info == nil {
		return 0
	}
	if total := intFromAny(info["TotalTokens"]); total > 0 {
		return total
	}
	return intFromAny(info["PromptTokens"]) + intFromAny(info["CompletionTokens"])
}

func intFromAny(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
