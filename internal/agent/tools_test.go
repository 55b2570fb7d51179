// File path: internal/agent/tools_test.go
package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/careatlas/nlsql/internal/validator"
)

func newTestExecutor() *ToolExecutor {
	return NewToolExecutor(nil, validator.New(validator.Config{}, nil), Config{})
}

func call(name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   "call-1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func TestExecuteUnknownToolIsFeedback(t *testing.T) {
	feedback, err := newTestExecutor().Execute(context.Background(), call("make_coffee", `{}`))
	if err != nil {
		t.Fatalf("unknown tool must not be an error: %v", err)
	}
	if !strings.Contains(feedback, "unknown tool") || !strings.Contains(feedback, toolFinalize) {
		t.Fatalf("feedback should name the available tools: %q", feedback)
	}
}

func TestExecuteMalformedArgumentsIsFeedback(t *testing.T) {
	feedback, err := newTestExecutor().Execute(context.Background(), call(toolLookupText, `{not json`))
	if err != nil {
		t.Fatalf("malformed arguments must not be an error: %v", err)
	}
	if !strings.Contains(feedback, "invalid") {
		t.Fatalf("unexpected feedback: %q", feedback)
	}
}

func TestLookupTextRequiresTerm(t *testing.T) {
	feedback, err := newTestExecutor().Execute(context.Background(), call(toolLookupText, `{"term":"  "}`))
	if err != nil {
		t.Fatalf("empty term must not be an error: %v", err)
	}
	if !strings.Contains(feedback, "non-empty term") {
		t.Fatalf("unexpected feedback: %q", feedback)
	}
}

func TestLookupTextNeedsPool(t *testing.T) {
	if _, err := newTestExecutor().Execute(context.Background(), call(toolLookupText, `{"term":"hemoglobin"}`)); err == nil {
		t.Fatal("missing pool must be an unrecoverable error")
	}
}

func TestExploreQueryRequiresJustification(t *testing.T) {
	feedback, err := newTestExecutor().Execute(context.Background(),
		call(toolExploreQuery, `{"query":"SELECT 1"}`))
	if err != nil {
		t.Fatalf("missing justification must not be an error: %v", err)
	}
	if !strings.Contains(feedback, "justification") {
		t.Fatalf("unexpected feedback: %q", feedback)
	}
}

func TestExploreQueryRejectionIsFeedback(t *testing.T) {
	feedback, err := newTestExecutor().Execute(context.Background(),
		call(toolExploreQuery, `{"query":"DELETE FROM patients","justification":"checking"}`))
	if err != nil {
		t.Fatalf("validator rejection must not be an error: %v", err)
	}
	if !strings.Contains(feedback, string(validator.ViolationForbiddenKeyword)) {
		t.Fatalf("feedback should carry the violation codes: %q", feedback)
	}
	if !strings.Contains(feedback, validator.RuleVersion) {
		t.Fatalf("feedback should carry the rule version: %q", feedback)
	}
}

func TestExploreQueryAcceptedNeedsPool(t *testing.T) {
	// Validation passes, so the executor reaches for the missing pool.
	if _, err := newTestExecutor().Execute(context.Background(),
		call(toolExploreQuery, `{"query":"SELECT 1","justification":"probe"}`)); err == nil {
		t.Fatal("missing pool must be an unrecoverable error")
	}
}

func TestToolDefinitionsAdvertiseClosedSet(t *testing.T) {
	defs := toolDefinitions("test_name")
	if len(defs) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(defs))
	}
	names := map[string]bool{}
	for _, def := range defs {
		if def.Type != "function" || def.Function == nil {
			t.Fatalf("malformed tool definition: %+v", def)
		}
		names[def.Function.Name] = true
	}
	for _, want := range []string{toolLookupText, toolExploreQuery, toolFinalize} {
		if !names[want] {
			t.Fatalf("tool %s not advertised", want)
		}
	}
	for _, def := range defs {
		if def.Function.Name == toolLookupText && !strings.Contains(def.Function.Description, "test_name") {
			t.Fatalf("lookup description should name the target column: %q", def.Function.Description)
		}
	}
}
