// File path: internal/agent/conversation_test.go
package agent

import (
	"testing"

	"github.com/tmc/langchaingo/llms"
)

func TestConversationSeedsThreeMessages(t *testing.T) {
	conv := NewConversation("system", "schema", "question")
	msgs := conv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 seed messages, got %d", len(msgs))
	}
	if msgs[0].Role != llms.ChatMessageTypeSystem || msgs[2].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("unexpected roles: %v, %v", msgs[0].Role, msgs[2].Role)
	}
}

func TestConversationAppendsInOrder(t *testing.T) {
	conv := NewConversation("system", "schema", "question")
	conv.AppendAssistantTurn("thinking", []llms.ToolCall{{
		ID:           "call-1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: toolLookupText, Arguments: `{"term":"hb"}`},
	}})
	conv.AppendToolResult("call-1", toolLookupText, `[{"match":"hemoglobin"}]`)
	conv.AppendInstruction("finalize now")

	msgs := conv.Messages()
	if conv.Len() != 6 {
		t.Fatalf("expected 6 messages, got %d", conv.Len())
	}
	if msgs[3].Role != llms.ChatMessageTypeAI {
		t.Fatalf("assistant turn role = %v", msgs[3].Role)
	}
	if len(msgs[3].Parts) != 2 {
		t.Fatalf("assistant turn should carry text and tool call: %d parts", len(msgs[3].Parts))
	}
	if msgs[4].Role != llms.ChatMessageTypeTool {
		t.Fatalf("tool result role = %v", msgs[4].Role)
	}
	if msgs[5].Role != llms.ChatMessageTypeSystem {
		t.Fatalf("instruction role = %v", msgs[5].Role)
	}
}

func TestConversationDropsEmptyAssistantTurn(t *testing.T) {
	conv := NewConversation("system", "schema", "question")
	conv.AppendAssistantTurn("", nil)
	if conv.Len() != 3 {
		t.Fatalf("empty assistant turn should not be recorded: %d", conv.Len())
	}
}

func TestConversationMessagesReturnsCopy(t *testing.T) {
	conv := NewConversation("system", "schema", "question")
	msgs := conv.Messages()
	msgs[0] = llms.TextParts(llms.ChatMessageTypeHuman, "mutated")
	if conv.Messages()[0].Role != llms.ChatMessageTypeSystem {
		t.Fatal("caller mutation leaked into the conversation")
	}
}
