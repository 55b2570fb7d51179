// File path: internal/agent/conversation.go
package agent

import (
	"github.com/tmc/langchaingo/llms"
)

// Conversation is the append-only message log for one generation request.
// It is owned exclusively by the orchestrator driving that request; nothing
// else mutates it, and it is discarded when the request terminates.
type Conversation struct {
	messages []llms.MessageContent
}

// NewConversation seeds the log with the system instructions, the ranked
// schema excerpt and the user's question.
func NewConversation(system, schemaContext, question string) *Conversation {
	conv := &Conversation{}
	conv.messages = append(conv.messages,
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeSystem, schemaContext),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	)
	return conv
}

// Messages returns a copy of the log for handing to the reasoning engine.
func (c *Conversation) Messages() []llms.MessageContent {
	out := make([]llms.MessageContent, len(c.messages))
	copy(out, c.messages)
	return out
}

// AppendAssistantTurn records the engine's reply, including any tool calls
// it requested, so later turns see them in order.
func (c *Conversation) AppendAssistantTurn(content string, calls []llms.ToolCall) {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if content != "" {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: content})
	}
	for _, call := range calls {
		msg.Parts = append(msg.Parts, call)
	}
	if len(msg.Parts) == 0 {
		return
	}
	c.messages = append(c.messages, msg)
}

// AppendToolResult records the outcome of one executed tool call. Results
// are appended in execution order because later calls in the same iteration
// may depend on them.
func (c *Conversation) AppendToolResult(callID, name, content string) {
	c.messages = append(c.messages, llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: callID,
			Name:       name,
			Content:    content,
		}},
	})
}

// AppendInstruction injects an orchestrator instruction, such as validator
// feedback on a rejected candidate or the forced-finalize demand.
func (c *Conversation) AppendInstruction(text string) {
	c.messages = append(c.messages, llms.TextParts(llms.ChatMessageTypeSystem, text))
}

// Len reports how many messages the log holds.
func (c *Conversation) Len() int {
	return len(c.messages)
}
