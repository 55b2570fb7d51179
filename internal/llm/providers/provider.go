// File path: internal/llm/providers/provider.go
package providers

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// Provider is the reasoning-engine boundary. It is treated as an opaque,
// potentially slow, potentially-erroring dependency: callers own the timeout
// and interpret the response as either tool calls or a final answer.
type Provider interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error)
	Name() string
}
