// File path: internal/llm/providers/openai_client.go
package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/careatlas/nlsql/internal/common"
)

// OpenAIProvider adapts the langchaingo OpenAI client, which carries the
// tool-calling surface the orchestrator relies on.
type OpenAIProvider struct {
	llm   *openai.LLM
	model string
}

// NewOpenAIProvider builds the client from the environment. OPENAI_ENDPOINT
// redirects to a compatible gateway; OPENAI_CHAT_MODEL overrides the model.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	model := strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL"))
	if model == "" {
		model = "gpt-4o"
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	logger := common.Logger()
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		logger.Info("llm: using custom OpenAI endpoint", "endpoint", endpoint)
		opts = append(opts, openai.WithBaseURL(endpoint))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	logger.Info("llm: OpenAI provider configured", "chat_model", model)
	return &OpenAIProvider{llm: client, model: model}, nil
}

func (o *OpenAIProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if o == nil || o.llm == nil {
		return nil, fmt.Errorf("nil openai client")
	}
	logger := common.Logger()
	logger.Debug("llm: sending chat completion request", "model", o.model, "messages", len(messages))
	resp, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		logger.Error("llm: chat completion failed", "error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return resp, nil
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

// Model reports the configured chat model for response metadata.
func (o *OpenAIProvider) Model() string {
	return o.model
}
