// File path: internal/llm/llm.go
package llm

import (
	"os"
	"strings"

	"github.com/careatlas/nlsql/internal/common"
	"github.com/careatlas/nlsql/internal/llm/providers"
)

// Provider re-exports the reasoning-engine boundary.
type Provider = providers.Provider

// NewProvider selects the OpenAI provider when an API key is present and
// falls back to the local scripted provider otherwise.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey != "" {
		provider, err := providers.NewOpenAIProvider(apiKey)
		if err == nil {
			logger.Info("llm: OpenAI provider selected")
			return provider
		}
		logger.Warn("llm: OpenAI provider unavailable, falling back to local", "error", err)
	} else {
		logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
	}
	return providers.NewLocalProvider()
}

// ModelName reports the provider's model for response metadata when known.
func ModelName(provider Provider) string {
	if named, ok := provider.(interface{ Model() string }); ok {
		return named.Model()
	}
	if provider != nil {
		return provider.Name()
	}
	return "unknown"
}
