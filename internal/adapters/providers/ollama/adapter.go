package ollama

import (
	"github.com/llmrouter/router/internal/adapters/providers/openai"
	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/core/ports"
	"github.com/llmrouter/router/internal/registry"
)

func init() {
	registry.Register("ollama", NewAdapter)
}

// NewAdapter builds an Ollama provider. Ollama exposes an OpenAI-
// compatible /v1/chat/completions endpoint, so it reuses that adapter
// wholesale rather than reimplementing the same wire format.
func NewAdapter(config domain.ProviderConfig) (ports.ProviderAdapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434/v1"
	}
	return openai.NewAdapter(config)
}
