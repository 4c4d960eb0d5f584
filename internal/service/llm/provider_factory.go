package llm

import (
	"fmt"
	"net/http"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
	"github.com/hemantsingh443/allchat-sub000/internal/service/llm/adapters"
)

// ProviderFactory creates generators for a provider name and API key.
type ProviderFactory struct {
	config     *config.Config
	httpClient *http.Client
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg *config.Config) *ProviderFactory {
	return &ProviderFactory{
		config:     cfg,
		httpClient: &http.Client{},
	}
}

// NewGenerator returns a generator for providerName authenticated with apiKey.
//
// Supported providers:
//   - "openrouter" - many vendors through OpenRouter (meridian-llm-go)
//   - "openai" - OpenAI or any OpenAI-compatible endpoint (OPENAI_BASE_URL)
//   - "google" - Gemini streamGenerateContent
//   - "anthropic" - Claude Messages API (anthropic-sdk-go)
//   - "lorem" - offline mock provider, no key required
func (f *ProviderFactory) NewGenerator(providerName, apiKey string) (domainllm.Generator, error) {
	switch providerName {
	case "openrouter":
		adapter, err := adapters.NewOpenRouterAdapter(apiKey)
		if err != nil {
			return nil, err
		}
		return adapter, nil

	case "openai":
		return adapters.NewOpenAIAdapter("openai", apiKey, f.config.OpenAIBaseURL), nil

	case "google":
		return adapters.NewGoogleAdapter(apiKey, "", f.httpClient), nil

	case "anthropic":
		return adapters.NewAnthropicAdapter(apiKey), nil

	case "lorem":
		return adapters.NewLoremAdapter(), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}
