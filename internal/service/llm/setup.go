package llm

import (
	"fmt"
	"log/slog"

	"github.com/hemantsingh443/allchat-sub000/internal/capabilities"
	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/service/llm/search"
)

// SetupProviders builds the provider registry and logs which providers can
// serve requests with server keys.
func SetupProviders(cfg *config.Config, catalog *capabilities.Registry, logger *slog.Logger) (*ProviderRegistry, error) {
	if catalog == nil {
		return nil, fmt.Errorf("model catalog is not configured")
	}

	policy := NewCredentialPolicy(cfg)
	registry := NewProviderRegistry(catalog, NewProviderFactory(cfg), policy)

	available := make(map[string]bool)
	for _, name := range policy.Available() {
		available[name] = true
	}
	for _, name := range catalog.GetAllProviders() {
		if available[name] {
			logger.Info("provider available", "name", name)
		} else {
			logger.Warn("no server key for provider, user keys required", "name", name)
		}
	}

	logger.Info("provider registry initialized", "default_model", cfg.DefaultModel)
	return registry, nil
}

// SetupAugmenter builds the web search augmenter backed by Tavily.
func SetupAugmenter(cfg *config.Config, logger *slog.Logger) *Augmenter {
	if cfg.TavilyAPIKey == "" {
		logger.Warn("TAVILY_API_KEY not set - web search requires a user key")
	}
	return NewAugmenter(search.NewTavilyClient(), cfg.TavilyAPIKey, cfg.MaxSearchResults, logger)
}
