package handler

import (
	"log/slog"
	"net/http"

	"github.com/hemantsingh443/allchat-sub000/internal/capabilities"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
)

// providerNames are display names for the catalog's providers
var providerNames = map[string]string{
	"openrouter": "OpenRouter",
	"openai":     "OpenAI",
	"google":     "Google",
	"lorem":      "Lorem (test)",
}

// ModelsHandler serves the model catalog
type ModelsHandler struct {
	catalog      *capabilities.Registry
	available    map[string]bool
	defaultModel string
	logger       *slog.Logger
}

// NewModelsHandler creates a new models handler. available lists providers
// that have a server key.
func NewModelsHandler(catalog *capabilities.Registry, available []string, defaultModel string, logger *slog.Logger) *ModelsHandler {
	set := make(map[string]bool, len(available))
	for _, p := range available {
		set[p] = true
	}
	return &ModelsHandler{
		catalog:      catalog,
		available:    set,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// ProviderResponse represents a provider with its models
type ProviderResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ServerKey is false when callers must supply their own key
	ServerKey bool                             `json:"serverKey"`
	Models    []capabilities.ModelCapabilities `json:"models"`
}

// ModelsResponse is the body of GET /api/models
type ModelsResponse struct {
	DefaultModel string             `json:"defaultModel"`
	Providers    []ProviderResponse `json:"providers"`
}

// ListModels returns the model catalog grouped by provider
// GET /api/models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	byProvider := make(map[string][]capabilities.ModelCapabilities)
	for _, m := range h.catalog.ListModels() {
		byProvider[m.Provider] = append(byProvider[m.Provider], m)
	}

	resp := ModelsResponse{DefaultModel: h.defaultModel, Providers: []ProviderResponse{}}
	for _, id := range h.catalog.GetAllProviders() {
		name, ok := providerNames[id]
		if !ok {
			name = id
		}
		resp.Providers = append(resp.Providers, ProviderResponse{
			ID:        id,
			Name:      name,
			ServerKey: h.available[id],
			Models:    byProvider[id],
		})
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}
