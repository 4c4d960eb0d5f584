package llm

import (
	"fmt"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// CredentialPolicy picks the API key that serves a provider: the caller's
// key when given, else the server default.
type CredentialPolicy struct {
	serverKeys map[string]string
	keyless    map[string]bool
}

// NewCredentialPolicy reads server default keys from cfg.
func NewCredentialPolicy(cfg *config.Config) *CredentialPolicy {
	return &CredentialPolicy{
		serverKeys: map[string]string{
			"openrouter": cfg.OpenRouterAPIKey,
			"openai":     cfg.OpenAIAPIKey,
			"google":     cfg.GoogleAPIKey,
			"anthropic":  cfg.AnthropicAPIKey,
		},
		keyless: map[string]bool{
			"lorem": true,
		},
	}
}

// Resolve returns the credential for provider. Keyless providers always
// report the server default.
func (p *CredentialPolicy) Resolve(provider, userKey string) (domainllm.Credential, error) {
	if p.keyless[provider] {
		return domainllm.Credential{Provider: provider, Source: domainllm.KeySourceServerDefault}, nil
	}
	if userKey != "" {
		return domainllm.Credential{Provider: provider, APIKey: userKey, Source: domainllm.KeySourceUser}, nil
	}
	if cred, ok := p.ServerCredential(provider); ok {
		return cred, nil
	}
	return domainllm.Credential{}, &domain.UpstreamError{
		Kind:     domain.ErrUpstreamCredential,
		Provider: provider,
		Message:  fmt.Sprintf("No API key available for %s. Add your own key in settings.", provider),
	}
}

// ServerCredential returns the server-held credential for provider, if configured.
func (p *CredentialPolicy) ServerCredential(provider string) (domainllm.Credential, bool) {
	if p.keyless[provider] {
		return domainllm.Credential{Provider: provider, Source: domainllm.KeySourceServerDefault}, true
	}
	key := p.serverKeys[provider]
	if key == "" {
		return domainllm.Credential{}, false
	}
	return domainllm.Credential{Provider: provider, APIKey: key, Source: domainllm.KeySourceServerDefault}, true
}

// Available lists providers that can serve requests without a user key.
func (p *CredentialPolicy) Available() []string {
	var names []string
	for _, name := range []string{"openrouter", "openai", "google", "anthropic", "lorem"} {
		if _, ok := p.ServerCredential(name); ok {
			names = append(names, name)
		}
	}
	return names
}
