package llm

import (
	"fmt"
	"sync"

	"github.com/hemantsingh443/allchat-sub000/internal/capabilities"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// ProviderRegistry routes model ids to providers and hands out generators.
// Generators built from server credentials are cached per provider; user-key
// generators are created per request.
type ProviderRegistry struct {
	catalog *capabilities.Registry
	factory *ProviderFactory
	policy  *CredentialPolicy
	cache   map[string]domainllm.Generator
	mu      sync.RWMutex
}

var _ domainllm.ProviderRouter = (*ProviderRegistry)(nil)

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(catalog *capabilities.Registry, factory *ProviderFactory, policy *CredentialPolicy) *ProviderRegistry {
	return &ProviderRegistry{
		catalog: catalog,
		factory: factory,
		policy:  policy,
		cache:   make(map[string]domainllm.Generator),
	}
}

// Route implements ProviderRouter.
func (r *ProviderRegistry) Route(model string) domainllm.Route {
	m := r.catalog.Resolve(model)
	budget := 0
	if m.ContextWindow > m.MaxOutput {
		budget = m.ContextWindow - m.MaxOutput
	}
	return domainllm.Route{
		Provider:      m.Provider,
		UpstreamModel: m.UpstreamModel,
		Reasoning:     m.SupportsThinking,
		Vision:        m.SupportsVision,
		PromptBudget:  budget,
	}
}

// Resolve implements ProviderRouter.
func (r *ProviderRegistry) Resolve(model, userKey string) (domainllm.Credential, error) {
	return r.policy.Resolve(r.Route(model).Provider, userKey)
}

// ServerCredential implements ProviderRouter.
func (r *ProviderRegistry) ServerCredential(model string) (domainllm.Credential, bool) {
	return r.policy.ServerCredential(r.Route(model).Provider)
}

// Generator implements ProviderRouter.
func (r *ProviderRegistry) Generator(cred domainllm.Credential) (domainllm.Generator, error) {
	if cred.Provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if cred.Source != domainllm.KeySourceServerDefault {
		return r.factory.NewGenerator(cred.Provider, cred.APIKey)
	}

	// Fast path: check cache with read lock
	r.mu.RLock()
	if cached, exists := r.cache[cred.Provider]; exists {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created the generator while we waited
	if cached, exists := r.cache[cred.Provider]; exists {
		return cached, nil
	}

	gen, err := r.factory.NewGenerator(cred.Provider, cred.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider '%s': %w", cred.Provider, err)
	}
	r.cache[cred.Provider] = gen
	return gen, nil
}
