package capabilities

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Fallback routing for ids missing from the catalog.
const (
	DefaultProvider = "openrouter"
	loremPrefix     = "lorem"
)

// Registry is the model catalog. It is immutable after NewRegistry.
type Registry struct {
	providers []*ProviderCapabilities
	models    map[string]*ModelCapabilities
}

// NewRegistry loads every embedded provider file.
func NewRegistry() (*Registry, error) {
	return loadRegistry(configFiles)
}

func loadRegistry(fsys fs.FS) (*Registry, error) {
	files, err := fs.Glob(fsys, "config/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list capability files: %w", err)
	}
	sort.Strings(files)

	r := &Registry{models: make(map[string]*ModelCapabilities)}
	for _, filename := range files {
		data, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filename, err)
		}
		var providerCaps ProviderCapabilities
		if err := yaml.Unmarshal(data, &providerCaps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", filename, err)
		}
		if providerCaps.Provider == "" {
			return nil, fmt.Errorf("%s: missing provider", filename)
		}
		for i := range providerCaps.Models {
			m := &providerCaps.Models[i]
			if _, dup := r.models[m.ID]; dup {
				return nil, fmt.Errorf("%s: model %s defined twice", filename, m.ID)
			}
			r.models[m.ID] = m
		}
		r.providers = append(r.providers, &providerCaps)
	}
	return r, nil
}

// Lookup returns the catalog entry for a model id.
func (r *Registry) Lookup(model string) (*ModelCapabilities, bool) {
	m, ok := r.models[model]
	return m, ok
}

// Resolve returns the catalog entry for model. Ids missing from the catalog
// get a synthesized entry: the lorem provider when they carry its prefix,
// DefaultProvider otherwise, with the id sent upstream unchanged.
func (r *Registry) Resolve(model string) ModelCapabilities {
	if m, ok := r.models[model]; ok {
		return *m
	}
	provider := DefaultProvider
	if strings.HasPrefix(model, loremPrefix) {
		provider = "lorem"
	}
	return ModelCapabilities{
		ID:            model,
		Provider:      provider,
		UpstreamModel: model,
		DisplayName:   model,
	}
}

// ListModels returns every model, grouped by provider in file order.
func (r *Registry) ListModels() []ModelCapabilities {
	var out []ModelCapabilities
	for _, p := range r.providers {
		out = append(out, p.Models...)
	}
	return out
}

// GetAllProviders returns the provider names in the catalog.
func (r *Registry) GetAllProviders() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Provider)
	}
	return names
}
