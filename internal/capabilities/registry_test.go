package capabilities

import (
	"testing"
	"testing/fstest"
)

func TestEmbeddedCatalogLoads(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m, ok := r.Lookup("google/gemini-1.5-flash-latest")
	if !ok {
		t.Fatal("expected gemini flash in catalog")
	}
	if m.Provider != "google" || m.UpstreamModel != "gemini-1.5-flash-latest" {
		t.Errorf("unexpected entry %+v", m)
	}
	if len(r.ListModels()) == 0 {
		t.Error("expected models")
	}
}

func TestResolve(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		model, provider, upstream string
	}{
		{"google/gemini-1.5-flash-latest", "google", "gemini-1.5-flash-latest"},
		{"openai/gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"deepseek/deepseek-r1", "openrouter", "deepseek/deepseek-r1"},
		{"lorem-custom", "lorem", "lorem-custom"},
		{"qwen/qwen-2.5-72b-instruct", "openrouter", "qwen/qwen-2.5-72b-instruct"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			m := r.Resolve(tt.model)
			if m.Provider != tt.provider || m.UpstreamModel != tt.upstream {
				t.Errorf("Resolve(%q) = (%q, %q), want (%q, %q)", tt.model, m.Provider, m.UpstreamModel, tt.provider, tt.upstream)
			}
		})
	}
}

func TestModelOrderFollowsFile(t *testing.T) {
	fsys := fstest.MapFS{
		"config/x.yaml": {Data: []byte("provider: x\nmodels:\n  zeta:\n    display_name: Z\n  alpha:\n    display_name: A\n")},
	}
	r, err := loadRegistry(fsys)
	if err != nil {
		t.Fatal(err)
	}
	models := r.ListModels()
	if len(models) != 2 || models[0].ID != "zeta" || models[1].ID != "alpha" {
		t.Errorf("unexpected order %+v", models)
	}
}

func TestDuplicateModelRejected(t *testing.T) {
	fsys := fstest.MapFS{
		"config/a.yaml": {Data: []byte("provider: a\nmodels:\n  same: {}\n")},
		"config/b.yaml": {Data: []byte("provider: b\nmodels:\n  same: {}\n")},
	}
	if _, err := loadRegistry(fsys); err == nil {
		t.Error("expected duplicate model error")
	}
}
