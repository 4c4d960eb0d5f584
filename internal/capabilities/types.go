package capabilities

import "gopkg.in/yaml.v3"

// ModelCapabilities describes one selectable model.
type ModelCapabilities struct {
	// Client-facing model id (set from the YAML key)
	ID string `yaml:"-" json:"id"`

	// Provider serving the model (set from the file's provider field)
	Provider string `yaml:"-" json:"provider"`

	// UpstreamModel is the id sent to the provider; defaults to ID.
	UpstreamModel string `yaml:"upstream_model" json:"-"`

	DisplayName string `yaml:"display_name" json:"displayName"`
	Description string `yaml:"description" json:"description"`

	SupportsThinking bool `yaml:"supports_thinking" json:"supportsThinking"`
	SupportsVision   bool `yaml:"supports_vision" json:"supportsVision"`

	ContextWindow int `yaml:"context_window" json:"contextWindow"`
	MaxOutput     int `yaml:"max_output" json:"maxOutput"`
}

// ProviderCapabilities represents all models for a provider
type ProviderCapabilities struct {
	Provider string              `yaml:"provider" json:"provider"`
	Models   []ModelCapabilities `yaml:"-" json:"models"` // YAML order
}

// UnmarshalYAML keeps the model order of the file.
func (p *ProviderCapabilities) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Provider string                       `yaml:"provider"`
		Models   map[string]ModelCapabilities `yaml:"models"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.Provider = raw.Provider

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "models" {
			continue
		}
		modelsNode := node.Content[i+1]
		// Content alternates key, value
		for j := 0; j+1 < len(modelsNode.Content); j += 2 {
			id := modelsNode.Content[j].Value
			model, ok := raw.Models[id]
			if !ok {
				continue
			}
			model.ID = id
			model.Provider = raw.Provider
			if model.UpstreamModel == "" {
				model.UpstreamModel = id
			}
			p.Models = append(p.Models, model)
		}
		break
	}
	return nil
}
