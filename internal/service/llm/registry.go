package llm

import (
	"fmt"
)

// ModelSpec binds a public model id to a provider and its upstream model
// name. ReasoningTag, when set, names the tag pair (e.g. "think" for
// <think>...</think>) the model uses to interleave reasoning narration with
// its answer; the streaming session demultiplexes on it.
type ModelSpec struct {
	ID            string
	Provider      string
	UpstreamModel string
	ReasoningTag  string
}

// Registry maps public model ids to providers. The id set is closed: an
// unknown selectedChatModel fails request validation, it never reaches a
// provider.
type Registry struct {
	providers map[string]Provider
	models    map[string]ModelSpec
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelSpec),
	}
}

// RegisterProvider adds a provider under its Name().
func (r *Registry) RegisterProvider(p Provider) {
	r.providers[p.Name()] = p
}

// RegisterModel adds a model spec. The spec's provider must be registered
// before the model is resolved, not before it is registered.
func (r *Registry) RegisterModel(spec ModelSpec) {
	r.models[spec.ID] = spec
}

// Knows reports whether the model id is registered. Request validation uses
// this to reject unknown models before any authorization or persistence.
func (r *Registry) Knows(modelID string) bool {
	_, ok := r.models[modelID]
	return ok
}

// Resolve returns the provider and spec for a model id.
func (r *Registry) Resolve(modelID string) (Provider, ModelSpec, error) {
	spec, ok := r.models[modelID]
	if !ok {
		return nil, ModelSpec{}, fmt.Errorf("unknown model %q", modelID)
	}
	provider, ok := r.providers[spec.Provider]
	if !ok {
		return nil, ModelSpec{}, fmt.Errorf("no provider %q for model %q", spec.Provider, modelID)
	}
	return provider, spec, nil
}
