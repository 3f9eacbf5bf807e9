package provider

import (
	"strings"
	"sync"

	"github.com/opencode-ai/core/pkg/types"
)

// Registry manages the configured providers.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultModel string // "provider/model"
}

// NewRegistry creates a registry. defaultModel is "provider/model" and
// may be empty.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		providers:    make(map[string]Provider),
		defaultModel: defaultModel,
	}
}

// Register adds a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerID]
	if !ok {
		return nil, types.NewNotFoundError("provider", providerID)
	}
	return p, nil
}

// List returns all providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel resolves one model on one provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range p.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, types.NewNotFoundError("model", providerID+"/"+modelID)
}

// DefaultModel resolves the configured default, falling back to the
// first model of any provider.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.defaultModel != "" {
		providerID, modelID := ParseModelString(r.defaultModel)
		if providerID != "" {
			if m, err := r.GetModel(providerID, modelID); err == nil {
				return m, nil
			}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		models := p.Models()
		if len(models) > 0 {
			return &models[0], nil
		}
	}
	return nil, types.NewNotFoundError("model", "default")
}

// ParseModelString splits "provider/model".
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}
