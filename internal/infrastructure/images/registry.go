package images

import (
	"context"
	"fmt"
)

// Candidate is one image URL proposed by a provider, before the liveness probe.
type Candidate struct {
	URL     string
	Credit  string
	License string
	Source  string
}

// Provider proposes image URLs for a scientific name. Errors are treated as
// an empty result by the resolver.
type Provider interface {
	Name() string
	Search(ctx context.Context, latin string) ([]Candidate, error)
}

// Attributor is implemented by providers that look up credit and license only
// after a candidate passed the probe.
type Attributor interface {
	Attribute(ctx context.Context, latin string, c Candidate) Candidate
}

// Registry maps provider names to implementations.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	if r.providers == nil {
		r.providers = map[string]Provider{}
	}
	r.providers[p.Name()] = p
}

// Resolve returns a provider by name.
func (r *Registry) Resolve(name string) (Provider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("image provider %s is not registered", name)
}
