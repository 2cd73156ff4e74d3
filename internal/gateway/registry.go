package gateway

import "strings"

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	registry := &Registry{gateways: map[string]Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		provider := normalize(gw.Provider())
		if provider == "" {
			continue
		}
		registry.gateways[provider] = gw
	}
	return registry
}

func (r *Registry) Get(provider string) (Gateway, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	gw, ok := r.gateways[normalize(provider)]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return gw, nil
}

// Default is the provider used by the public pay page.
func (r *Registry) Default() (Gateway, error) {
	return r.Get(ProviderPaystack)
}

const ProviderPaystack = "paystack"

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
