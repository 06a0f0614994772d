// internal/providers/multiplex/provider.go
// Package multiplex routes provider calls based on host type.
package multiplex

import (
	"context"
	"fmt"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/providers"
)

// Provider delegates calls to an underlying provider based on host type.
type Provider struct {
	providers map[string]providers.ChatProvider
}

// New constructs a Provider from a map of host type to provider implementation.
// Keys are normalized the same way appconfig.Host.Kind normalizes host types.
func New(providerMap map[string]providers.ChatProvider) *Provider {
	normalized := make(map[string]providers.ChatProvider, len(providerMap))
	for key, provider := range providerMap {
		normalized[appconfig.Host{Type: key}.Kind()] = provider
	}
	return &Provider{providers: normalized}
}

// Stream forwards the request to the provider registered for the request's host.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	provider, err := p.providerForHost(req.Host)
	if err != nil {
		return err
	}
	return provider.Stream(ctx, req, callbacks)
}

// Close cleans up any resources used by the provider.
func (p *Provider) Close() error {
	var firstErr error
	seen := map[providers.ChatProvider]struct{}{}
	for _, provider := range p.providers {
		if _, ok := seen[provider]; ok {
			continue
		}
		seen[provider] = struct{}{}
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Provider) providerForHost(host appconfig.Host) (providers.ChatProvider, error) {
	if provider, ok := p.providers[host.Kind()]; ok {
		return provider, nil
	}
	return nil, fmt.Errorf("no provider registered for host type %q", host.Type)
}
