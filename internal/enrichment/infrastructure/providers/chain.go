package providers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
)

// Chain is the configured, ordered provider list. Providers are built once
// so their breakers keep state across runs.
type Chain struct {
	providers []domain.Provider
	err       error
}

// FromConfig builds the waterfall from cfg.EnrichProviders in order. Every
// provider is wrapped in a circuit breaker. A provider without a URL, or
// without either an API key or complete client credentials, is a
// configuration error reported by Providers.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Chain {
	breaker := DefaultBreakerConfig()
	if cfg.EnrichBreakerFailures > 0 {
		breaker.FailureThreshold = uint32(cfg.EnrichBreakerFailures)
	}
	if cfg.EnrichBreakerTimeout > 0 {
		breaker.Timeout = cfg.EnrichBreakerTimeout
	}
	return Build(cfg.EnrichProviders, cfg.EnrichProviderTimeout, breaker, logger)
}

// Build creates a chain from explicit provider settings.
func Build(settings []config.ProviderConfig, timeout time.Duration, breaker BreakerConfig, logger *slog.Logger) *Chain {
	chain := &Chain{}
	for _, s := range settings {
		if !hasCredentials(s) {
			chain.err = fmt.Errorf("%w: provider %q needs a URL and an API key or client credentials", domain.ErrMissingCredentials, s.Name)
			return chain
		}
		endpoint := NewHTTPProvider(s.Name, s.URL, s.APIKey, timeout)
		if usesClientCredentials(s) {
			endpoint.WithClient(clientCredentialsClient(s, timeout))
		}
		chain.providers = append(chain.providers, NewBreakerProvider(endpoint, breaker, logger))
	}
	return chain
}

// Providers returns the ordered list, or the configuration error. An empty
// list is returned as-is; the sequencer reports it.
func (c *Chain) Providers() ([]domain.Provider, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.providers, nil
}

// Names lists the providers in order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}
