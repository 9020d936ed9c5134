package providers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

// BreakerConfig configures a provider's circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips the
	// breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again
// after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker. Only retryable
// failures count against the breaker; a 4xx answer means the provider is
// up. While open, calls fail fast with a non-retryable ErrCircuitOpen.
type BreakerProvider struct {
	next    domain.Provider
	breaker *gobreaker.CircuitBreaker[domain.PartialResult]
}

// NewBreakerProvider wraps next.
func NewBreakerProvider(next domain.Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err)
		},
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[domain.PartialResult](settings),
	}
}

func (p *BreakerProvider) Name() string {
	return p.next.Name()
}

// State reports the breaker state: closed, half-open or open.
func (p *BreakerProvider) State() string {
	return p.breaker.State().String()
}

func (p *BreakerProvider) Attempt(ctx context.Context, q domain.Query) (domain.PartialResult, error) {
	result, err := p.breaker.Execute(func() (domain.PartialResult, error) {
		return p.next.Attempt(ctx, q)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.PartialResult{}, &domain.ProviderError{Provider: p.next.Name(), Err: domain.ErrCircuitOpen}
	}
	return result, err
}
