package domain

import (
	"context"
	"errors"
	"fmt"
)

// Query is what a provider receives: the lead's current context and the
// fields still wanted.
type Query struct {
	Domain       string      `json:"domain"`
	Known        Fields      `json:"known"`
	TargetTitles []string    `json:"target_titles,omitempty"`
	Missing      []FieldName `json:"missing"`
}

// PartialResult is the set of fields a provider found.
type PartialResult struct {
	Fields Fields `json:"fields"`
}

// Provider is one external data source in the waterfall.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, q Query) (PartialResult, error)
}

// ProviderError describes a failed provider call. StatusCode is zero for
// transport failures and timeouts.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed: 5xx responses,
// timeouts and transport failures are retried. Any other answered status,
// including a 2xx with an unreadable body, is definitive, as is an open
// circuit.
func (e *ProviderError) Retryable() bool {
	switch {
	case errors.Is(e.Err, ErrCircuitOpen):
		return false
	case errors.Is(e.Err, context.Canceled):
		return false
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	default:
		return true
	}
}

// IsRetryable classifies any error returned by a provider attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
