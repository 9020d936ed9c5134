package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreditRepository is the atomic counter store behind the entitlement
// engine.
type CreditRepository interface {
	// EnsurePeriod returns the period starting at start, creating it with
	// tier's allowance and the carried-forward bonus when absent.
	EnsurePeriod(ctx context.Context, userID uuid.UUID, start time.Time, tier Tier) (*CreditPeriod, error)
	// FindPeriod returns nil when the period has not been opened.
	FindPeriod(ctx context.Context, userID uuid.UUID, start time.Time) (*CreditPeriod, error)
	// Debit applies a conditional increment of Consumed together with the
	// charge reference and usage entries. It never overdraws a limited pool.
	Debit(ctx context.Context, debit Debit) (DebitOutcome, error)
	// GrantBonus adds credits to the period's bonus pool.
	GrantBonus(ctx context.Context, userID uuid.UUID, start time.Time, credits int64) (*CreditPeriod, error)
	// SetPeriodTier switches the period's tier and allowance.
	SetPeriodTier(ctx context.Context, userID uuid.UUID, start time.Time, tier Tier) (*CreditPeriod, error)
	ListUsage(ctx context.Context, userID uuid.UUID, start time.Time) ([]UsageEntry, error)
}

// SubscriptionRepository defines access for subscription persistence.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, subscription *Subscription) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}
