package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the current billing state.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is a user's tier assignment.
type Subscription struct {
	UserID    uuid.UUID
	Tier      Tier
	Status    SubscriptionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveTier is the tier used for allowances and gates. Canceled
// subscriptions fall back to free.
func (s *Subscription) EffectiveTier() Tier {
	if s == nil || s.Status == SubscriptionCanceled || !s.Tier.IsValid() {
		return TierFree
	}
	return s.Tier
}
