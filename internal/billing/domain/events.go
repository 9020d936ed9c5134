package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/domain"
)

const (
	// AggregateType is the outbox aggregate type for credit events.
	AggregateType = "credit_period"

	RoutingKeyCreditsCharged      = "credits.charged"
	RoutingKeyBonusCreditsGranted = "credits.bonus_granted"
	RoutingKeyTierChanged         = "subscription.tier_changed"
)

// CreditsCharged is emitted after a successful debit.
type CreditsCharged struct {
	sharedDomain.BaseEvent
	UserID      uuid.UUID `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	Action      Action    `json:"action"`
	Count       int       `json:"count"`
	Cost        int64     `json:"cost"`
	Consumed    int64     `json:"consumed"`
	ReferenceID string    `json:"reference_id"`
}

// NewCreditsCharged creates the event for a debit.
func NewCreditsCharged(d Debit, consumed int64) *CreditsCharged {
	return &CreditsCharged{
		BaseEvent:   sharedDomain.NewBaseEvent(d.UserID, AggregateType, RoutingKeyCreditsCharged),
		UserID:      d.UserID,
		PeriodStart: d.PeriodStart,
		Action:      d.Action,
		Count:       d.Count,
		Cost:        d.Cost(),
		Consumed:    consumed,
		ReferenceID: d.ReferenceID,
	}
}

// BonusCreditsGranted is emitted when bonus credits are attached.
type BonusCreditsGranted struct {
	sharedDomain.BaseEvent
	UserID  uuid.UUID `json:"user_id"`
	Credits int64     `json:"credits"`
	Reason  string    `json:"reason"`
}

// NewBonusCreditsGranted creates the grant event.
func NewBonusCreditsGranted(userID uuid.UUID, credits int64, reason string) *BonusCreditsGranted {
	return &BonusCreditsGranted{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyBonusCreditsGranted),
		UserID:    userID,
		Credits:   credits,
		Reason:    reason,
	}
}

// TierChanged is emitted when a subscription moves between tiers.
type TierChanged struct {
	sharedDomain.BaseEvent
	UserID uuid.UUID `json:"user_id"`
	From   Tier      `json:"from"`
	To     Tier      `json:"to"`
}

// NewTierChanged creates the tier change event.
func NewTierChanged(userID uuid.UUID, from, to Tier) *TierChanged {
	return &TierChanged{
		BaseEvent: sharedDomain.NewBaseEvent(userID, "subscription", RoutingKeyTierChanged),
		UserID:    userID,
		From:      from,
		To:        to,
	}
}
