package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChargeRequest asks to debit count units of action. ReferenceID makes
// retries safe: a replayed reference returns the first outcome.
type ChargeRequest struct {
	UserID      uuid.UUID
	Action      Action
	Count       int
	ReferenceID string
}

// ChargeResult reports a charge outcome.
type ChargeResult struct {
	Success     bool      `json:"success"`
	NewConsumed int64     `json:"new_consumed"`
	Cost        int64     `json:"cost"`
	Remaining   Remaining `json:"remaining"`
	ReferenceID string    `json:"reference_id"`
	Duplicate   bool      `json:"duplicate,omitempty"`
}

// UsageEntry records one unit of a charged action.
type UsageEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	Action      Action    `json:"action"`
	Cost        int64     `json:"cost"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Debit is the storage-level request behind a charge.
type Debit struct {
	UserID      uuid.UUID
	PeriodStart time.Time
	Action      Action
	Count       int
	UnitCost    int64
	ReferenceID string
	At          time.Time
}

// Cost is the total credits debited.
func (d Debit) Cost() int64 {
	return d.UnitCost * int64(d.Count)
}

// UsageEntries expands the debit to one entry per unit.
func (d Debit) UsageEntries() []UsageEntry {
	entries := make([]UsageEntry, 0, d.Count)
	for range d.Count {
		entries = append(entries, UsageEntry{
			ID:          uuid.New(),
			UserID:      d.UserID,
			PeriodStart: d.PeriodStart,
			Action:      d.Action,
			Cost:        d.UnitCost,
			ReferenceID: d.ReferenceID,
			CreatedAt:   d.At,
		})
	}
	return entries
}

// DebitStatus is the outcome of a conditional debit.
type DebitStatus string

const (
	DebitApplied      DebitStatus = "applied"
	DebitInsufficient DebitStatus = "insufficient"
	DebitDuplicate    DebitStatus = "duplicate"
)

// DebitOutcome is returned by CreditRepository.Debit. Consumed is the
// period's consumption after the debit, or the recorded value for a
// duplicate reference.
type DebitOutcome struct {
	Status   DebitStatus
	Consumed int64
}
