// Package domain holds the append-only audit trail written alongside credit
// charges and enrichment record versions.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionCharge     = "charge"
	ActionBonusGrant = "bonus_grant"
	ActionTierChange = "tier_change"
	ActionEnrich     = "enrich"
)

// ErrInvalidEntry is returned when an entry lacks its table, record or action.
var ErrInvalidEntry = errors.New("audit entry requires table, record id and action")

// Entry is one immutable audit row.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	Action    string    `json:"action"`
	FieldName string    `json:"field_name,omitempty"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntry creates an entry stamped with a fresh ID and the current time.
func NewEntry(table, recordID, action, reason string) Entry {
	return Entry{
		ID:        uuid.New(),
		Table:     table,
		RecordID:  recordID,
		Action:    action,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// ForField returns a copy of e describing a change to one field.
func (e Entry) ForField(name string, oldValue, newValue *string) Entry {
	e.ID = uuid.New()
	e.FieldName = name
	e.OldValue = oldValue
	e.NewValue = newValue
	return e
}

// Validate checks the required attributes.
func (e Entry) Validate() error {
	if e.Table == "" || e.RecordID == "" || e.Action == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Value is a helper for building optional old/new values.
func Value(s string) *string {
	return &s
}

// Repository appends and lists audit entries. Implementations never update
// or delete rows.
type Repository interface {
	Append(ctx context.Context, entries ...Entry) error
	List(ctx context.Context, table, recordID string) ([]Entry, error)
}
