package domain

import (
	"github.com/google/uuid"

	sharedDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/domain"
)

const (
	AggregateType = "enrichment_record"

	RoutingKeyEnrichmentCompleted = "enrichment.completed"
)

// EnrichmentCompleted is emitted when a record version is saved.
type EnrichmentCompleted struct {
	sharedDomain.BaseEvent
	RecordID      uuid.UUID   `json:"record_id"`
	LeadID        uuid.UUID   `json:"lead_id"`
	Version       int         `json:"version"`
	State         State       `json:"state"`
	ProvidersUsed []string    `json:"providers_used"`
	Missing       []FieldName `json:"missing"`
}

// NewEnrichmentCompleted creates the event for r.
func NewEnrichmentCompleted(r *Record) *EnrichmentCompleted {
	return &EnrichmentCompleted{
		BaseEvent:     sharedDomain.NewBaseEvent(r.ID, AggregateType, RoutingKeyEnrichmentCompleted),
		RecordID:      r.ID,
		LeadID:        r.LeadID,
		Version:       r.Version,
		State:         r.State,
		ProvidersUsed: r.ProvidersUsed,
		Missing:       r.Missing,
	}
}
