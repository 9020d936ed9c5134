// Package domain holds the event envelope shared by the billing and
// enrichment contexts.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact recorded in the outbox and relayed to the broker under
// its routing key.
type Event interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata traces an event back to the request and user that caused it.
type EventMetadata struct {
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
	UserID        uuid.UUID `json:"user_id"`
}

// BaseEvent is embedded by concrete events. Its identifying fields are part
// of the JSON payload so consumers can deduplicate on event_id; metadata
// travels in the message headers instead.
type BaseEvent struct {
	ID        uuid.UUID `json:"event_id"`
	Aggregate uuid.UUID `json:"aggregate_id"`
	Type      string    `json:"aggregate_type"`
	Key       string    `json:"-"`
	At        time.Time `json:"occurred_at"`

	meta EventMetadata
}

// NewBaseEvent stamps a new event for the aggregate.
func NewBaseEvent(aggregateID uuid.UUID, aggregateType, routingKey string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Aggregate: aggregateID,
		Type:      aggregateType,
		Key:       routingKey,
		At:        time.Now().UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.ID }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.Aggregate }
func (e BaseEvent) AggregateType() string   { return e.Type }
func (e BaseEvent) RoutingKey() string      { return e.Key }
func (e BaseEvent) OccurredAt() time.Time   { return e.At }
func (e BaseEvent) Metadata() EventMetadata { return e.meta }

// SetMetadata attaches tracing metadata.
func (e *BaseEvent) SetMetadata(metadata EventMetadata) {
	e.meta = metadata
}
