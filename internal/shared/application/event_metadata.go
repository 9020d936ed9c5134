package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// EventMetadataFromContext builds event metadata for the acting user, carrying
// the request's correlation and request IDs when present.
func EventMetadataFromContext(ctx context.Context, userID uuid.UUID) domain.EventMetadata {
	correlationID := observability.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	causationID := observability.RequestIDFromContext(ctx)
	if causationID == "" {
		causationID = uuid.NewString()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   causationID,
		UserID:        userID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.Event, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
