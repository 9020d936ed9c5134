package domain

import (
	"context"

	"github.com/google/uuid"
)

// RecordRepository stores enrichment record versions.
type RecordRepository interface {
	// Save inserts a new version. Existing versions are never rewritten.
	Save(ctx context.Context, record *Record) error
	// Latest returns the highest version for the lead, or nil.
	Latest(ctx context.Context, leadID uuid.UUID) (*Record, error)
	// ListVersions returns every version for the lead, oldest first.
	ListVersions(ctx context.Context, leadID uuid.UUID) ([]*Record, error)
	// MarkBilled flags a saved version as charged.
	MarkBilled(ctx context.Context, id uuid.UUID) error
}
