package outbox

import (
	"context"
	"time"
)

// Writer is the side of the outbox used by the billing and enrichment
// services. Saves join the unit of work found in ctx.
type Writer interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error
}

// Relay is the side of the outbox drained by the Processor.
type Relay interface {
	// GetUnpublished returns messages due for publishing, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64) error
	// MarkFailed records a publish failure and schedules the next attempt.
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error
	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}

// Repository is a complete outbox store.
type Repository interface {
	Writer
	Relay
}
