package outbox

import (
	"context"
	"time"

	sharedApplication "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

const messageColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	payload, metadata, created_at, published_at, next_retry_at, retry_count,
	last_error, dead_lettered_at, dead_letter_reason`

// SQLRepository implements Repository on either supported database driver.
// It joins the caller's transaction when one is present in the context.
type SQLRepository struct {
	conn database.Connection
	now  func() time.Time
}

// NewSQLRepository creates a new outbox repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

func (r *SQLRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save stores a new outbox message.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	var metadata *string
	if len(msg.Metadata) > 0 {
		s := string(msg.Metadata)
		metadata = &s
	}

	query := r.q(`
		INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, routing_key, payload, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	return r.exec(ctx).QueryRow(ctx, query,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		metadata,
		msg.CreatedAt.UTC(),
	).Scan(&msg.ID)
}

// SaveBatch stores multiple outbox messages atomically.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return sharedApplication.WithUnitOfWork(ctx, database.NewUnitOfWork(r.conn), func(txCtx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(txCtx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUnpublished retrieves messages due for publishing, oldest first.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := r.q(`
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`)

	rows, err := r.exec(ctx).Query(ctx, query, r.now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`UPDATE outbox SET published_at = ? WHERE id = ?`), r.now(), id)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	query := r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`)
	_, err := r.exec(ctx).Exec(ctx, query, errMsg, nextRetryAt.UTC(), id)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	query := r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1, dead_lettered_at = ?, dead_letter_reason = ?
		WHERE id = ?`)
	_, err := r.exec(ctx).Exec(ctx, query, r.now(), reason, id)
	return err
}

// DeleteOld removes successfully published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.exec(ctx).Exec(ctx, r.q(`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessage(row database.Row) (*Message, error) {
	var (
		msg         Message
		eventID     string
		aggregateID string
		payload     []byte
		metadata    []byte
	)
	err := row.Scan(
		&msg.ID,
		&eventID,
		&msg.AggregateType,
		&aggregateID,
		&msg.EventType,
		&msg.RoutingKey,
		&payload,
		&metadata,
		&msg.CreatedAt,
		&msg.PublishedAt,
		&msg.NextRetryAt,
		&msg.RetryCount,
		&msg.LastError,
		&msg.DeadLetteredAt,
		&msg.DeadLetterReason,
	)
	if err != nil {
		return nil, err
	}
	if msg.EventID, err = parseUUID(eventID); err != nil {
		return nil, err
	}
	if msg.AggregateID, err = parseUUID(aggregateID); err != nil {
		return nil, err
	}
	msg.Payload = payload
	if len(metadata) > 0 {
		msg.Metadata = metadata
	}
	return &msg, nil
}
