package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

// SQLRepository implements domain.Repository on PostgreSQL or SQLite. It only
// issues INSERT and SELECT statements.
type SQLRepository struct {
	conn database.Connection
}

// NewSQLRepository creates a new audit repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn}
}

// Append inserts entries using the transaction in ctx when present.
func (r *SQLRepository) Append(ctx context.Context, entries ...domain.Entry) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	query := database.Rebind(r.conn.Driver(), `
		INSERT INTO audit_log (id, table_name, record_id, action, field_name, old_value, new_value, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		var fieldName *string
		if e.FieldName != "" {
			fieldName = &e.FieldName
		}
		if _, err := exec.Exec(ctx, query,
			e.ID.String(),
			e.Table,
			e.RecordID,
			e.Action,
			fieldName,
			e.OldValue,
			e.NewValue,
			e.Reason,
			e.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
	}
	return nil
}

// List returns the entries for one record, oldest first.
func (r *SQLRepository) List(ctx context.Context, table, recordID string) ([]domain.Entry, error) {
	query := database.Rebind(r.conn.Driver(), `
		SELECT id, table_name, record_id, action, field_name, old_value, new_value, reason, created_at
		FROM audit_log
		WHERE table_name = ? AND record_id = ?
		ORDER BY created_at, id`)

	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, table, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			e         domain.Entry
			id        string
			fieldName *string
		)
		if err := rows.Scan(&id, &e.Table, &e.RecordID, &e.Action, &fieldName, &e.OldValue, &e.NewValue, &e.Reason, &e.Timestamp); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if fieldName != nil {
			e.FieldName = *fieldName
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.Repository = (*SQLRepository)(nil)
