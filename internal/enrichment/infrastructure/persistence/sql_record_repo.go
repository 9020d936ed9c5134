package persistence

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

// SQLRecordRepository stores enrichment record versions. On PostgreSQL the
// missing and providers_used columns are TEXT[] arrays; on SQLite every
// list is a JSON document.
type SQLRecordRepository struct {
	conn database.Connection
}

// NewSQLRecordRepository creates a record repository on conn.
func NewSQLRecordRepository(conn database.Connection) *SQLRecordRepository {
	return &SQLRecordRepository{conn: conn}
}

func (r *SQLRecordRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRecordRepository) postgres() bool {
	return r.conn.Driver() == database.DriverPostgres
}

func (r *SQLRecordRepository) columns() string {
	if r.postgres() {
		return `id, lead_id, user_id, version, domain, fields::TEXT, missing::TEXT,
			providers_used::TEXT, step_log::TEXT, state, billed, created_at`
	}
	return `id, lead_id, user_id, version, domain, fields, missing,
		providers_used, step_log, state, billed, created_at`
}

// Save inserts record as a new version.
func (r *SQLRecordRepository) Save(ctx context.Context, record *domain.Record) error {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	steps, err := json.Marshal(record.Steps)
	if err != nil {
		return fmt.Errorf("encode step log: %w", err)
	}
	missing, err := r.encodeList(fieldNames(record.Missing))
	if err != nil {
		return err
	}
	providers, err := r.encodeList(record.ProvidersUsed)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO enrichment_records
			(id, lead_id, user_id, version, domain, fields, missing, providers_used, step_log, state, billed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if r.postgres() {
		query = `
		INSERT INTO enrichment_records
			(id, lead_id, user_id, version, domain, fields, missing, providers_used, step_log, state, billed, created_at)
		VALUES (?, ?, ?, ?, ?, CAST(? AS TEXT)::JSONB, CAST(? AS TEXT)::TEXT[], CAST(? AS TEXT)::TEXT[],
			CAST(? AS TEXT)::JSONB, ?, ?, ?)`
	}

	_, err = r.exec(ctx).Exec(ctx, database.Rebind(r.conn.Driver(), query),
		record.ID.String(),
		record.LeadID.String(),
		record.UserID.String(),
		record.Version,
		record.Domain,
		string(fields),
		missing,
		providers,
		string(steps),
		string(record.State),
		record.Billed,
		record.CreatedAt.UTC(),
	)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("enrichment version %d of lead %s already exists: %w", record.Version, record.LeadID, err)
	}
	if err != nil {
		return fmt.Errorf("insert enrichment record: %w", err)
	}
	return nil
}

// Latest returns the lead's highest version, or nil when it has none.
func (r *SQLRecordRepository) Latest(ctx context.Context, leadID uuid.UUID) (*domain.Record, error) {
	query := database.Rebind(r.conn.Driver(), `
		SELECT `+r.columns()+`
		FROM enrichment_records
		WHERE lead_id = ?
		ORDER BY version DESC
		LIMIT 1`)

	record, err := r.scan(r.exec(ctx).QueryRow(ctx, query, leadID.String()))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return record, err
}

// ListVersions returns the lead's versions, oldest first.
func (r *SQLRecordRepository) ListVersions(ctx context.Context, leadID uuid.UUID) ([]*domain.Record, error) {
	query := database.Rebind(r.conn.Driver(), `
		SELECT `+r.columns()+`
		FROM enrichment_records
		WHERE lead_id = ?
		ORDER BY version`)

	rows, err := r.exec(ctx).Query(ctx, query, leadID.String())
	if err != nil {
		return nil, fmt.Errorf("list enrichment records: %w", err)
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkBilled flags a version as charged. The billed flag is the only
// column ever updated after insert.
func (r *SQLRecordRepository) MarkBilled(ctx context.Context, id uuid.UUID) error {
	query := database.Rebind(r.conn.Driver(), `UPDATE enrichment_records SET billed = ? WHERE id = ?`)
	result, err := r.exec(ctx).Exec(ctx, query, true, id.String())
	if err != nil {
		return fmt.Errorf("mark enrichment billed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *SQLRecordRepository) scan(row database.Row) (*domain.Record, error) {
	var (
		id, leadID, userID string
		fields, steps      string
		missing, providers string
		state              string
		record             domain.Record
		createdAt          time.Time
	)
	if err := row.Scan(
		&id, &leadID, &userID, &record.Version, &record.Domain,
		&fields, &missing, &providers, &steps,
		&state, &record.Billed, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if record.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	if record.LeadID, err = uuid.Parse(leadID); err != nil {
		return nil, fmt.Errorf("parse lead id: %w", err)
	}
	if record.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &record.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &record.Steps); err != nil {
		return nil, fmt.Errorf("decode step log: %w", err)
	}
	missingNames, err := r.decodeList(missing)
	if err != nil {
		return nil, err
	}
	if record.ProvidersUsed, err = r.decodeList(providers); err != nil {
		return nil, err
	}
	for _, name := range missingNames {
		record.Missing = append(record.Missing, domain.FieldName(name))
	}
	if record.Fields == nil {
		record.Fields = domain.Fields{}
	}
	if record.Steps == nil {
		record.Steps = []domain.StepRecord{}
	}
	record.State = domain.State(state)
	record.CreatedAt = createdAt.UTC()
	return &record, nil
}

func (r *SQLRecordRepository) encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	if r.postgres() {
		v, err := pq.Array(items).Value()
		if err != nil {
			return "", fmt.Errorf("encode array: %w", err)
		}
		return asString(v), nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

func (r *SQLRecordRepository) decodeList(raw string) ([]string, error) {
	items := []string{}
	if r.postgres() {
		if err := pq.Array(&items).Scan(raw); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return items, nil
	}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

func asString(v driver.Value) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return "{}"
	}
}

func fieldNames(names []domain.FieldName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
