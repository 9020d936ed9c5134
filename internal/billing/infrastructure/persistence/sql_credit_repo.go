package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	sharedApplication "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

const periodColumns = `user_id, period_start, tier, allowance, consumed, bonus_credits, created_at, updated_at`

// SQLCreditRepository implements domain.CreditRepository on PostgreSQL or
// SQLite. Every write joins the transaction carried by the context.
type SQLCreditRepository struct {
	conn database.Connection
	now  func() time.Time
}

// NewSQLCreditRepository creates a new credit repository.
func NewSQLCreditRepository(conn database.Connection) *SQLCreditRepository {
	return &SQLCreditRepository{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

func (r *SQLCreditRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLCreditRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// FindPeriod returns nil when no row exists for the month.
func (r *SQLCreditRepository) FindPeriod(ctx context.Context, userID uuid.UUID, start time.Time) (*domain.CreditPeriod, error) {
	row := r.exec(ctx).QueryRow(ctx, r.q(`
		SELECT `+periodColumns+`
		FROM credit_periods
		WHERE user_id = ? AND period_start = ?`),
		userID.String(), domain.PeriodStart(start),
	)
	period, err := scanPeriod(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return period, err
}

// EnsurePeriod lazily opens the month, carrying the latest earlier period's
// unspent bonus forward.
func (r *SQLCreditRepository) EnsurePeriod(ctx context.Context, userID uuid.UUID, start time.Time, tier domain.Tier) (*domain.CreditPeriod, error) {
	start = domain.PeriodStart(start)
	existing, err := r.FindPeriod(ctx, userID, start)
	if err != nil || existing != nil {
		return existing, err
	}

	previous, err := r.previousPeriod(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	period, err := domain.NewCreditPeriod(userID, start, tier, previous)
	if err != nil {
		return nil, err
	}

	_, err = r.exec(ctx).Exec(ctx, r.q(`
		INSERT INTO credit_periods (`+periodColumns+`)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id, period_start) DO NOTHING`),
		userID.String(),
		start,
		string(period.Tier),
		period.Allowance.Stored(),
		period.Bonus,
		period.CreatedAt,
		period.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("open credit period: %w", err)
	}
	return r.FindPeriod(ctx, userID, start)
}

func (r *SQLCreditRepository) previousPeriod(ctx context.Context, userID uuid.UUID, start time.Time) (*domain.CreditPeriod, error) {
	row := r.exec(ctx).QueryRow(ctx, r.q(`
		SELECT `+periodColumns+`
		FROM credit_periods
		WHERE user_id = ? AND period_start < ?
		ORDER BY period_start DESC
		LIMIT 1`),
		userID.String(), start,
	)
	period, err := scanPeriod(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return period, err
}

// Debit performs the idempotency lookup, the conditional increment, and the
// charge and usage inserts in one unit of work.
func (r *SQLCreditRepository) Debit(ctx context.Context, debit domain.Debit) (domain.DebitOutcome, error) {
	if err := domain.ValidCount(debit.Count); err != nil {
		return domain.DebitOutcome{}, err
	}
	if debit.ReferenceID == "" {
		debit.ReferenceID = uuid.NewString()
	}
	if debit.At.IsZero() {
		debit.At = r.now()
	}
	debit.PeriodStart = domain.PeriodStart(debit.PeriodStart)

	return sharedApplication.WithUnitOfWorkResult(ctx, database.NewUnitOfWork(r.conn), func(txCtx context.Context) (domain.DebitOutcome, error) {
		exec := r.exec(txCtx)
		userID := debit.UserID.String()

		var prior int64
		err := exec.QueryRow(txCtx, r.q(`
			SELECT consumed_after FROM credit_charges
			WHERE user_id = ? AND reference_id = ?`),
			userID, debit.ReferenceID,
		).Scan(&prior)
		switch {
		case err == nil:
			return domain.DebitOutcome{Status: domain.DebitDuplicate, Consumed: prior}, nil
		case !database.IsNoRows(err):
			return domain.DebitOutcome{}, err
		}

		cost := debit.Cost()
		var consumed int64
		err = exec.QueryRow(txCtx, r.q(`
			UPDATE credit_periods
			SET consumed = consumed + ?, updated_at = ?
			WHERE user_id = ? AND period_start = ?
			  AND (allowance < 0 OR allowance + bonus_credits - consumed >= ?)
			RETURNING consumed`),
			cost, debit.At, userID, debit.PeriodStart, cost,
		).Scan(&consumed)
		if database.IsNoRows(err) {
			period, findErr := r.FindPeriod(txCtx, debit.UserID, debit.PeriodStart)
			if findErr != nil {
				return domain.DebitOutcome{}, findErr
			}
			if period == nil {
				return domain.DebitOutcome{}, domain.ErrPeriodNotFound
			}
			return domain.DebitOutcome{Status: domain.DebitInsufficient, Consumed: period.Consumed}, nil
		}
		if err != nil {
			return domain.DebitOutcome{}, err
		}

		_, err = exec.Exec(txCtx, r.q(`
			INSERT INTO credit_charges (id, user_id, reference_id, period_start, action, unit_count, cost, consumed_after, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			uuid.NewString(), userID, debit.ReferenceID, debit.PeriodStart,
			string(debit.Action), debit.Count, cost, consumed, debit.At,
		)
		if database.IsUniqueViolation(err) {
			return domain.DebitOutcome{}, domain.ErrDuplicateCharge
		}
		if err != nil {
			return domain.DebitOutcome{}, err
		}

		usage := r.q(`
			INSERT INTO credit_usage (id, user_id, period_start, action, cost, reference_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		for _, entry := range debit.UsageEntries() {
			if _, err := exec.Exec(txCtx, usage,
				entry.ID.String(), userID, entry.PeriodStart, string(entry.Action),
				entry.Cost, entry.ReferenceID, entry.CreatedAt,
			); err != nil {
				return domain.DebitOutcome{}, err
			}
		}

		return domain.DebitOutcome{Status: domain.DebitApplied, Consumed: consumed}, nil
	})
}

// GrantBonus adds credits to the month's bonus pool.
func (r *SQLCreditRepository) GrantBonus(ctx context.Context, userID uuid.UUID, start time.Time, credits int64) (*domain.CreditPeriod, error) {
	if credits <= 0 {
		return nil, domain.ErrInvalidCredits
	}
	row := r.exec(ctx).QueryRow(ctx, r.q(`
		UPDATE credit_periods
		SET bonus_credits = bonus_credits + ?, updated_at = ?
		WHERE user_id = ? AND period_start = ?
		RETURNING `+periodColumns),
		credits, r.now(), userID.String(), domain.PeriodStart(start),
	)
	return notFoundAsError(scanPeriod(row))
}

// SetPeriodTier moves the month onto tier's allowance.
func (r *SQLCreditRepository) SetPeriodTier(ctx context.Context, userID uuid.UUID, start time.Time, tier domain.Tier) (*domain.CreditPeriod, error) {
	allowance, err := domain.AllowanceFor(tier)
	if err != nil {
		return nil, err
	}
	row := r.exec(ctx).QueryRow(ctx, r.q(`
		UPDATE credit_periods
		SET tier = ?, allowance = ?, updated_at = ?
		WHERE user_id = ? AND period_start = ?
		RETURNING `+periodColumns),
		string(tier), allowance.Stored(), r.now(), userID.String(), domain.PeriodStart(start),
	)
	return notFoundAsError(scanPeriod(row))
}

// ListUsage returns the month's usage entries, oldest first.
func (r *SQLCreditRepository) ListUsage(ctx context.Context, userID uuid.UUID, start time.Time) ([]domain.UsageEntry, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(`
		SELECT id, user_id, period_start, action, cost, reference_id, created_at
		FROM credit_usage
		WHERE user_id = ? AND period_start = ?
		ORDER BY created_at, id`),
		userID.String(), domain.PeriodStart(start),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.UsageEntry
	for rows.Next() {
		var (
			e           domain.UsageEntry
			id, user    string
			action      string
			referenceID *string
		)
		if err := rows.Scan(&id, &user, &e.PeriodStart, &action, &e.Cost, &referenceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if e.UserID, err = uuid.Parse(user); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		if referenceID != nil {
			e.ReferenceID = *referenceID
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanPeriod(row database.Row) (*domain.CreditPeriod, error) {
	var (
		p         domain.CreditPeriod
		userID    string
		tier      string
		allowance int64
	)
	if err := row.Scan(&userID, &p.PeriodStart, &tier, &allowance, &p.Consumed, &p.Bonus, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil, err
	}
	p.UserID = parsed
	p.PeriodStart = domain.PeriodStart(p.PeriodStart)
	p.Tier = domain.Tier(tier)
	p.Allowance = domain.AllowanceFromStored(allowance)
	return &p, nil
}

func notFoundAsError(p *domain.CreditPeriod, err error) (*domain.CreditPeriod, error) {
	if database.IsNoRows(err) {
		return nil, domain.ErrPeriodNotFound
	}
	return p, err
}

var _ domain.CreditRepository = (*SQLCreditRepository)(nil)
