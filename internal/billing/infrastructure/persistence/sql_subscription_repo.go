package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

// SQLSubscriptionRepository implements SubscriptionRepository on PostgreSQL
// or SQLite.
type SQLSubscriptionRepository struct {
	conn database.Connection
}

// NewSQLSubscriptionRepository creates a new repository.
func NewSQLSubscriptionRepository(conn database.Connection) *SQLSubscriptionRepository {
	return &SQLSubscriptionRepository{conn: conn}
}

// Upsert inserts or updates a subscription.
func (r *SQLSubscriptionRepository) Upsert(ctx context.Context, subscription *domain.Subscription) error {
	now := time.Now().UTC()
	if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = now
	}
	subscription.UpdatedAt = now
	if subscription.Status == "" {
		subscription.Status = domain.SubscriptionActive
	}

	query := database.Rebind(r.conn.Driver(), `
		INSERT INTO subscriptions (user_id, tier, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = excluded.tier,
			status = excluded.status,
			updated_at = excluded.updated_at`)

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		subscription.UserID.String(),
		string(subscription.Tier),
		string(subscription.Status),
		subscription.CreatedAt.UTC(),
		subscription.UpdatedAt,
	)
	return err
}

// FindByUserID returns the subscription for a user, or nil when none exists.
func (r *SQLSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := database.Rebind(r.conn.Driver(), `
		SELECT tier, status, created_at, updated_at
		FROM subscriptions
		WHERE user_id = ?`)

	var (
		tier, status string
		sub          = domain.Subscription{UserID: userID}
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, userID.String()).
		Scan(&tier, &status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	sub.Tier = domain.Tier(tier)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

var _ domain.SubscriptionRepository = (*SQLSubscriptionRepository)(nil)
