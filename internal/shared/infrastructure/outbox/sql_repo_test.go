package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations/migrationstest"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/outbox"
)

type creditsCharged struct {
	domain.BaseEvent
	Cost int64 `json:"cost"`
}

func newEvent(t *testing.T, cost int64) *creditsCharged {
	t.Helper()
	evt := &creditsCharged{BaseEvent: domain.NewBaseEvent(uuid.New(), "credit_period", "credits.charged"), Cost: cost}
	evt.SetMetadata(domain.EventMetadata{CorrelationID: "corr-1", UserID: uuid.New()})
	return evt
}

func TestSQLRepository_SaveAndGetUnpublished(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewSQLRepository(migrationstest.NewSQLite(t))

	evt := newEvent(t, 2)
	msg, err := outbox.NewMessage(evt)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, msg))
	assert.NotZero(t, msg.ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got := pending[0]
	assert.Equal(t, evt.EventID(), got.EventID)
	assert.Equal(t, evt.AggregateID(), got.AggregateID)
	assert.Equal(t, "credits.charged", got.RoutingKey)
	assert.JSONEq(t, string(msg.Payload), string(got.Payload))
	assert.Contains(t, string(got.Metadata), "corr-1")
	assert.Nil(t, got.PublishedAt)

	require.NoError(t, repo.MarkPublished(ctx, got.ID))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLRepository_FailedMessagesWaitForRetry(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewSQLRepository(migrationstest.NewSQLite(t))

	msgs, err := outbox.NewMessages([]domain.Event{newEvent(t, 1), newEvent(t, 3)})
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(ctx, msgs))

	require.NoError(t, repo.MarkFailed(ctx, msgs[0].ID, "broker down", time.Now().Add(time.Hour)))
	require.NoError(t, repo.MarkDead(ctx, msgs[1].ID, "poison"))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.MarkFailed(ctx, msgs[0].ID, "broker down", time.Now().Add(-time.Second)))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "broker down", *pending[0].LastError)
}

func TestSQLRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewSQLRepository(migrationstest.NewSQLite(t))

	msg, err := outbox.NewMessage(newEvent(t, 1))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, msg))
	require.NoError(t, repo.MarkPublished(ctx, msg.ID))

	deleted, err := repo.DeleteOld(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeleteOld(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
