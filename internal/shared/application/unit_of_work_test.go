package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestWithUnitOfWork(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		ctx := context.Background()
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Commit", ctx).Return(nil)

		called := false
		err := WithUnitOfWork(ctx, uow, func(context.Context) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, called)
		uow.AssertExpectations(t)
		uow.AssertNotCalled(t, "Rollback", mock.Anything)
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		ctx := context.Background()
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Rollback", ctx).Return(nil)

		boom := errors.New("boom")
		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return boom })

		assert.ErrorIs(t, err, boom)
		uow.AssertExpectations(t)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("rolls back and repanics when fn panics", func(t *testing.T) {
		ctx := context.Background()
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Rollback", ctx).Return(nil)

		assert.PanicsWithValue(t, "makeslice: cap out of range", func() {
			_ = WithUnitOfWork(ctx, uow, func(context.Context) error {
				panic("makeslice: cap out of range")
			})
		})
		uow.AssertExpectations(t)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("begin failure skips fn", func(t *testing.T) {
		ctx := context.Background()
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(ctx, errors.New("no connection"))

		called := false
		err := WithUnitOfWork(ctx, uow, func(context.Context) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("nil unit of work runs fn directly", func(t *testing.T) {
		result, err := WithUnitOfWorkResult(context.Background(), nil, func(context.Context) (int, error) {
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, result)
	})
}

type stampedEvent struct {
	domain.BaseEvent
}

func TestEventMetadataFromContext(t *testing.T) {
	userID := uuid.New()
	ctx := observability.WithCorrelationID(context.Background(), "corr-42")

	meta := EventMetadataFromContext(ctx, userID)
	assert.Equal(t, "corr-42", meta.CorrelationID)
	assert.NotEmpty(t, meta.CausationID)
	assert.Equal(t, userID, meta.UserID)

	event := &stampedEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "test", "test.happened")}
	ApplyEventMetadata([]domain.Event{event}, meta)
	assert.Equal(t, meta, event.Metadata())
}
