package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
	auditPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/infrastructure/persistence"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/infrastructure/persistence"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations/migrationstest"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/outbox"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

type fixture struct {
	svc     *Service
	audit   *auditPersistence.MemoryRepository
	outbox  *outbox.MemoryRepository
	metrics *observability.InMemoryMetrics
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		audit:   auditPersistence.NewMemoryRepository(),
		outbox:  outbox.NewMemoryRepository(),
		metrics: observability.NewInMemoryMetrics(),
		clock:   time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(
		persistence.NewMemoryCreditRepository(),
		persistence.NewMemorySubscriptionRepository(),
		f.audit, f.outbox, nil, observability.DiscardLogger(),
	).WithMetrics(f.metrics).WithClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) userOnTier(t *testing.T, tier domain.Tier) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := f.svc.SetTier(context.Background(), userID, tier)
	require.NoError(t, err)
	return userID
}

func TestService_StarterCannotOverspend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.userOnTier(t, domain.TierStarter)

	res, err := f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 95})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(95), res.NewConsumed)

	decision, err := f.svc.CanAfford(ctx, userID, domain.ActionEnrich, 3)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(6), decision.Cost)
	assert.Equal(t, int64(5), decision.Remaining.Credits)

	res, err = f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionEnrich, Count: 3})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int64(95), res.NewConsumed)

	usage, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(95), usage.Consumed)
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricCreditCharges,
		observability.T("action", "enrich"), observability.T("outcome", "denied")))
}

func TestService_FreeActionsAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 25})
	require.NoError(t, err)

	decision, err := f.svc.CanAfford(ctx, userID, domain.ActionCall, 10)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	res, err := f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionEmail, Count: 3})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(25), res.NewConsumed)

	entries, err := f.svc.ListUsage(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, entries, 28)
}

func TestService_CurrentUsageIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()

	first, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	second, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.TierFree, first.Tier)
	assert.Zero(t, first.Consumed)
	assert.Equal(t, int64(25), first.Remaining.Credits)
}

func TestService_ChargeIsIdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	req := domain.ChargeRequest{UserID: userID, Action: domain.ActionSkipTrace, Count: 2, ReferenceID: "lead-42"}

	first, err := f.svc.Charge(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Success)

	replay, err := f.svc.Charge(ctx, req)
	require.NoError(t, err)
	assert.True(t, replay.Success)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.NewConsumed, replay.NewConsumed)

	usage, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), usage.Consumed)

	var charged int
	for _, msg := range f.outbox.Messages() {
		if msg.RoutingKey == domain.RoutingKeyCreditsCharged {
			charged++
		}
	}
	assert.Equal(t, 1, charged)
}

func TestService_ChargeWritesAuditTrail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionEnrich, Count: 2, ReferenceID: "r1"})
	require.NoError(t, err)

	entries, err := f.audit.List(ctx, auditTable, domain.PeriodKey(userID, f.clock))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditDomain.ActionCharge, entries[0].Action)
	assert.Equal(t, "0", *entries[0].OldValue)
	assert.Equal(t, "4", *entries[0].NewValue)
	assert.Contains(t, entries[0].Reason, "ref=r1")
}

func TestService_ConfigurationErrorsFailClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: "teleport", Count: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
	_, err = f.svc.CanAfford(ctx, userID, "teleport", 1)
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
	_, err = f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
	_, err = f.svc.CheckFeature(domain.TierEnterprise, "time_travel")
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)
	_, err = f.svc.SetTier(ctx, userID, "gold")
	assert.ErrorIs(t, err, domain.ErrUnknownTier)
}

type failingCredits struct {
	*persistence.MemoryCreditRepository
}

func (failingCredits) Debit(context.Context, domain.Debit) (domain.DebitOutcome, error) {
	return domain.DebitOutcome{}, errors.New("disk full")
}

func TestService_StorageFailureIsNotBilled(t *testing.T) {
	svc := NewService(failingCredits{persistence.NewMemoryCreditRepository()},
		persistence.NewMemorySubscriptionRepository(), nil, nil, nil, observability.DiscardLogger())

	res, err := svc.Charge(context.Background(), domain.ChargeRequest{UserID: uuid.New(), Action: domain.ActionScrape, Count: 1})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrChargeNotRecorded)
}

func TestService_RolloverResetsConsumedAndKeepsBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.GrantBonus(ctx, userID, 10, "referral")
	require.NoError(t, err)
	_, err = f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 30})
	require.NoError(t, err)

	october, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), october.BonusAvailable)
	assert.Equal(t, int64(5), october.Remaining.Credits)

	f.clock = f.clock.AddDate(0, 1, 0)
	november, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, november.Consumed)
	assert.Equal(t, int64(5), november.BonusAvailable)
	assert.Equal(t, int64(30), november.Remaining.Credits)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), november.PeriodStart)
}

func TestService_FeatureGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	decision, err := f.svc.HasFeature(ctx, uuid.New(), domain.FeatureCRMExport)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.TierStarter, decision.RequiredTier)

	growth := f.userOnTier(t, domain.TierGrowth)
	decision, err = f.svc.HasFeature(ctx, growth, domain.FeatureAICallRecaps)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	decision, err = f.svc.HasFeature(ctx, growth, domain.FeatureWhiteLabel)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestService_SetTierUpgradesCurrentPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 20})
	require.NoError(t, err)

	sub, err := f.svc.SetTier(ctx, userID, domain.TierGrowth)
	require.NoError(t, err)
	assert.Equal(t, domain.TierGrowth, sub.Tier)

	usage, err := f.svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierGrowth, usage.Tier)
	assert.Equal(t, int64(480), usage.Remaining.Credits)

	var changed bool
	for _, msg := range f.outbox.Messages() {
		changed = changed || msg.RoutingKey == domain.RoutingKeyTierChanged
	}
	assert.True(t, changed)
}

func TestService_SQLiteConcurrentChargesWithOneCreditLeft(t *testing.T) {
	ctx := context.Background()
	conn := migrationstest.NewSQLite(t)
	outboxRepo := outbox.NewSQLRepository(conn)
	svc := NewService(
		persistence.NewSQLCreditRepository(conn),
		persistence.NewSQLSubscriptionRepository(conn),
		auditPersistence.NewSQLRepository(conn),
		outboxRepo,
		database.NewUnitOfWork(conn),
		observability.DiscardLogger(),
	)
	userID := uuid.New()

	_, err := svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 24})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 1})
			if assert.NoError(t, err) && res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	usage, err := svc.CurrentUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), usage.Consumed)

	pending, err := outboxRepo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestService_OversizedCountLeavesBalanceUntouched(t *testing.T) {
	stores := map[string]func(t *testing.T) *Service{
		"memory": func(t *testing.T) *Service {
			return newFixture(t).svc
		},
		"sqlite": func(t *testing.T) *Service {
			conn := migrationstest.NewSQLite(t)
			return NewService(
				persistence.NewSQLCreditRepository(conn),
				persistence.NewSQLSubscriptionRepository(conn),
				auditPersistence.NewSQLRepository(conn),
				outbox.NewSQLRepository(conn),
				database.NewUnitOfWork(conn),
				observability.DiscardLogger(),
			)
		},
	}
	for name, newSvc := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newSvc(t)
			userID := uuid.New()

			_, err := svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionScrape, Count: 5})
			require.NoError(t, err)

			for _, count := range []int{domain.MaxCount + 1, 3074457345618258603, 6148914691236517205} {
				decision, err := svc.CanAfford(ctx, userID, domain.ActionSkipTrace, count)
				assert.ErrorIs(t, err, domain.ErrInvalidCount, "count=%d", count)
				assert.False(t, decision.Allowed)

				res, err := svc.Charge(ctx, domain.ChargeRequest{UserID: userID, Action: domain.ActionSkipTrace, Count: count})
				assert.ErrorIs(t, err, domain.ErrInvalidCount, "count=%d", count)
				assert.Nil(t, res)
			}

			usage, err := svc.CurrentUsage(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, int64(5), usage.Consumed)

			// The store stays usable for other users.
			other, err := svc.CurrentUsage(ctx, uuid.New())
			require.NoError(t, err)
			assert.Zero(t, other.Consumed)
		})
	}
}
