package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations/migrationstest"
)

var october = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func creditRepositories(t *testing.T) map[string]func(t *testing.T) domain.CreditRepository {
	return map[string]func(t *testing.T) domain.CreditRepository{
		"memory": func(t *testing.T) domain.CreditRepository {
			return NewMemoryCreditRepository()
		},
		"sqlite": func(t *testing.T) domain.CreditRepository {
			return NewSQLCreditRepository(migrationstest.NewSQLite(t))
		},
		"redis": func(t *testing.T) domain.CreditRepository {
			srv := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisCreditRepository(client, "")
		},
	}
}

func scrape(userID uuid.UUID, count int, ref string) domain.Debit {
	return domain.Debit{
		UserID:      userID,
		PeriodStart: october,
		Action:      domain.ActionScrape,
		Count:       count,
		UnitCost:    1,
		ReferenceID: ref,
		At:          october.Add(time.Hour),
	}
}

func TestCreditRepositories(t *testing.T) {
	for name, newRepo := range creditRepositories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("EnsurePeriodIsLazyAndStable", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()

				missing, err := repo.FindPeriod(ctx, userID, october)
				require.NoError(t, err)
				assert.Nil(t, missing)

				p, err := repo.EnsurePeriod(ctx, userID, october.Add(36*time.Hour), domain.TierStarter)
				require.NoError(t, err)
				assert.Equal(t, october, p.PeriodStart.UTC())
				assert.Equal(t, domain.TierStarter, p.Tier)
				assert.Equal(t, int64(100), p.Allowance.Credits)
				assert.Zero(t, p.Consumed)

				again, err := repo.EnsurePeriod(ctx, userID, october, domain.TierGrowth)
				require.NoError(t, err)
				assert.Equal(t, domain.TierStarter, again.Tier)
			})

			t.Run("DebitIsConditional", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierFree)
				require.NoError(t, err)

				out, err := repo.Debit(ctx, scrape(userID, 20, "a"))
				require.NoError(t, err)
				assert.Equal(t, domain.DebitApplied, out.Status)
				assert.Equal(t, int64(20), out.Consumed)

				out, err = repo.Debit(ctx, scrape(userID, 6, "b"))
				require.NoError(t, err)
				assert.Equal(t, domain.DebitInsufficient, out.Status)
				assert.Equal(t, int64(20), out.Consumed)

				p, err := repo.FindPeriod(ctx, userID, october)
				require.NoError(t, err)
				assert.Equal(t, int64(20), p.Consumed)

				usage, err := repo.ListUsage(ctx, userID, october)
				require.NoError(t, err)
				assert.Len(t, usage, 20)
			})

			t.Run("OversizedDebitIsRejected", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierFree)
				require.NoError(t, err)
				_, err = repo.Debit(ctx, scrape(userID, 5, "a"))
				require.NoError(t, err)

				_, err = repo.Debit(ctx, scrape(userID, domain.MaxCount+1, "b"))
				assert.ErrorIs(t, err, domain.ErrInvalidCount)

				p, err := repo.FindPeriod(ctx, userID, october)
				require.NoError(t, err)
				assert.Equal(t, int64(5), p.Consumed)
			})

			t.Run("DuplicateReferenceDoesNotDebitTwice", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierFree)
				require.NoError(t, err)

				first, err := repo.Debit(ctx, scrape(userID, 2, "job-1"))
				require.NoError(t, err)
				require.Equal(t, domain.DebitApplied, first.Status)

				second, err := repo.Debit(ctx, scrape(userID, 2, "job-1"))
				require.NoError(t, err)
				assert.Equal(t, domain.DebitDuplicate, second.Status)
				assert.Equal(t, first.Consumed, second.Consumed)

				p, err := repo.FindPeriod(ctx, userID, october)
				require.NoError(t, err)
				assert.Equal(t, int64(2), p.Consumed)
			})

			t.Run("DebitWithoutPeriodFails", func(t *testing.T) {
				_, err := newRepo(t).Debit(context.Background(), scrape(uuid.New(), 1, "x"))
				assert.ErrorIs(t, err, domain.ErrPeriodNotFound)
			})

			t.Run("ConcurrentDebitsNeverOverdraw", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierFree)
				require.NoError(t, err)
				_, err = repo.Debit(ctx, scrape(userID, 24, "fill"))
				require.NoError(t, err)

				const workers = 8
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					successes int
				)
				for range workers {
					wg.Add(1)
					go func() {
						defer wg.Done()
						out, err := repo.Debit(ctx, scrape(userID, 1, ""))
						assert.NoError(t, err)
						if out.Status == domain.DebitApplied {
							mu.Lock()
							successes++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				assert.Equal(t, 1, successes)
				p, err := repo.FindPeriod(ctx, userID, october)
				require.NoError(t, err)
				assert.Equal(t, int64(25), p.Consumed)
			})

			t.Run("UnlimitedAllowanceAlwaysDebits", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierEnterprise)
				require.NoError(t, err)

				out, err := repo.Debit(ctx, scrape(userID, 5000, ""))
				require.NoError(t, err)
				assert.Equal(t, domain.DebitApplied, out.Status)
				assert.Equal(t, int64(5000), out.Consumed)
			})

			t.Run("BonusCarriesIntoNextPeriod", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierFree)
				require.NoError(t, err)

				p, err := repo.GrantBonus(ctx, userID, october, 10)
				require.NoError(t, err)
				assert.Equal(t, int64(10), p.Bonus)

				// 25 allowance + 3 of the bonus.
				out, err := repo.Debit(ctx, scrape(userID, 28, ""))
				require.NoError(t, err)
				require.Equal(t, domain.DebitApplied, out.Status)

				november := october.AddDate(0, 1, 0)
				next, err := repo.EnsurePeriod(ctx, userID, november, domain.TierFree)
				require.NoError(t, err)
				assert.Zero(t, next.Consumed)
				assert.Equal(t, int64(7), next.Bonus)
				assert.Equal(t, int64(32), next.Remaining().Credits)

				_, err = repo.GrantBonus(ctx, userID, november.AddDate(0, 1, 0), 5)
				assert.ErrorIs(t, err, domain.ErrPeriodNotFound)
				_, err = repo.GrantBonus(ctx, userID, november, 0)
				assert.ErrorIs(t, err, domain.ErrInvalidCredits)
			})

			t.Run("SetPeriodTier", func(t *testing.T) {
				ctx := context.Background()
				repo := newRepo(t)
				userID := uuid.New()
				_, err := repo.EnsurePeriod(ctx, userID, october, domain.TierFree)
				require.NoError(t, err)

				p, err := repo.SetPeriodTier(ctx, userID, october, domain.TierEnterprise)
				require.NoError(t, err)
				assert.Equal(t, domain.TierEnterprise, p.Tier)
				assert.True(t, p.Allowance.Unlimited)

				_, err = repo.SetPeriodTier(ctx, userID, october, "gold")
				assert.ErrorIs(t, err, domain.ErrUnknownTier)
			})
		})
	}
}

func TestSubscriptionRepositories(t *testing.T) {
	repos := map[string]domain.SubscriptionRepository{
		"memory": NewMemorySubscriptionRepository(),
		"sqlite": NewSQLSubscriptionRepository(migrationstest.NewSQLite(t)),
	}
	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			userID := uuid.New()

			none, err := repo.FindByUserID(ctx, userID)
			require.NoError(t, err)
			assert.Nil(t, none)

			require.NoError(t, repo.Upsert(ctx, &domain.Subscription{UserID: userID, Tier: domain.TierStarter}))
			require.NoError(t, repo.Upsert(ctx, &domain.Subscription{UserID: userID, Tier: domain.TierScale, Status: domain.SubscriptionTrialing}))

			sub, err := repo.FindByUserID(ctx, userID)
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, domain.TierScale, sub.Tier)
			assert.Equal(t, domain.SubscriptionTrialing, sub.Status)
			assert.False(t, sub.CreatedAt.IsZero())
		})
	}
}
