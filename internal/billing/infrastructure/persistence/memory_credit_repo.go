package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

type periodKey struct {
	userID uuid.UUID
	start  time.Time
}

type chargeKey struct {
	userID      uuid.UUID
	referenceID string
}

// MemoryCreditRepository is a mutex-guarded credit store for tests and
// ephemeral runs.
type MemoryCreditRepository struct {
	mu      sync.Mutex
	periods map[periodKey]*domain.CreditPeriod
	charges map[chargeKey]int64
	usage   map[periodKey][]domain.UsageEntry
}

// NewMemoryCreditRepository creates an empty store.
func NewMemoryCreditRepository() *MemoryCreditRepository {
	return &MemoryCreditRepository{
		periods: make(map[periodKey]*domain.CreditPeriod),
		charges: make(map[chargeKey]int64),
		usage:   make(map[periodKey][]domain.UsageEntry),
	}
}

func keyOf(userID uuid.UUID, start time.Time) periodKey {
	return periodKey{userID: userID, start: domain.PeriodStart(start)}
}

func (r *MemoryCreditRepository) FindPeriod(_ context.Context, userID uuid.UUID, start time.Time) (*domain.CreditPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(keyOf(userID, start)), nil
}

func (r *MemoryCreditRepository) EnsurePeriod(_ context.Context, userID uuid.UUID, start time.Time, tier domain.Tier) (*domain.CreditPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(userID, start)
	if p := r.copyOf(key); p != nil {
		return p, nil
	}

	var previous *domain.CreditPeriod
	for k, p := range r.periods {
		if k.userID != userID || !k.start.Before(key.start) {
			continue
		}
		if previous == nil || k.start.After(previous.PeriodStart) {
			previous = p
		}
	}
	period, err := domain.NewCreditPeriod(userID, key.start, tier, previous)
	if err != nil {
		return nil, err
	}
	r.periods[key] = period
	return r.copyOf(key), nil
}

func (r *MemoryCreditRepository) Debit(_ context.Context, debit domain.Debit) (domain.DebitOutcome, error) {
	if err := domain.ValidCount(debit.Count); err != nil {
		return domain.DebitOutcome{}, err
	}
	if debit.ReferenceID == "" {
		debit.ReferenceID = uuid.NewString()
	}
	if debit.At.IsZero() {
		debit.At = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ck := chargeKey{userID: debit.UserID, referenceID: debit.ReferenceID}
	if prior, ok := r.charges[ck]; ok {
		return domain.DebitOutcome{Status: domain.DebitDuplicate, Consumed: prior}, nil
	}

	key := keyOf(debit.UserID, debit.PeriodStart)
	debit.PeriodStart = key.start
	period, ok := r.periods[key]
	if !ok {
		return domain.DebitOutcome{}, domain.ErrPeriodNotFound
	}
	cost := debit.Cost()
	if !period.Allowance.Unlimited && period.Allowance.Credits+period.Bonus-period.Consumed < cost {
		return domain.DebitOutcome{Status: domain.DebitInsufficient, Consumed: period.Consumed}, nil
	}

	period.Consumed += cost
	period.UpdatedAt = debit.At
	r.charges[ck] = period.Consumed
	r.usage[key] = append(r.usage[key], debit.UsageEntries()...)
	return domain.DebitOutcome{Status: domain.DebitApplied, Consumed: period.Consumed}, nil
}

func (r *MemoryCreditRepository) GrantBonus(_ context.Context, userID uuid.UUID, start time.Time, credits int64) (*domain.CreditPeriod, error) {
	if credits <= 0 {
		return nil, domain.ErrInvalidCredits
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(userID, start)
	period, ok := r.periods[key]
	if !ok {
		return nil, domain.ErrPeriodNotFound
	}
	period.Bonus += credits
	period.UpdatedAt = time.Now().UTC()
	return r.copyOf(key), nil
}

func (r *MemoryCreditRepository) SetPeriodTier(_ context.Context, userID uuid.UUID, start time.Time, tier domain.Tier) (*domain.CreditPeriod, error) {
	allowance, err := domain.AllowanceFor(tier)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(userID, start)
	period, ok := r.periods[key]
	if !ok {
		return nil, domain.ErrPeriodNotFound
	}
	period.Tier = tier
	period.Allowance = allowance
	period.UpdatedAt = time.Now().UTC()
	return r.copyOf(key), nil
}

func (r *MemoryCreditRepository) ListUsage(_ context.Context, userID uuid.UUID, start time.Time) ([]domain.UsageEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.usage[keyOf(userID, start)]
	out := make([]domain.UsageEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// copyOf requires mu.
func (r *MemoryCreditRepository) copyOf(key periodKey) *domain.CreditPeriod {
	p, ok := r.periods[key]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// MemorySubscriptionRepository keeps subscriptions in process.
type MemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]domain.Subscription
}

// NewMemorySubscriptionRepository creates an empty repository.
func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[uuid.UUID]domain.Subscription)}
}

func (r *MemorySubscriptionRepository) Upsert(_ context.Context, subscription *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.subs[subscription.UserID]; ok {
		subscription.CreatedAt = existing.CreatedAt
	} else if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = now
	}
	subscription.UpdatedAt = now
	if subscription.Status == "" {
		subscription.Status = domain.SubscriptionActive
	}
	r.subs[subscription.UserID] = *subscription
	return nil
}

func (r *MemorySubscriptionRepository) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

var (
	_ domain.CreditRepository       = (*MemoryCreditRepository)(nil)
	_ domain.SubscriptionRepository = (*MemorySubscriptionRepository)(nil)
)
