// Package application exposes the entitlement engine: allowances, credit
// checks and charges, bonus grants and feature gates.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	sharedApplication "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/application"
	sharedDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/outbox"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

const auditTable = "credit_periods"

// Usage is a user's position in the current period.
type Usage struct {
	UserID         uuid.UUID        `json:"user_id"`
	Tier           domain.Tier      `json:"tier"`
	PeriodStart    time.Time        `json:"period_start"`
	Allowance      string           `json:"allowance"`
	Consumed       int64            `json:"consumed"`
	BonusAvailable int64            `json:"bonus_available"`
	Remaining      domain.Remaining `json:"remaining"`
}

// Service provides credit metering and feature gating.
type Service struct {
	credits       domain.CreditRepository
	subscriptions domain.SubscriptionRepository
	audit         auditDomain.Repository
	outbox        outbox.Writer
	uow           sharedApplication.UnitOfWork
	logger        *slog.Logger
	metrics       observability.Metrics
	now           func() time.Time
}

// NewService creates the entitlement service. audit, outboxRepo and uow may
// be nil; charges then skip the corresponding side effect.
func NewService(
	credits domain.CreditRepository,
	subscriptions domain.SubscriptionRepository,
	audit auditDomain.Repository,
	outboxRepo outbox.Writer,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		credits:       credits,
		subscriptions: subscriptions,
		audit:         audit,
		outbox:        outboxRepo,
		uow:           uow,
		logger:        logger,
		metrics:       observability.NoopMetrics{},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics records checks and charges on m.
func (s *Service) WithMetrics(m observability.Metrics) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithClock overrides the time source used to select the period.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// AllowanceFor returns the monthly allowance of tier.
func (s *Service) AllowanceFor(tier domain.Tier) (domain.Allowance, error) {
	return domain.AllowanceFor(tier)
}

// Subscription returns the user's subscription. Users without one are on
// the free tier.
func (s *Service) Subscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return &domain.Subscription{UserID: userID, Tier: domain.TierFree, Status: domain.SubscriptionActive}, nil
	}
	return sub, nil
}

// TierFor resolves the user's effective tier.
func (s *Service) TierFor(ctx context.Context, userID uuid.UUID) (domain.Tier, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return "", err
	}
	return sub.EffectiveTier(), nil
}

func (s *Service) currentPeriod(ctx context.Context, userID uuid.UUID) (*domain.CreditPeriod, error) {
	tier, err := s.TierFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	period, err := s.credits.EnsurePeriod(ctx, userID, s.now(), tier)
	if err != nil {
		return nil, fmt.Errorf("open credit period: %w", err)
	}
	return period, nil
}

// CurrentUsage reports consumption for the current month, opening the period
// when this is the first query of the month.
func (s *Service) CurrentUsage(ctx context.Context, userID uuid.UUID) (*Usage, error) {
	period, err := s.currentPeriod(ctx, userID)
	if err != nil {
		return nil, err
	}
	return usageOf(period), nil
}

func usageOf(p *domain.CreditPeriod) *Usage {
	return &Usage{
		UserID:         p.UserID,
		Tier:           p.Tier,
		PeriodStart:    p.PeriodStart,
		Allowance:      p.Allowance.String(),
		Consumed:       p.Consumed,
		BonusAvailable: p.BonusAvailable(),
		Remaining:      p.Remaining(),
	}
}

// ListUsage returns the current month's usage entries.
func (s *Service) ListUsage(ctx context.Context, userID uuid.UUID) ([]domain.UsageEntry, error) {
	return s.credits.ListUsage(ctx, userID, domain.PeriodStart(s.now()))
}

// CanAfford decides whether count units of action fit in the user's pool.
// Unknown actions are errors, never allowances.
func (s *Service) CanAfford(ctx context.Context, userID uuid.UUID, action domain.Action, count int) (domain.Decision, error) {
	if _, err := domain.Cost(action, count); err != nil {
		return domain.Decision{}, err
	}
	period, err := s.currentPeriod(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}
	decision, err := domain.Decide(period, action, count)
	if err != nil {
		return domain.Decision{}, err
	}
	s.metrics.Counter(observability.MetricCreditChecks, 1,
		observability.T("action", string(action)),
		observability.T("allowed", strconv.FormatBool(decision.Allowed)),
	)
	return decision, nil
}

// Charge debits the user for count units of action. A replayed ReferenceID
// returns the recorded outcome without debiting again. An insufficient
// balance is reported as an unsuccessful result; storage failures wrap
// domain.ErrChargeNotRecorded.
func (s *Service) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	if _, err := domain.Cost(req.Action, req.Count); err != nil {
		return nil, err
	}
	unitCost, err := domain.ActionCost(req.Action)
	if err != nil {
		return nil, err
	}
	if req.ReferenceID == "" {
		req.ReferenceID = uuid.NewString()
	}

	tier, err := s.TierFor(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrChargeNotRecorded, err)
	}

	result, err := s.charge(ctx, req, unitCost, tier)
	if errors.Is(err, domain.ErrDuplicateCharge) {
		// A concurrent request recorded the same reference first.
		result, err = s.charge(ctx, req, unitCost, tier)
	}
	if err != nil {
		s.metrics.Counter(observability.MetricCreditCharges, 1,
			observability.T("action", string(req.Action)), observability.T("outcome", "error"))
		s.logger.Error("charge not recorded",
			observability.UserIDKey, req.UserID,
			"action", req.Action,
			"reference_id", req.ReferenceID,
			observability.ErrorKey, err,
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrChargeNotRecorded, err)
	}
	return result, nil
}

func (s *Service) charge(ctx context.Context, req domain.ChargeRequest, unitCost int64, tier domain.Tier) (*domain.ChargeResult, error) {
	now := s.now()
	debit := domain.Debit{
		UserID:      req.UserID,
		PeriodStart: domain.PeriodStart(now),
		Action:      req.Action,
		Count:       req.Count,
		UnitCost:    unitCost,
		ReferenceID: req.ReferenceID,
		At:          now,
	}

	return sharedApplication.WithUnitOfWorkResult(ctx, s.uow, func(txCtx context.Context) (*domain.ChargeResult, error) {
		period, err := s.credits.EnsurePeriod(txCtx, req.UserID, now, tier)
		if err != nil {
			return nil, err
		}

		outcome, err := s.credits.Debit(txCtx, debit)
		if err != nil {
			return nil, err
		}

		result := &domain.ChargeResult{
			NewConsumed: outcome.Consumed,
			Cost:        debit.Cost(),
			ReferenceID: req.ReferenceID,
		}
		switch outcome.Status {
		case domain.DebitDuplicate:
			result.Success = true
			result.Duplicate = true
			result.Remaining = period.Remaining()
			s.recordCharge(req, "duplicate", 0)
			return result, nil
		case domain.DebitInsufficient:
			period.Consumed = outcome.Consumed
			result.Remaining = period.Remaining()
			s.recordCharge(req, "denied", 0)
			return result, nil
		}

		previous := outcome.Consumed - debit.Cost()
		period.Consumed = outcome.Consumed
		result.Success = true
		result.Remaining = period.Remaining()

		if s.audit != nil {
			entry := auditDomain.NewEntry(auditTable, period.Key(), auditDomain.ActionCharge,
				fmt.Sprintf("%s x%d ref=%s", req.Action, req.Count, req.ReferenceID)).
				ForField("consumed",
					auditDomain.Value(strconv.FormatInt(previous, 10)),
					auditDomain.Value(strconv.FormatInt(outcome.Consumed, 10)))
			if err := s.audit.Append(txCtx, entry); err != nil {
				return nil, fmt.Errorf("audit charge: %w", err)
			}
		}
		if err := s.publish(txCtx, req.UserID, domain.NewCreditsCharged(debit, outcome.Consumed)); err != nil {
			return nil, err
		}

		s.recordCharge(req, "applied", debit.Cost())
		s.logger.Info("credits charged",
			observability.UserIDKey, req.UserID,
			"action", req.Action,
			"count", req.Count,
			"cost", debit.Cost(),
			"consumed", outcome.Consumed,
		)
		return result, nil
	})
}

func (s *Service) recordCharge(req domain.ChargeRequest, outcome string, cost int64) {
	tags := []observability.Tag{observability.T("action", string(req.Action)), observability.T("outcome", outcome)}
	s.metrics.Counter(observability.MetricCreditCharges, 1, tags...)
	if cost > 0 {
		s.metrics.Counter(observability.MetricCreditsConsumed, cost, observability.T("action", string(req.Action)))
	}
}

// publish stores event in the outbox within the caller's unit of work.
func (s *Service) publish(ctx context.Context, userID uuid.UUID, event sharedDomain.Event) error {
	if s.outbox == nil {
		return nil
	}
	sharedApplication.ApplyEventMetadata([]sharedDomain.Event{event}, sharedApplication.EventMetadataFromContext(ctx, userID))
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.RoutingKey(), err)
	}
	if err := s.outbox.Save(ctx, msg); err != nil {
		return fmt.Errorf("store %s: %w", event.RoutingKey(), err)
	}
	return nil
}

// CheckFeature evaluates a feature gate for tier.
func (s *Service) CheckFeature(tier domain.Tier, feature domain.Feature) (domain.FeatureDecision, error) {
	decision, err := domain.CheckFeature(tier, feature)
	if err != nil {
		return domain.FeatureDecision{}, err
	}
	s.metrics.Counter(observability.MetricFeatureChecks, 1,
		observability.T("feature", string(feature)),
		observability.T("allowed", strconv.FormatBool(decision.Allowed)),
	)
	return decision, nil
}

// HasFeature evaluates a feature gate for the user's current tier.
func (s *Service) HasFeature(ctx context.Context, userID uuid.UUID, feature domain.Feature) (domain.FeatureDecision, error) {
	tier, err := s.TierFor(ctx, userID)
	if err != nil {
		return domain.FeatureDecision{}, err
	}
	return s.CheckFeature(tier, feature)
}

// GrantBonus attaches non-expiring bonus credits to the user's pool.
func (s *Service) GrantBonus(ctx context.Context, userID uuid.UUID, credits int64, reason string) (*Usage, error) {
	if credits <= 0 {
		return nil, domain.ErrInvalidCredits
	}
	tier, err := s.TierFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	period, err := sharedApplication.WithUnitOfWorkResult(ctx, s.uow, func(txCtx context.Context) (*domain.CreditPeriod, error) {
		before, err := s.credits.EnsurePeriod(txCtx, userID, now, tier)
		if err != nil {
			return nil, err
		}
		after, err := s.credits.GrantBonus(txCtx, userID, now, credits)
		if err != nil {
			return nil, err
		}
		if s.audit != nil {
			entry := auditDomain.NewEntry(auditTable, after.Key(), auditDomain.ActionBonusGrant, reason).
				ForField("bonus_credits",
					auditDomain.Value(strconv.FormatInt(before.Bonus, 10)),
					auditDomain.Value(strconv.FormatInt(after.Bonus, 10)))
			if err := s.audit.Append(txCtx, entry); err != nil {
				return nil, fmt.Errorf("audit bonus grant: %w", err)
			}
		}
		if err := s.publish(txCtx, userID, domain.NewBonusCreditsGranted(userID, credits, reason)); err != nil {
			return nil, err
		}
		return after, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bonus credits granted", observability.UserIDKey, userID, "credits", credits, "reason", reason)
	return usageOf(period), nil
}

// SetTier moves the user to tier. The current period switches to the new
// allowance; consumption and bonus are kept.
func (s *Service) SetTier(ctx context.Context, userID uuid.UUID, tier domain.Tier) (*domain.Subscription, error) {
	if !tier.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTier, tier)
	}
	now := s.now()

	sub, err := sharedApplication.WithUnitOfWorkResult(ctx, s.uow, func(txCtx context.Context) (*domain.Subscription, error) {
		current, err := s.subscriptions.FindByUserID(txCtx, userID)
		if err != nil {
			return nil, err
		}
		from := current.EffectiveTier()
		sub := &domain.Subscription{UserID: userID, Tier: tier, Status: domain.SubscriptionActive}
		if current != nil {
			sub.CreatedAt = current.CreatedAt
		}
		if err := s.subscriptions.Upsert(txCtx, sub); err != nil {
			return nil, err
		}

		period, err := s.credits.EnsurePeriod(txCtx, userID, now, tier)
		if err != nil {
			return nil, err
		}
		if period.Tier != tier {
			if _, err := s.credits.SetPeriodTier(txCtx, userID, now, tier); err != nil {
				return nil, err
			}
		}

		if s.audit != nil {
			entry := auditDomain.NewEntry("subscriptions", userID.String(), auditDomain.ActionTierChange, "tier change").
				ForField("tier", auditDomain.Value(string(from)), auditDomain.Value(string(tier)))
			if err := s.audit.Append(txCtx, entry); err != nil {
				return nil, fmt.Errorf("audit tier change: %w", err)
			}
		}
		if from != tier {
			if err := s.publish(txCtx, userID, domain.NewTierChanged(userID, from, tier)); err != nil {
				return nil, err
			}
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription tier set", observability.UserIDKey, userID, "tier", tier)
	return sub, nil
}
