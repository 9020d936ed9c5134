package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

// RunInput is one waterfall run's input.
type RunInput struct {
	LeadID       uuid.UUID
	UserID       uuid.UUID
	Domain       string
	Known        domain.Fields
	TargetTitles []string
	Providers    []domain.Provider
}

// Sequencer walks an ordered provider list, one provider at a time, until
// the required fields are found or the list is exhausted.
type Sequencer struct {
	retrier *Retrier
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewSequencer creates a sequencer retrying each provider under retrier.
func NewSequencer(retrier *Retrier, logger *slog.Logger) *Sequencer {
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryPolicy())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{retrier: retrier, logger: logger, metrics: observability.NoopMetrics{}}
}

// WithMetrics records runs and provider attempts on m.
func (s *Sequencer) WithMetrics(m observability.Metrics) *Sequencer {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Run executes the waterfall. The returned record is always non-nil and
// terminal. A cancelled context or an empty provider list ends the run in
// StateFailed with the cause as error; provider failures never do.
func (s *Sequencer) Run(ctx context.Context, in RunInput) (*domain.Record, error) {
	run := observability.StartStopwatch(s.metrics, observability.MetricWaterfallDuration)
	record := domain.NewRecord(in.LeadID, in.UserID, in.Domain, in.Known)
	logger := s.logger.With("lead_id", in.LeadID, "record_id", record.ID)

	finish := func(state domain.State, err error) (*domain.Record, error) {
		record.Finish(state)
		s.metrics.Counter(observability.MetricWaterfallRuns, 1, observability.T("state", string(state)))
		elapsed := run.Observe(observability.T("state", string(state)))
		logger.InfoContext(ctx, "waterfall finished",
			"state", state,
			"providers_used", record.ProvidersUsed,
			"missing", record.Missing,
			observability.DurationKey, elapsed.Milliseconds(),
		)
		return record, err
	}

	if domain.IsComplete(record.Fields) {
		return finish(domain.StateComplete, nil)
	}
	if len(in.Providers) == 0 {
		return finish(domain.StateFailed, domain.ErrNoProviders)
	}

	record.Start()
	logger.InfoContext(ctx, "waterfall started", "providers", len(in.Providers), "missing", record.Missing)

	for _, provider := range in.Providers {
		if err := ctx.Err(); err != nil {
			return finish(domain.StateFailed, err)
		}

		name := provider.Name()
		query := domain.Query{
			Domain:       in.Domain,
			Known:        record.Fields.Clone(),
			TargetTitles: in.TargetTitles,
			Missing:      record.Fields.Missing(domain.TrackedFields()),
		}

		step := observability.StartStopwatch(s.metrics, observability.MetricProviderLatency, observability.T("provider", name))
		var result domain.PartialResult
		attempts, err := s.retrier.Do(ctx, func(attemptCtx context.Context, attempt int) error {
			s.metrics.Counter(observability.MetricProviderAttempts, 1, observability.T("provider", name))
			r, err := provider.Attempt(attemptCtx, query)
			logger.DebugContext(ctx, "provider attempt",
				"provider", name,
				"attempt", attempt,
				"status", attemptStatus(err),
			)
			if err != nil {
				return err
			}
			result = r
			return nil
		})

		applied := record.ApplyStep(name, result, attempts, step.Observe(observability.T("status", attemptStatus(err))), err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(domain.StateFailed, ctxErr)
			}
			s.metrics.Counter(observability.MetricProviderFailures, 1, observability.T("provider", name))
			logger.WarnContext(ctx, "provider failed",
				"provider", name,
				"attempts", attempts,
				observability.ErrorKey, err,
			)
			continue
		}

		logger.DebugContext(ctx, "provider step merged", "provider", name, "fields_added", applied.FieldsAdded)
		if domain.IsComplete(record.Fields) {
			return finish(domain.StateComplete, nil)
		}
	}

	return finish(domain.StateExhausted, nil)
}

func attemptStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsRetryable(err):
		return "retryable"
	default:
		return "failed"
	}
}
