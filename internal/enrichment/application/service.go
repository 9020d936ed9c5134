// Package application runs the enrichment waterfall for a lead, keeps each
// run as an immutable record version and bills it against the user's
// credits.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	auditDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	sharedApplication "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/outbox"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

const auditTable = "enrichment_records"

// Entitlements is the slice of the entitlement engine enrichment needs.
type Entitlements interface {
	CanAfford(ctx context.Context, userID uuid.UUID, action billingDomain.Action, count int) (billingDomain.Decision, error)
	Charge(ctx context.Context, req billingDomain.ChargeRequest) (*billingDomain.ChargeResult, error)
}

// ProviderSource supplies the ordered provider list for a run.
type ProviderSource interface {
	Providers() ([]domain.Provider, error)
}

// StaticProviders is a fixed provider list.
type StaticProviders []domain.Provider

// Providers returns the list.
func (p StaticProviders) Providers() ([]domain.Provider, error) {
	return p, nil
}

// EnrichCommand asks for one lead to be enriched.
type EnrichCommand struct {
	UserID       uuid.UUID
	LeadID       uuid.UUID
	Domain       string
	Known        domain.Fields
	TargetTitles []string
}

// EnrichResult is the outcome of EnrichLead. When Denied is set no
// provider was called and Record is nil.
type EnrichResult struct {
	Record   *domain.Record              `json:"record,omitempty"`
	Denied   bool                        `json:"denied"`
	Decision billingDomain.Decision      `json:"decision"`
	Charge   *billingDomain.ChargeResult `json:"charge,omitempty"`
}

// Service enriches leads.
type Service struct {
	records      domain.RecordRepository
	sequencer    *Sequencer
	providers    ProviderSource
	entitlements Entitlements
	audit        auditDomain.Repository
	outbox       outbox.Writer
	uow          sharedApplication.UnitOfWork
	logger       *slog.Logger
}

// NewService creates the enrichment service. audit, outboxRepo and uow may
// be nil.
func NewService(
	records domain.RecordRepository,
	sequencer *Sequencer,
	providers ProviderSource,
	entitlements Entitlements,
	audit auditDomain.Repository,
	outboxRepo outbox.Writer,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sequencer == nil {
		sequencer = NewSequencer(nil, logger)
	}
	return &Service{
		records:      records,
		sequencer:    sequencer,
		providers:    providers,
		entitlements: entitlements,
		audit:        audit,
		outbox:       outboxRepo,
		uow:          uow,
		logger:       logger,
	}
}

// EnrichLead checks the user can afford one enrichment, runs the waterfall,
// stores the result as the lead's next record version and charges for it.
//
// The charge happens only after the record is saved and only when a
// provider was consulted; the record ID is the charge reference so a
// replayed charge never bills twice. A charge that cannot be recorded
// leaves the record unbilled and is returned as an error wrapping
// billing's ErrChargeNotRecorded, together with the result.
func (s *Service) EnrichLead(ctx context.Context, cmd EnrichCommand) (*EnrichResult, error) {
	if cmd.LeadID == uuid.Nil {
		return nil, domain.ErrInvalidLead
	}
	providers, err := s.providers.Providers()
	if err != nil {
		return nil, err
	}

	decision, err := s.entitlements.CanAfford(ctx, cmd.UserID, billingDomain.ActionEnrich, 1)
	if err != nil {
		return nil, fmt.Errorf("check credits: %w", err)
	}
	if !decision.Allowed {
		s.logger.InfoContext(ctx, "enrichment denied",
			observability.UserIDKey, cmd.UserID,
			"lead_id", cmd.LeadID,
			"cost", decision.Cost,
		)
		return &EnrichResult{Denied: true, Decision: decision}, nil
	}

	previous, err := s.records.Latest(ctx, cmd.LeadID)
	if err != nil {
		return nil, fmt.Errorf("load previous enrichment: %w", err)
	}
	known := cmd.Known.Clone()
	if previous != nil {
		known.MergeMissing(previous.Fields)
	}

	record, err := s.sequencer.Run(ctx, RunInput{
		LeadID:       cmd.LeadID,
		UserID:       cmd.UserID,
		Domain:       cmd.Domain,
		Known:        known,
		TargetTitles: cmd.TargetTitles,
		Providers:    providers,
	})
	if err != nil {
		return nil, err
	}

	result := &EnrichResult{Decision: decision}
	if previous != nil && !record.Consulted() && len(record.Changes(previous)) == 0 {
		result.Record = previous
		return result, nil
	}
	if previous != nil {
		record.Version = previous.Version + 1
	}

	if err := s.save(ctx, record, previous); err != nil {
		return nil, err
	}
	result.Record = record

	if !record.Consulted() {
		return result, nil
	}
	return result, s.bill(ctx, result)
}

func (s *Service) save(ctx context.Context, record, previous *domain.Record) error {
	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.records.Save(txCtx, record); err != nil {
			return fmt.Errorf("save enrichment record: %w", err)
		}

		if s.audit != nil {
			changes := record.Changes(previous)
			if len(changes) > 0 {
				base := auditDomain.NewEntry(auditTable, record.LeadID.String(), auditDomain.ActionEnrich,
					fmt.Sprintf("version %d %s", record.Version, record.State))
				entries := make([]auditDomain.Entry, 0, len(changes))
				for _, change := range changes {
					entries = append(entries, base.ForField(string(change.Field), change.OldValue, change.NewValue))
				}
				if err := s.audit.Append(txCtx, entries...); err != nil {
					return fmt.Errorf("audit enrichment: %w", err)
				}
			}
		}

		if s.outbox == nil {
			return nil
		}
		event := domain.NewEnrichmentCompleted(record)
		event.SetMetadata(sharedApplication.EventMetadataFromContext(txCtx, record.UserID))
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event.RoutingKey(), err)
		}
		if err := s.outbox.Save(txCtx, msg); err != nil {
			return fmt.Errorf("store %s: %w", event.RoutingKey(), err)
		}
		return nil
	})
}

func (s *Service) bill(ctx context.Context, result *EnrichResult) error {
	record := result.Record
	charge, err := s.entitlements.Charge(ctx, billingDomain.ChargeRequest{
		UserID:      record.UserID,
		Action:      billingDomain.ActionEnrich,
		Count:       1,
		ReferenceID: record.ID.String(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "enrichment charge failed",
			"record_id", record.ID,
			observability.UserIDKey, record.UserID,
			observability.ErrorKey, err,
		)
		if !errors.Is(err, billingDomain.ErrChargeNotRecorded) {
			err = fmt.Errorf("%w: %w", billingDomain.ErrChargeNotRecorded, err)
		}
		return err
	}
	result.Charge = charge

	if !charge.Success {
		s.logger.WarnContext(ctx, "enrichment left unbilled: insufficient credits",
			"record_id", record.ID,
			observability.UserIDKey, record.UserID,
			"cost", charge.Cost,
		)
		return nil
	}

	// The credits are spent once the charge succeeds. A stale flag is
	// logged and left for the charge's reference to reconcile.
	record.Billed = true
	if err := s.records.MarkBilled(ctx, record.ID); err != nil {
		s.logger.ErrorContext(ctx, "enrichment charged but billed flag not stored",
			"record_id", record.ID,
			observability.UserIDKey, record.UserID,
			"reference_id", charge.ReferenceID,
			observability.ErrorKey, err,
		)
	}
	return nil
}

// History returns every enrichment version of the lead, oldest first.
func (s *Service) History(ctx context.Context, leadID uuid.UUID) ([]*domain.Record, error) {
	if leadID == uuid.Nil {
		return nil, domain.ErrInvalidLead
	}
	return s.records.ListVersions(ctx, leadID)
}
