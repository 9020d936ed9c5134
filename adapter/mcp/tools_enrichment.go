package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
	enrichmentDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

type enrichmentRunInput struct {
	UserID       string            `json:"user_id,omitempty"`
	LeadID       string            `json:"lead_id,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	Known        map[string]string `json:"known,omitempty"`
	TargetTitles []string          `json:"target_titles,omitempty"`
}

func registerEnrichmentTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("enrichment.run").
		Description("Enrich a lead through the provider waterfall and charge for it").
		Handler(func(ctx context.Context, input enrichmentRunInput) (*enrichmentApp.EnrichResult, error) {
			return enrichmentRun(ctx, app, input)
		})

	return nil
}

func enrichmentRun(ctx context.Context, app *cli.App, input enrichmentRunInput) (*enrichmentApp.EnrichResult, error) {
	if app == nil || app.EnrichmentService == nil {
		return nil, errors.New("enrichment requires database connection")
	}
	userID, err := userFor(app, input.UserID)
	if err != nil {
		return nil, err
	}
	leadID, err := parseOptionalUUID(input.LeadID)
	if err != nil {
		return nil, fmt.Errorf("lead_id: %w", err)
	}
	if leadID == uuid.Nil {
		leadID = uuid.New()
	}

	known := make(enrichmentDomain.Fields, len(input.Known))
	for name, value := range input.Known {
		field := enrichmentDomain.FieldName(strings.ToLower(strings.TrimSpace(name)))
		if !field.IsKnown() {
			return nil, fmt.Errorf("unknown field: %s", name)
		}
		known[field] = value
	}

	result, err := app.EnrichmentService.EnrichLead(ctx, enrichmentApp.EnrichCommand{
		UserID:       userID,
		LeadID:       leadID,
		Domain:       input.Domain,
		Known:        known,
		TargetTitles: input.TargetTitles,
	})
	if err != nil && result != nil && result.Record != nil {
		return nil, fmt.Errorf("record %s v%d saved unbilled: %w", result.Record.ID, result.Record.Version, err)
	}
	return result, err
}
