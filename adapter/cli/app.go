package cli

import (
	"context"

	"github.com/google/uuid"

	billingApp "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/application"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
)

// App holds the CLI application dependencies.
type App struct {
	BillingService    *billingApp.Service
	EnrichmentService *enrichmentApp.Service

	// Migrate applies pending schema migrations.
	Migrate func(ctx context.Context) (int64, error)

	// Current user (configured per environment)
	CurrentUserID uuid.UUID
}

// NewApp creates a new CLI application with the provided services.
func NewApp(billingService *billingApp.Service, enrichmentService *enrichmentApp.Service) *App {
	return &App{
		BillingService:    billingService,
		EnrichmentService: enrichmentService,
		CurrentUserID:     uuid.Nil,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// Global app instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
