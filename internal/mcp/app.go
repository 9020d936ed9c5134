package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/app"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container, currentUser uuid.UUID) *cli.App {
	cliApp := cli.NewApp(container.BillingService, container.EnrichmentService)
	cliApp.SetCurrentUserID(currentUser)

	if container.DBConn != nil {
		conn := container.DBConn
		cliApp.Migrate = func(ctx context.Context) (int64, error) {
			if err := migrations.Up(ctx, conn); err != nil {
				return 0, err
			}
			return migrations.Version(ctx, conn)
		}
	}

	return cliApp
}
