// Command mcp serves credit, feature and enrichment tools to MCP clients.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/app"
	mcpinternal "github.com/omarbuciofgr-sudo/birvanoio/internal/mcp"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("failed to load config", observability.ErrorKey, err)
		return 1
	}
	logger := observability.ServiceLogger(mcpinternal.ServerName, cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", observability.ErrorKey, err)
		return 1
	}
	defer container.Close()

	// Tools without an explicit user_id act on the configured default user.
	userID, err := container.DefaultUserID()
	if err != nil {
		logger.Error("invalid default user id", observability.ErrorKey, err)
		return 1
	}

	cliApp := mcpinternal.NewCLIApp(container, userID)
	if err := mcpinternal.Serve(ctx, cfg, cliApp, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", observability.ErrorKey, err)
		return 1
	}
	logger.Info("mcp server stopped")
	return 0
}
