package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	cliBilling "github.com/omarbuciofgr-sudo/birvanoio/adapter/cli/billing"
	cliEnrich "github.com/omarbuciofgr-sudo/birvanoio/adapter/cli/enrich"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/app"
	mcpinternal "github.com/omarbuciofgr-sudo/birvanoio/internal/mcp"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("failed to load config", observability.ErrorKey, err)
		os.Exit(1)
	}

	// CLI output goes to stdout; keep logs quiet unless asked for.
	level := cfg.LogLevel
	if level == "info" && !cfg.IsProduction() {
		level = "warn"
	}
	logger := observability.ServiceLogger("birvanoio-cli", cfg.AppEnv, level, cfg.LogFormat)
	cli.SetLogger(logger)

	// Try to initialize the full container
	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			// In development, allow read-only commands to run without a database
			logger.Warn("failed to initialize container, running in limited mode", observability.ErrorKey, err)
		} else {
			logger.Error("failed to initialize container", observability.ErrorKey, err)
			os.Exit(1)
		}
	} else {
		defer container.Close()

		userID, err := container.DefaultUserID()
		if err != nil {
			logger.Error("invalid user id", observability.ErrorKey, err)
			os.Exit(1)
		}
		cliApp = mcpinternal.NewCLIApp(container, userID)
	}

	// Set the CLI app
	cli.SetApp(cliApp)

	// Register commands
	for _, cmd := range cliBilling.Commands() {
		cli.AddCommand(cmd)
	}
	cli.AddCommand(cliEnrich.Cmd)

	// Execute CLI
	cli.Execute(ctx)
}
