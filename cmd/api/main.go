package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/api"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/app"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("failed to load config", observability.ErrorKey, err)
		os.Exit(1)
	}
	logger := observability.ServiceLogger("birvanoio-api", cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", observability.ErrorKey, err)
		os.Exit(1)
	}
	defer container.Close()

	handler := api.NewHandler(api.HandlerConfig{
		Entitlements: container.BillingService,
		Enricher:     container.EnrichmentService,
		Logger:       logger,
	})

	serverCfg := api.DefaultServerConfig()
	if cfg.APIAddr != "" {
		serverCfg.Addr = cfg.APIAddr
	}
	serverCfg.Health = container.Health.Handler()
	serverCfg.Metrics = container.Metrics.Handler()
	server := api.NewServer(serverCfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("api server error", observability.ErrorKey, err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown error", observability.ErrorKey, err)
	}
	logger.Info("api server stopped")
}
