// Package api provides the HTTP API for credit checks, charges, feature
// gates and lead enrichment.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	handler *Handler
	health  http.Handler
	metrics http.Handler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Health serves GET /health. A static healthy response is used when nil.
	Health http.Handler
	// Metrics serves GET /metrics. The route is not registered when nil.
	Metrics http.Handler
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		handler: handler,
		health:  cfg.Health,
		metrics: cfg.Metrics,
	}

	// Register routes
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withRequestContext(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	if s.health != nil {
		s.mux.Handle("GET /health", s.health)
	} else {
		s.mux.HandleFunc("GET /health", s.handleHealth)
	}
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	// Entitlements API v1
	s.mux.HandleFunc("POST /api/v1/entitlements/check", s.handler.CheckCredits)
	s.mux.HandleFunc("POST /api/v1/entitlements/charge", s.handler.ChargeCredits)
	s.mux.HandleFunc("GET /api/v1/entitlements/usage", s.handler.GetUsage)
	s.mux.HandleFunc("GET /api/v1/features/check", s.handler.CheckFeature)

	// Enrichment
	s.mux.HandleFunc("POST /api/v1/enrichment/run", s.handler.RunEnrichment)
	s.mux.HandleFunc("GET /api/v1/enrichment/{leadID}/history", s.handler.GetHistory)
}

// Handler returns the root handler, including request tracing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestContext seeds request and correlation IDs from headers, echoes
// them back and logs every request. The logger picks the IDs up from ctx.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.RequestContextFromHTTP(r)
		requestID := observability.RequestIDFromContext(ctx)
		correlationID := observability.CorrelationIDFromContext(ctx)
		w.Header().Set(observability.RequestIDHeader, requestID)
		w.Header().Set(observability.CorrelationIDHeader, correlationID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			observability.DurationKey, time.Since(start).Milliseconds(),
		)
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}
