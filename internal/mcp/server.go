package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	mcplocal "github.com/omarbuciofgr-sudo/birvanoio/adapter/mcp"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
)

// ServerName identifies this server to MCP clients.
const ServerName = "birvanoio-mcp"

// NewServer builds the MCP server with every credit, feature and enrichment
// tool registered against cliApp.
func NewServer(cliApp *cli.App) (*mcpgo.Server, error) {
	if cliApp == nil {
		return nil, errors.New("CLI app is required")
	}

	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    ServerName,
		Version: cli.Version,
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	})
	if err := mcplocal.RegisterCLITools(srv, mcplocal.ToolDependencies{App: cliApp}); err != nil {
		return nil, err
	}
	return srv, nil
}

// Serve listens on cfg.MCPAddr until ctx is canceled.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(cliApp)
	if err != nil {
		return err
	}

	stack := middlewareStack(cfg, logger)
	logger.Info("mcp server listening", "addr", cfg.MCPAddr)
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(stack...))
}

// middlewareStack prepends bearer authentication when MCP_AUTH_TOKEN lists
// one or more comma-separated tokens.
func middlewareStack(cfg *config.Config, logger *slog.Logger) []middleware.Middleware {
	adapter := mcpLogger{logger: logger.With("component", "mcp")}
	stack := middleware.DefaultStack(adapter)

	tokens := authTokens(cfg.MCPAuthToken)
	if len(tokens) == 0 {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
		return stack
	}
	authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(tokens))
	return append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(adapter))}, stack...)
}

func authTokens(value string) map[string]*middleware.Identity {
	tokens := make(map[string]*middleware.Identity)
	for _, token := range strings.Split(value, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens[token] = &middleware.Identity{ID: "mcp", Name: ServerName}
		}
	}
	return tokens
}

type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Info(msg string, fields ...middleware.Field) {
	l.logger.Info(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Error(msg string, fields ...middleware.Field) {
	l.logger.Error(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Debug(msg string, fields ...middleware.Field) {
	l.logger.Debug(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Warn(msg string, fields ...middleware.Field) {
	l.logger.Warn(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		args = append(args, field.Key, field.Value)
	}
	return args
}
