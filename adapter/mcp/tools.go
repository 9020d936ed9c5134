// Package mcp exposes credit checks, charges, feature gates and enrichment
// runs as MCP tools backed by the same services as the CLI.
package mcp

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
)

// ToolDependencies provides services and context for MCP tools.
type ToolDependencies struct {
	App *cli.App
}

type toolGroup struct {
	name     string
	register func(*mcp.Server, ToolDependencies) error
}

var toolGroups = []toolGroup{
	{name: "billing", register: registerBillingTools},
	{name: "enrichment", register: registerEnrichmentTools},
}

// RegisterCLITools registers the billing and enrichment tools on srv.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	for _, group := range toolGroups {
		if err := group.register(srv, deps); err != nil {
			return fmt.Errorf("register %s tools: %w", group.name, err)
		}
	}
	return nil
}
