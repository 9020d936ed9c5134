package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
)

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

func parseOptionalUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	return parseUUID(value)
}

// userFor resolves the acting user: an explicit user_id wins over the
// configured user.
func userFor(app *cli.App, value string) (uuid.UUID, error) {
	id, err := parseOptionalUUID(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("user_id: %w", err)
	}
	if id == uuid.Nil {
		id = app.CurrentUserID
	}
	if id == uuid.Nil {
		return uuid.Nil, errors.New("user_id is required")
	}
	return id, nil
}

// countOf defaults an omitted count to one unit.
func countOf(count *int) int {
	if count == nil {
		return 1
	}
	return *count
}
