// Package migrations embeds the schema for both supported database drivers
// and applies it with goose.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Up applies all pending migrations for the connection's driver.
func Up(ctx context.Context, conn database.Connection) error {
	dir, dialect, err := dialectFor(conn.Driver())
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, conn.SQLDB(), dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Version reports the currently applied schema version.
func Version(ctx context.Context, conn database.Connection) (int64, error) {
	_, dialect, err := dialectFor(conn.Driver())
	if err != nil {
		return 0, err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, conn.SQLDB())
}

func dialectFor(driver database.Driver) (dir, dialect string, err error) {
	switch driver {
	case database.DriverPostgres:
		return "postgres", "postgres", nil
	case database.DriverSQLite:
		return "sqlite", "sqlite3", nil
	default:
		return "", "", fmt.Errorf("no migrations for driver %q", driver)
	}
}
