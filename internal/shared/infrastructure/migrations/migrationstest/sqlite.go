// Package migrationstest opens migrated databases for repository tests.
package migrationstest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database/sqlite"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations"
)

// NewSQLite returns an in-memory SQLite connection with every migration
// applied. The connection is closed when the test finishes.
func NewSQLite(t testing.TB) database.Connection {
	t.Helper()

	ctx := context.Background()
	conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.Up(ctx, conn))
	return conn
}
