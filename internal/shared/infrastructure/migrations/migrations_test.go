package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database/sqlite"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations"
)

func TestUp_SQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, migrations.Up(ctx, conn))
	// Re-running is a no-op.
	require.NoError(t, migrations.Up(ctx, conn))

	version, err := migrations.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	for _, table := range []string{"subscriptions", "credit_periods", "credit_charges", "credit_usage", "enrichment_records", "audit_log", "outbox"} {
		var name string
		err := conn.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}
