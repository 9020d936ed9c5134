package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedApplication "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
)

func openTestConnection(t *testing.T) database.Connection {
	t.Helper()
	conn, err := NewConnection(context.Background(), database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec(context.Background(), `CREATE TABLE leads (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	return conn
}

func countLeads(t *testing.T, conn database.Connection) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(context.Background(), `SELECT COUNT(*) FROM leads`).Scan(&n))
	return n
}

func TestNewConnection_FileAndMemory(t *testing.T) {
	ctx := context.Background()

	conn := openTestConnection(t)
	assert.NoError(t, conn.Ping(ctx))
	assert.Equal(t, database.DriverSQLite, conn.Driver())
	assert.NotNil(t, conn.SQLDB())

	mem, err := NewConnection(ctx, database.Config{SQLitePath: MemoryPath})
	require.NoError(t, err)
	defer mem.Close()

	_, err = mem.Exec(ctx, `CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)
	_, err = mem.Exec(ctx, `INSERT INTO t (v) VALUES (?)`, 1)
	require.NoError(t, err)

	var v int
	require.NoError(t, mem.QueryRow(ctx, `SELECT v FROM t`).Scan(&v))
	assert.Equal(t, 1, v)
}

func TestConnection_ExecAndQuery(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)

	result, err := conn.Exec(ctx, `INSERT INTO leads (id, name) VALUES (?, ?)`, "1", "Ada")
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = conn.Exec(ctx, `INSERT INTO leads (id, name) VALUES (?, ?)`, "2", "Grace")
	require.NoError(t, err)

	rows, err := conn.Query(ctx, `SELECT name FROM leads ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"Ada", "Grace"}, names)
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)
	uow := database.NewUnitOfWork(conn)

	err := sharedApplication.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		_, err := database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO leads (id, name) VALUES (?, ?)`, "1", "Ada")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countLeads(t, conn))

	boom := errors.New("boom")
	err = sharedApplication.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		if _, err := database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO leads (id, name) VALUES (?, ?)`, "2", "Grace"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countLeads(t, conn))
}

func TestUnitOfWork_NestedReusesOuterTransaction(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)
	uow := database.NewUnitOfWork(conn)

	err := sharedApplication.WithUnitOfWork(ctx, uow, func(outer context.Context) error {
		outerInfo, ok := database.TxInfoFromContext(outer)
		require.True(t, ok)
		assert.True(t, outerInfo.Owned)

		return sharedApplication.WithUnitOfWork(outer, uow, func(inner context.Context) error {
			innerInfo, ok := database.TxInfoFromContext(inner)
			require.True(t, ok)
			assert.False(t, innerInfo.Owned)
			assert.Same(t, outerInfo.Tx, innerInfo.Tx)

			_, err := database.ExecutorFromContext(inner, conn).Exec(inner, `INSERT INTO leads (id, name) VALUES (?, ?)`, "1", "Ada")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countLeads(t, conn))
}
