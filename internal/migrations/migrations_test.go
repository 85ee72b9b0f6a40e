package migrations_test

import (
	"context"
	"testing"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

func tableExists(t *testing.T, db *bun.DB, name string) bool {
	t.Helper()
	var count int
	err := db.NewRaw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).
		Scan(context.Background(), &count)
	require.NoError(t, err)
	return count > 0
}

func TestMigrations_RoundTrip(t *testing.T) {
	db, err := bunx.NewDB(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))

	tables := []string{"roles", "permissions", "user_roles", "role_permissions", "user_permissions", "jobs", "failed_jobs"}

	group, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	require.False(t, group.IsZero())
	for _, table := range tables {
		assert.True(t, tableExists(t, db, table), "table %s should exist after migrate", table)
	}

	// Roll back the group; the dialect-aware drops must work on sqlite.
	rolled, err := migrator.Rollback(ctx)
	require.NoError(t, err)
	require.False(t, rolled.IsZero())
	for _, table := range tables {
		assert.False(t, tableExists(t, db, table), "table %s should be gone after rollback", table)
	}

	// Re-running from scratch must succeed (IF NOT EXISTS everywhere).
	group, err = migrator.Migrate(ctx)
	require.NoError(t, err)
	require.False(t, group.IsZero())
	for _, table := range tables {
		assert.True(t, tableExists(t, db, table), "table %s should exist after re-migrate", table)
	}
}

func TestMigrations_DialectHelpers(t *testing.T) {
	db, err := bunx.NewDB(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	assert.True(t, migrations.IsSQLite(db))
	assert.False(t, migrations.IsPostgreSQL(db))
}
