package migrations

import (
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// The schema targets PostgreSQL and SQLite. Most DDL is shared; the helpers
// below gate the statements that are not (GIN indexes, CASCADE drops).

// IsSQLite reports whether the migration runs against SQLite.
func IsSQLite(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.SQLite
}

// IsPostgreSQL reports whether the migration runs against PostgreSQL.
func IsPostgreSQL(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// dropTable builds a DROP TABLE statement. PostgreSQL gets CASCADE so grant
// tables fall with their referents; SQLite has no CASCADE clause.
func dropTable(db *bun.DB, table string) string {
	stmt := "DROP TABLE IF EXISTS " + table
	if !IsSQLite(db) {
		stmt += " CASCADE"
	}
	return stmt
}
