package migrations

import (
	"context"
	"fmt"

	"github.com/glueful/glueful/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260801000001, down_20260801000001)
}

// up_20260801000001 creates the role, permission and grant tables
func up_20260801000001(ctx context.Context, db *bun.DB) error {
	// 1. Create roles table
	fmt.Print(" [up] creating roles table...")
	_, err := db.NewCreateTable().
		Model((*models.Role)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roles table: %w", err)
	}

	// Slug is unique only among non-deleted roles; both PostgreSQL and SQLite
	// support partial indexes.
	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_slug ON roles(slug) WHERE deleted_at IS NULL`)
	if err != nil {
		return fmt.Errorf("failed to create roles slug index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_roles_parent ON roles(parent_uuid)`)
	if err != nil {
		return fmt.Errorf("failed to create roles parent index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_roles_level ON roles(level)`)
	if err != nil {
		return fmt.Errorf("failed to create roles level index: %w", err)
	}
	fmt.Println(" OK")

	// 2. Create permissions table
	fmt.Print(" [up] creating permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.Permission)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create permissions table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_permissions_slug ON permissions(slug)`)
	if err != nil {
		return fmt.Errorf("failed to create permissions slug index: %w", err)
	}
	fmt.Println(" OK")

	// 3. Create user_roles table
	fmt.Print(" [up] creating user_roles table...")
	_, err = db.NewCreateTable().
		Model((*models.UserRole)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_roles table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_roles_user ON user_roles(user_uuid)`)
	if err != nil {
		return fmt.Errorf("failed to create user_roles user index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role_uuid)`)
	if err != nil {
		return fmt.Errorf("failed to create user_roles role index: %w", err)
	}
	fmt.Println(" OK")

	// 4. Create role_permissions table
	fmt.Print(" [up] creating role_permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.RolePermission)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create role_permissions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_role_permissions_role ON role_permissions(role_uuid, permission_uuid)`)
	if err != nil {
		return fmt.Errorf("failed to create role_permissions index: %w", err)
	}
	fmt.Println(" OK")

	// 5. Create user_permissions table
	fmt.Print(" [up] creating user_permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.UserPermission)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_permissions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_permissions_user ON user_permissions(user_uuid, permission_uuid)`)
	if err != nil {
		return fmt.Errorf("failed to create user_permissions index: %w", err)
	}
	fmt.Println(" OK")

	// 6. GIN indexes over the jsonb grant bounds. PostgreSQL only; SQLite
	// stores the blobs as text and scans.
	if IsPostgreSQL(db) {
		fmt.Print(" [up] creating grant constraint indexes...")
		for _, stmt := range []string{
			`CREATE INDEX IF NOT EXISTS idx_role_permissions_constraints ON role_permissions USING GIN (constraints)`,
			`CREATE INDEX IF NOT EXISTS idx_user_permissions_constraints ON user_permissions USING GIN (constraints)`,
			`CREATE INDEX IF NOT EXISTS idx_user_roles_scope ON user_roles USING GIN (scope)`,
		} {
			if _, err = db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to create grant constraint index: %w", err)
			}
		}
		fmt.Println(" OK")
	}

	return nil
}

// down_20260801000001 drops the rbac tables in dependency order
func down_20260801000001(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"user_permissions", "role_permissions", "user_roles", "permissions", "roles"} {
		if _, err := db.Exec(dropTable(db, table)); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
	}
	return nil
}
