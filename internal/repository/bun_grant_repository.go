package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/db/models"
	"github.com/uptrace/bun"
)

// BunGrantRepository implements GrantRepository using Bun ORM.
//
// Bulk operations translate to single set-valued statements (batch inserts,
// IN-set deletes); none of the paths loop singleton queries.
type BunGrantRepository struct {
	db *bun.DB
}

// NewBunGrantRepository creates a new Bun-based grant repository
func NewBunGrantRepository(db *bun.DB) GrantRepository {
	return &BunGrantRepository{db: db}
}

// ========================================
// User-role assignments
// ========================================

// CreateUserRole inserts a user-role assignment
func (r *BunGrantRepository) CreateUserRole(ctx context.Context, grant *models.UserRole) error {
	if grant.UUID == "" {
		grant.UUID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(grant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user role: %w", err)
	}
	return nil
}

// UserRoleGrants retrieves every assignment for (user, role) regardless of
// scope; callers compare scope objects for idempotent reassignment.
func (r *BunGrantRepository) UserRoleGrants(ctx context.Context, userUUID, roleUUID string) ([]models.UserRole, error) {
	var grants []models.UserRole
	err := r.db.NewSelect().
		Model(&grants).
		Where("user_uuid = ? AND role_uuid = ?", userUUID, roleUUID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user role grants: %w", err)
	}
	return grants, nil
}

// ActiveUserRoles retrieves non-expired role assignments for a user
func (r *BunGrantRepository) ActiveUserRoles(ctx context.Context, userUUID string, now time.Time) ([]models.UserRole, error) {
	var grants []models.UserRole
	err := r.db.NewSelect().
		Model(&grants).
		Where("user_uuid = ?", userUUID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active user roles: %w", err)
	}
	return grants, nil
}

// DeleteUserRole removes all assignments of a role to a user
func (r *BunGrantRepository) DeleteUserRole(ctx context.Context, userUUID, roleUUID string) error {
	_, err := r.db.NewDelete().
		Model((*models.UserRole)(nil)).
		Where("user_uuid = ? AND role_uuid = ?", userUUID, roleUUID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user role: %w", err)
	}
	return nil
}

// ========================================
// Role-permission grants
// ========================================

// CreateRolePermission inserts a role-permission grant
func (r *BunGrantRepository) CreateRolePermission(ctx context.Context, grant *models.RolePermission) error {
	if grant.UUID == "" {
		grant.UUID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(grant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create role permission: %w", err)
	}
	return nil
}

// InsertRolePermissions batch-inserts grants with a single statement
func (r *BunGrantRepository) InsertRolePermissions(ctx context.Context, grants []*models.RolePermission) error {
	if len(grants) == 0 {
		return nil
	}

	for _, grant := range grants {
		if grant.UUID == "" {
			grant.UUID = bunx.NewUUIDv7()
		}
	}

	_, err := r.db.NewInsert().
		Model(&grants).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert role permissions: %w", err)
	}
	return nil
}

// RolePermissions retrieves active grants for any of roleUUIDs on the
// permission. Exactly one IN query regardless of the closure size.
func (r *BunGrantRepository) RolePermissions(ctx context.Context, roleUUIDs []string, permissionUUID string, now time.Time) ([]models.RolePermission, error) {
	if len(roleUUIDs) == 0 {
		return nil, nil
	}

	var grants []models.RolePermission
	err := r.db.NewSelect().
		Model(&grants).
		Where("role_uuid IN (?)", bun.In(roleUUIDs)).
		Where("permission_uuid = ?", permissionUUID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get role permissions: %w", err)
	}
	return grants, nil
}

// ListRolePermissions retrieves all active grants held by a role
func (r *BunGrantRepository) ListRolePermissions(ctx context.Context, roleUUID string, now time.Time) ([]models.RolePermission, error) {
	var grants []models.RolePermission
	err := r.db.NewSelect().
		Model(&grants).
		Where("role_uuid = ?", roleUUID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return grants, nil
}

// DeleteRolePermissions removes non-expired grants for the role. With an
// empty permissionUUIDs slice every grant of the role is removed. The count
// is read before delete inside the same transaction.
func (r *BunGrantRepository) DeleteRolePermissions(ctx context.Context, roleUUID string, permissionUUIDs []string) (int64, error) {
	var deleted int64

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		countQ := tx.NewSelect().
			Model((*models.RolePermission)(nil)).
			Where("role_uuid = ?", roleUUID).
			Where("expires_at IS NULL OR expires_at > ?", now)
		if len(permissionUUIDs) > 0 {
			countQ = countQ.Where("permission_uuid IN (?)", bun.In(permissionUUIDs))
		}
		count, err := countQ.Count(ctx)
		if err != nil {
			return fmt.Errorf("count role permissions: %w", err)
		}

		delQ := tx.NewDelete().
			Model((*models.RolePermission)(nil)).
			Where("role_uuid = ?", roleUUID).
			Where("expires_at IS NULL OR expires_at > ?", now)
		if len(permissionUUIDs) > 0 {
			delQ = delQ.Where("permission_uuid IN (?)", bun.In(permissionUUIDs))
		}
		if _, err := delQ.Exec(ctx); err != nil {
			return fmt.Errorf("delete role permissions: %w", err)
		}

		deleted = int64(count)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ========================================
// Direct user-permission grants
// ========================================

// CreateUserPermission inserts a direct user-permission grant
func (r *BunGrantRepository) CreateUserPermission(ctx context.Context, grant *models.UserPermission) error {
	if grant.UUID == "" {
		grant.UUID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(grant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user permission: %w", err)
	}
	return nil
}

// UserPermissions retrieves active direct grants for (user, permission)
func (r *BunGrantRepository) UserPermissions(ctx context.Context, userUUID, permissionUUID string, now time.Time) ([]models.UserPermission, error) {
	var grants []models.UserPermission
	err := r.db.NewSelect().
		Model(&grants).
		Where("user_uuid = ? AND permission_uuid = ?", userUUID, permissionUUID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user permissions: %w", err)
	}
	return grants, nil
}

// DeleteUserPermission removes all direct grants of a permission to a user
func (r *BunGrantRepository) DeleteUserPermission(ctx context.Context, userUUID, permissionUUID string) error {
	_, err := r.db.NewDelete().
		Model((*models.UserPermission)(nil)).
		Where("user_uuid = ? AND permission_uuid = ?", userUUID, permissionUUID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user permission: %w", err)
	}
	return nil
}

// ========================================
// Expiry cleanup
// ========================================

// CleanupExpired eagerly removes expired grants from all three tables
func (r *BunGrantRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []any{
			(*models.UserRole)(nil),
			(*models.RolePermission)(nil),
			(*models.UserPermission)(nil),
		} {
			result, err := tx.NewDelete().
				Model(model).
				Where("expires_at IS NOT NULL AND expires_at <= ?", now).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("cleanup expired grants: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			total += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
