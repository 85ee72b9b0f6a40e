package repository

import (
	"context"
	"errors"
	"time"

	"github.com/glueful/glueful/internal/db/models"
)

// Sentinel errors shared by all repositories. Callers match with errors.Is.
var (
	// ErrNotFound indicates the target entity does not exist (or is soft-deleted).
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a slug/uuid collision or unique index violation.
	ErrConflict = errors.New("conflict")
)

// RoleRepository persists the role hierarchy.
// All read methods exclude soft-deleted roles; bun's soft-delete support
// appends the deleted_at IS NULL predicate automatically.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByUUID(ctx context.Context, uuid string) (*models.Role, error)
	GetBySlug(ctx context.Context, slug string) (*models.Role, error)
	// GetByUUIDs resolves a set of roles in a single query. When
	// preserveOrder is true the result follows the caller's uuid order;
	// unknown uuids are skipped.
	GetByUUIDs(ctx context.Context, uuids []string, preserveOrder bool) ([]models.Role, error)
	// Children returns direct children ordered by level asc, name asc.
	Children(ctx context.Context, parentUUID string) ([]models.Role, error)
	ByLevel(ctx context.Context, level int) ([]models.Role, error)
	Update(ctx context.Context, role *models.Role) error
	// SoftDelete marks the role deleted; system roles must be rejected by the caller.
	SoftDelete(ctx context.Context, uuid string) error
	List(ctx context.Context) ([]models.Role, error)
}

// PermissionRepository persists permissions.
type PermissionRepository interface {
	Create(ctx context.Context, perm *models.Permission) error
	GetByUUID(ctx context.Context, uuid string) (*models.Permission, error)
	GetBySlug(ctx context.Context, slug string) (*models.Permission, error)
	List(ctx context.Context) ([]models.Permission, error)
	Update(ctx context.Context, perm *models.Permission) error
	Delete(ctx context.Context, uuid string) error
}

// GrantRepository persists user↔role, role↔permission and user↔permission
// grants. Bulk paths issue set-valued statements, never per-item loops.
type GrantRepository interface {
	// User-role assignments.
	CreateUserRole(ctx context.Context, grant *models.UserRole) error
	// UserRoleGrants returns every grant for (user, role); the service layer
	// compares scopes for idempotent reassignment.
	UserRoleGrants(ctx context.Context, userUUID, roleUUID string) ([]models.UserRole, error)
	// ActiveUserRoles returns non-expired role assignments for the user.
	ActiveUserRoles(ctx context.Context, userUUID string, now time.Time) ([]models.UserRole, error)
	DeleteUserRole(ctx context.Context, userUUID, roleUUID string) error

	// Role-permission grants.
	CreateRolePermission(ctx context.Context, grant *models.RolePermission) error
	// InsertRolePermissions batch-inserts grants in a single statement.
	InsertRolePermissions(ctx context.Context, grants []*models.RolePermission) error
	// RolePermissions returns active grants for any of roleUUIDs on the
	// permission, in a single IN query.
	RolePermissions(ctx context.Context, roleUUIDs []string, permissionUUID string, now time.Time) ([]models.RolePermission, error)
	ListRolePermissions(ctx context.Context, roleUUID string, now time.Time) ([]models.RolePermission, error)
	// DeleteRolePermissions removes non-expired grants for the role; counts
	// are read under the same transaction before deletion.
	DeleteRolePermissions(ctx context.Context, roleUUID string, permissionUUIDs []string) (int64, error)

	// Direct user-permission grants.
	CreateUserPermission(ctx context.Context, grant *models.UserPermission) error
	UserPermissions(ctx context.Context, userUUID, permissionUUID string, now time.Time) ([]models.UserPermission, error)
	DeleteUserPermission(ctx context.Context, userUUID, permissionUUID string) error

	// CleanupExpired removes grants with expires_at <= now from all three
	// tables and returns the total count.
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}
