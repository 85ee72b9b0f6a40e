package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/db/models"
	"github.com/uptrace/bun"
)

// ========================================
// Role Repository
// ========================================

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db *bun.DB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db *bun.DB) RoleRepository {
	return &BunRoleRepository{db: db}
}

// Create inserts a new role
func (r *BunRoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.UUID == "" {
		role.UUID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(role).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role slug %q already exists: %w", role.Slug, ErrConflict)
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// GetByUUID retrieves a role by uuid, excluding soft-deleted rows
func (r *BunRoleRepository) GetByUUID(ctx context.Context, uuid string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("uuid = ?", uuid).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", uuid, ErrNotFound)
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// GetBySlug retrieves a role by its unique slug
func (r *BunRoleRepository) GetBySlug(ctx context.Context, slug string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("get role by slug: %w", err)
	}
	return role, nil
}

// GetByUUIDs resolves a set of roles with exactly one query
func (r *BunRoleRepository) GetByUUIDs(ctx context.Context, uuids []string, preserveOrder bool) ([]models.Role, error) {
	if len(uuids) == 0 {
		return nil, nil
	}

	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Where("uuid IN (?)", bun.In(uuids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get roles by uuids: %w", err)
	}

	if !preserveOrder {
		return roles, nil
	}

	byUUID := make(map[string]models.Role, len(roles))
	for _, role := range roles {
		byUUID[role.UUID] = role
	}
	ordered := make([]models.Role, 0, len(roles))
	for _, uuid := range uuids {
		if role, ok := byUUID[uuid]; ok {
			ordered = append(ordered, role)
		}
	}
	return ordered, nil
}

// Children retrieves direct children of a role, level asc then name asc
func (r *BunRoleRepository) Children(ctx context.Context, parentUUID string) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Where("parent_uuid = ?", parentUUID).
		Order("level ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get role children: %w", err)
	}
	return roles, nil
}

// ByLevel retrieves all roles at a hierarchy level
func (r *BunRoleRepository) ByLevel(ctx context.Context, level int) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Where("level = ?", level).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get roles by level: %w", err)
	}
	return roles, nil
}

// Update updates an existing role
func (r *BunRoleRepository) Update(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(role).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("role %s: %w", role.UUID, ErrNotFound)
	}

	return nil
}

// SoftDelete marks a role deleted; bun turns the delete into an
// UPDATE ... SET deleted_at because of the soft_delete model tag.
func (r *BunRoleRepository) SoftDelete(ctx context.Context, uuid string) error {
	result, err := r.db.NewDelete().
		Model((*models.Role)(nil)).
		Where("uuid = ?", uuid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("role %s: %w", uuid, ErrNotFound)
	}

	return nil
}

// List retrieves all non-deleted roles
func (r *BunRoleRepository) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Order("level ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// isUniqueViolation detects unique index violations across PostgreSQL
// (SQLSTATE 23505) and SQLite ("UNIQUE constraint failed").
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
