package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/db/models"
	"github.com/uptrace/bun"
)

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db *bun.DB
}

// NewBunPermissionRepository creates a new Bun-based permission repository
func NewBunPermissionRepository(db *bun.DB) PermissionRepository {
	return &BunPermissionRepository{db: db}
}

// Create inserts a new permission
func (r *BunPermissionRepository) Create(ctx context.Context, perm *models.Permission) error {
	if perm.UUID == "" {
		perm.UUID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(perm).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("permission slug %q already exists: %w", perm.Slug, ErrConflict)
		}
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// GetByUUID retrieves a permission by uuid
func (r *BunPermissionRepository) GetByUUID(ctx context.Context, uuid string) (*models.Permission, error) {
	perm := new(models.Permission)
	err := r.db.NewSelect().
		Model(perm).
		Where("uuid = ?", uuid).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", uuid, ErrNotFound)
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return perm, nil
}

// GetBySlug retrieves a permission by its unique slug
func (r *BunPermissionRepository) GetBySlug(ctx context.Context, slug string) (*models.Permission, error) {
	perm := new(models.Permission)
	err := r.db.NewSelect().
		Model(perm).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("get permission by slug: %w", err)
	}
	return perm, nil
}

// List retrieves all permissions
func (r *BunPermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Order("slug ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// Update updates an existing permission
func (r *BunPermissionRepository) Update(ctx context.Context, perm *models.Permission) error {
	perm.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(perm).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update permission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("permission %s: %w", perm.UUID, ErrNotFound)
	}

	return nil
}

// Delete removes a permission by uuid
func (r *BunPermissionRepository) Delete(ctx context.Context, uuid string) error {
	result, err := r.db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("uuid = ?", uuid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("permission %s: %w", uuid, ErrNotFound)
	}

	return nil
}
