package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glueful/glueful/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreatePermission(t *testing.T, repo PermissionRepository, name, slug string) *models.Permission {
	t.Helper()
	perm := &models.Permission{Name: name, Slug: slug}
	require.NoError(t, repo.Create(context.Background(), perm))
	return perm
}

func TestBunGrantRepository_UserRoles(t *testing.T) {
	db := setupTestDB(t)
	roles := NewBunRoleRepository(db)
	grants := NewBunGrantRepository(db)
	ctx := context.Background()

	role := mustCreateRole(t, roles, &models.Role{Name: "Editor", Slug: "editor"})
	now := time.Now()

	t.Run("active excludes expired assignments", func(t *testing.T) {
		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)

		require.NoError(t, grants.CreateUserRole(ctx, &models.UserRole{
			UserUUID: "user-1", RoleUUID: role.UUID, ExpiresAt: &past,
		}))
		require.NoError(t, grants.CreateUserRole(ctx, &models.UserRole{
			UserUUID: "user-1", RoleUUID: role.UUID, Scope: models.JSONMap{"tenant": "acme"}, ExpiresAt: &future,
		}))

		active, err := grants.ActiveUserRoles(ctx, "user-1", now)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "acme", active[0].Scope["tenant"])

		all, err := grants.UserRoleGrants(ctx, "user-1", role.UUID)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("delete removes every assignment of the pair", func(t *testing.T) {
		require.NoError(t, grants.DeleteUserRole(ctx, "user-1", role.UUID))
		all, err := grants.UserRoleGrants(ctx, "user-1", role.UUID)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestBunGrantRepository_RolePermissions(t *testing.T) {
	db := setupTestDB(t)
	roles := NewBunRoleRepository(db)
	perms := NewBunPermissionRepository(db)
	grants := NewBunGrantRepository(db)
	ctx := context.Background()

	writer := mustCreateRole(t, roles, &models.Role{Name: "Writer", Slug: "writer"})
	editor := mustCreateRole(t, roles, &models.Role{Name: "Editor", Slug: "editor"})
	edit := mustCreatePermission(t, perms, "Edit Posts", "posts.edit")
	del := mustCreatePermission(t, perms, "Delete Posts", "posts.delete")
	now := time.Now()

	t.Run("single IN query covers a role closure", func(t *testing.T) {
		require.NoError(t, grants.CreateRolePermission(ctx, &models.RolePermission{
			RoleUUID: writer.UUID, PermissionUUID: edit.UUID,
		}))

		found, err := grants.RolePermissions(ctx, []string{editor.UUID, writer.UUID}, edit.UUID, now)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, writer.UUID, found[0].RoleUUID)

		none, err := grants.RolePermissions(ctx, []string{editor.UUID}, edit.UUID, now)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("batch insert lands every grant", func(t *testing.T) {
		batch := []*models.RolePermission{
			{RoleUUID: editor.UUID, PermissionUUID: edit.UUID},
			{RoleUUID: editor.UUID, PermissionUUID: del.UUID},
		}
		require.NoError(t, grants.InsertRolePermissions(ctx, batch))

		held, err := grants.ListRolePermissions(ctx, editor.UUID, now)
		require.NoError(t, err)
		assert.Len(t, held, 2)
	})

	t.Run("expired grants fall out of reads", func(t *testing.T) {
		past := now.Add(-time.Minute)
		require.NoError(t, grants.CreateRolePermission(ctx, &models.RolePermission{
			RoleUUID: writer.UUID, PermissionUUID: del.UUID, ExpiresAt: &past,
		}))

		found, err := grants.RolePermissions(ctx, []string{writer.UUID}, del.UUID, now)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("targeted delete counts what it removed", func(t *testing.T) {
		deleted, err := grants.DeleteRolePermissions(ctx, editor.UUID, []string{edit.UUID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		held, err := grants.ListRolePermissions(ctx, editor.UUID, now)
		require.NoError(t, err)
		require.Len(t, held, 1)
		assert.Equal(t, del.UUID, held[0].PermissionUUID)
	})

	t.Run("nil permission set deletes everything the role holds", func(t *testing.T) {
		deleted, err := grants.DeleteRolePermissions(ctx, editor.UUID, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})
}

func TestBunGrantRepository_UserPermissions(t *testing.T) {
	db := setupTestDB(t)
	perms := NewBunPermissionRepository(db)
	grants := NewBunGrantRepository(db)
	ctx := context.Background()

	view := mustCreatePermission(t, perms, "View Reports", "reports.view")
	now := time.Now()

	require.NoError(t, grants.CreateUserPermission(ctx, &models.UserPermission{
		UserUUID: "user-2", PermissionUUID: view.UUID,
		Constraints: models.JSONMap{"tenant": "acme"},
	}))

	direct, err := grants.UserPermissions(ctx, "user-2", view.UUID, now)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "acme", direct[0].Constraints["tenant"])

	require.NoError(t, grants.DeleteUserPermission(ctx, "user-2", view.UUID))
	direct, err = grants.UserPermissions(ctx, "user-2", view.UUID, now)
	require.NoError(t, err)
	assert.Empty(t, direct)
}

func TestBunGrantRepository_CleanupExpired(t *testing.T) {
	db := setupTestDB(t)
	roles := NewBunRoleRepository(db)
	perms := NewBunPermissionRepository(db)
	grants := NewBunGrantRepository(db)
	ctx := context.Background()

	role := mustCreateRole(t, roles, &models.Role{Name: "Temp", Slug: "temp"})
	perm := mustCreatePermission(t, perms, "Temp Perm", "temp.perm")

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, grants.CreateUserRole(ctx, &models.UserRole{
		UserUUID: "u", RoleUUID: role.UUID, ExpiresAt: &past,
	}))
	require.NoError(t, grants.CreateRolePermission(ctx, &models.RolePermission{
		RoleUUID: role.UUID, PermissionUUID: perm.UUID, ExpiresAt: &past,
	}))
	require.NoError(t, grants.CreateUserPermission(ctx, &models.UserPermission{
		UserUUID: "u", PermissionUUID: perm.UUID, ExpiresAt: &future,
	}))

	removed, err := grants.CleanupExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// The unexpired direct grant survives.
	direct, err := grants.UserPermissions(ctx, "u", perm.UUID, now)
	require.NoError(t, err)
	assert.Len(t, direct, 1)
}
