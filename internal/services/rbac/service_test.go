package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AssignRoleIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.mustRole(t, "Support", "support", 0, nil)

	t.Run("equal scope returns the existing grant", func(t *testing.T) {
		scope := models.JSONMap{"tenant": "acme"}
		first, err := env.service.AssignRole(ctx, "user-1", role.UUID, GrantOptions{Scope: scope})
		require.NoError(t, err)

		second, err := env.service.AssignRole(ctx, "user-1", role.UUID, GrantOptions{Scope: scope})
		require.NoError(t, err)
		assert.Equal(t, first.UUID, second.UUID)

		all, err := env.grants.UserRoleGrants(ctx, "user-1", role.UUID)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("different scope creates a second grant", func(t *testing.T) {
		_, err := env.service.AssignRole(ctx, "user-1", role.UUID, GrantOptions{Scope: models.JSONMap{"tenant": "globex"}})
		require.NoError(t, err)

		all, err := env.grants.UserRoleGrants(ctx, "user-1", role.UUID)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("unknown role fails the assignment", func(t *testing.T) {
		_, err := env.service.AssignRole(ctx, "user-1", bunx.NewUUIDv7(), GrantOptions{})
		assert.Error(t, err)
	})
}

func TestService_BulkAssignPermissions(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.mustRole(t, "Editor", "editor", 0, nil)
	p1 := env.mustPerm(t, "Edit", "posts.edit")
	p2 := env.mustPerm(t, "Delete", "posts.delete")

	// p1 is already held before the bulk request.
	_, err := env.service.AssignPermissionToRole(ctx, role.UUID, p1.UUID, GrantOptions{})
	require.NoError(t, err)

	t.Run("duplicates and held grants count as success without double insert", func(t *testing.T) {
		result, err := env.service.BulkAssignPermissions(ctx, role.UUID, []string{p1.UUID, p2.UUID, p1.UUID}, GrantOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Success)
		assert.Equal(t, 0, result.Failed)
		require.Len(t, result.Grants, 3)

		held, err := env.grants.ListRolePermissions(ctx, role.UUID, time.Now())
		require.NoError(t, err)
		assert.Len(t, held, 2, "exactly one grant per (role, permission) pair")
	})

	t.Run("unknown permissions are counted as failed", func(t *testing.T) {
		result, err := env.service.BulkAssignPermissions(ctx, role.UUID, []string{p2.UUID, bunx.NewUUIDv7()}, GrantOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Success)
		assert.Equal(t, 1, result.Failed)
	})
}

func TestService_ReplaceRolePermissions(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.mustRole(t, "Viewer", "viewer", 0, nil)
	p1 := env.mustPerm(t, "Read", "docs.read")
	p2 := env.mustPerm(t, "Write", "docs.write")
	p3 := env.mustPerm(t, "Share", "docs.share")

	_, err := env.service.BulkAssignPermissions(ctx, role.UUID, []string{p1.UUID, p2.UUID}, GrantOptions{})
	require.NoError(t, err)

	result, err := env.service.ReplaceRolePermissions(ctx, role.UUID, []string{p3.UUID}, GrantOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	held, err := env.grants.ListRolePermissions(ctx, role.UUID, time.Now())
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, p3.UUID, held[0].PermissionUUID)
}

func TestService_HierarchyInvariants(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	root := env.mustRole(t, "Root", "root", 0, nil)
	child := env.mustRole(t, "Child", "child", 1, &root.UUID)

	t.Run("create refuses level not above the parent", func(t *testing.T) {
		err := env.service.CreateRole(ctx, &models.Role{
			Name: "Flat", Slug: "flat", Level: 0, ParentUUID: &root.UUID,
		})
		assert.ErrorIs(t, err, ErrInvalidHierarchy)
	})

	t.Run("set-parent refuses a cycle", func(t *testing.T) {
		err := env.service.SetParent(ctx, root.UUID, &child.UUID)
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("set-parent refuses a level inversion", func(t *testing.T) {
		peer := env.mustRole(t, "Peer", "peer", 1, nil)
		other := env.mustRole(t, "Other", "other", 1, nil)
		err := env.service.SetParent(ctx, peer.UUID, &other.UUID)
		assert.ErrorIs(t, err, ErrInvalidHierarchy)
	})

	t.Run("set-parent accepts a valid re-parent and detach", func(t *testing.T) {
		grand := env.mustRole(t, "Grand", "grand", 2, nil)
		require.NoError(t, env.service.SetParent(ctx, grand.UUID, &child.UUID))

		chain, err := env.graph.Ancestors(ctx, grand.UUID)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, root.UUID, chain[0].UUID)

		require.NoError(t, env.service.SetParent(ctx, grand.UUID, nil))
		chain, err = env.graph.Ancestors(ctx, grand.UUID)
		require.NoError(t, err)
		assert.Empty(t, chain)
	})
}

func TestService_SystemRoleProtection(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	system := &models.Role{Name: "Superuser", Slug: "superuser", IsSystem: true}
	require.NoError(t, env.service.CreateRole(ctx, system))

	t.Run("delete is refused", func(t *testing.T) {
		assert.ErrorIs(t, env.service.DeleteRole(ctx, system.UUID), ErrSystemRole)
	})

	t.Run("demotion is refused", func(t *testing.T) {
		demoted := *system
		demoted.IsSystem = false
		assert.ErrorIs(t, env.service.UpdateRole(ctx, &demoted), ErrSystemRole)

		inactive := *system
		inactive.Status = models.RoleStatusInactive
		assert.ErrorIs(t, env.service.UpdateRole(ctx, &inactive), ErrSystemRole)
	})

	t.Run("rename keeping system status is allowed", func(t *testing.T) {
		renamed := *system
		renamed.Name = "Root Superuser"
		assert.NoError(t, env.service.UpdateRole(ctx, &renamed))
	})
}

func TestService_CleanupExpired(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.mustRole(t, "Temp", "temp", 0, nil)
	perm := env.mustPerm(t, "Temp", "temp.use")

	past := time.Now().Add(-time.Hour)
	_, err := env.service.AssignRole(ctx, "user-9", role.UUID, GrantOptions{ExpiresAt: &past})
	require.NoError(t, err)
	_, err = env.service.AssignPermissionToUser(ctx, "user-9", perm.UUID, GrantOptions{ExpiresAt: &past})
	require.NoError(t, err)

	removed, err := env.service.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = env.service.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
