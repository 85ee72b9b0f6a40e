package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glueful/glueful/internal/db/models"
	"github.com/glueful/glueful/internal/repository"
)

// ErrSystemRole guards system roles against deletion and demotion.
var ErrSystemRole = errors.New("system role is protected")

// ErrInvalidHierarchy indicates a parent edge that would violate the
// level or acyclicity invariants.
var ErrInvalidHierarchy = errors.New("invalid role hierarchy")

// GrantOptions carries the optional bounds of an assignment.
type GrantOptions struct {
	Scope          models.JSONMap
	ResourceFilter models.JSONMap
	Constraints    models.JSONMap
	GrantedBy      string
	ExpiresAt      *time.Time
}

// BulkResult aggregates the outcome of a bulk assignment.
type BulkResult struct {
	Success int
	Failed  int
	Grants  []*models.RolePermission
}

// Service owns role/permission administration and grant assignment. Every
// mutation synchronously invalidates the resolver caches so a decision taken
// after the mutation sees the new state.
type Service struct {
	roles    repository.RoleRepository
	perms    repository.PermissionRepository
	grants   repository.GrantRepository
	graph    *Graph
	resolver *Resolver
}

// NewService wires the rbac service. The resolver may be nil in
// administrative tools that never evaluate permissions.
func NewService(roles repository.RoleRepository, perms repository.PermissionRepository, grants repository.GrantRepository, graph *Graph, resolver *Resolver) *Service {
	return &Service{
		roles:    roles,
		perms:    perms,
		grants:   grants,
		graph:    graph,
		resolver: resolver,
	}
}

// ========================================
// Role administration
// ========================================

// CreateRole validates hierarchy invariants and persists a new role.
func (s *Service) CreateRole(ctx context.Context, role *models.Role) error {
	if role.Status == "" {
		role.Status = models.RoleStatusActive
	}

	if role.ParentUUID != nil {
		parent, err := s.graph.Get(ctx, *role.ParentUUID)
		if err != nil {
			return fmt.Errorf("resolve parent: %w", err)
		}
		if role.Level <= parent.Level {
			return fmt.Errorf("level %d must exceed parent level %d: %w", role.Level, parent.Level, ErrInvalidHierarchy)
		}
	}

	if err := s.roles.Create(ctx, role); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// SetParent re-parents a role, refusing edges that would create a cycle or
// break the level ordering.
func (s *Service) SetParent(ctx context.Context, roleUUID string, parentUUID *string) error {
	role, err := s.graph.Get(ctx, roleUUID)
	if err != nil {
		return err
	}

	if parentUUID != nil {
		cycle, err := s.graph.WouldCycle(ctx, roleUUID, *parentUUID)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("parent %s: %w", *parentUUID, ErrCycle)
		}

		parent, err := s.graph.Get(ctx, *parentUUID)
		if err != nil {
			return fmt.Errorf("resolve parent: %w", err)
		}
		if role.Level <= parent.Level {
			return fmt.Errorf("level %d must exceed parent level %d: %w", role.Level, parent.Level, ErrInvalidHierarchy)
		}
	}

	updated := *role
	updated.ParentUUID = parentUUID
	if err := s.roles.Update(ctx, &updated); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// UpdateRole persists role changes, protecting system roles from demotion.
func (s *Service) UpdateRole(ctx context.Context, role *models.Role) error {
	existing, err := s.graph.Get(ctx, role.UUID)
	if err != nil {
		return err
	}
	if existing.IsSystem && (!role.IsSystem || role.Status != models.RoleStatusActive) {
		return fmt.Errorf("role %s: %w", role.UUID, ErrSystemRole)
	}

	if err := s.roles.Update(ctx, role); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// DeleteRole soft-deletes a role. System roles are undeletable.
func (s *Service) DeleteRole(ctx context.Context, uuid string) error {
	role, err := s.graph.Get(ctx, uuid)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("role %s: %w", uuid, ErrSystemRole)
	}

	if err := s.roles.SoftDelete(ctx, uuid); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// ========================================
// Assignment operations
// ========================================

// AssignRole grants a role to a user. Idempotent on (user, role, scope):
// when an equal-scoped grant already exists it is returned unchanged.
func (s *Service) AssignRole(ctx context.Context, userUUID, roleUUID string, opts GrantOptions) (*models.UserRole, error) {
	if _, err := s.graph.Get(ctx, roleUUID); err != nil {
		return nil, err
	}

	existing, err := s.grants.UserRoleGrants(ctx, userUUID, roleUUID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Scope.Equal(opts.Scope) {
			return &existing[i], nil
		}
	}

	grant := &models.UserRole{
		UserUUID:  userUUID,
		RoleUUID:  roleUUID,
		Scope:     opts.Scope,
		ExpiresAt: opts.ExpiresAt,
	}
	if opts.GrantedBy != "" {
		grant.GrantedBy = &opts.GrantedBy
	}

	if err := s.grants.CreateUserRole(ctx, grant); err != nil {
		return nil, err
	}
	s.invalidateUser(userUUID)
	return grant, nil
}

// RevokeRole removes a user's role assignment.
func (s *Service) RevokeRole(ctx context.Context, userUUID, roleUUID string) error {
	if err := s.grants.DeleteUserRole(ctx, userUUID, roleUUID); err != nil {
		return err
	}
	s.invalidateUser(userUUID)
	return nil
}

// AssignPermissionToRole grants a permission to a role.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleUUID, permissionUUID string, opts GrantOptions) (*models.RolePermission, error) {
	if _, err := s.graph.Get(ctx, roleUUID); err != nil {
		return nil, err
	}
	if _, err := s.perms.GetByUUID(ctx, permissionUUID); err != nil {
		return nil, err
	}

	grant := s.newRolePermission(roleUUID, permissionUUID, opts)
	if err := s.grants.CreateRolePermission(ctx, grant); err != nil {
		return nil, err
	}
	s.invalidateAll()
	return grant, nil
}

// AssignPermissionToUser grants a permission directly to a user.
func (s *Service) AssignPermissionToUser(ctx context.Context, userUUID, permissionUUID string, opts GrantOptions) (*models.UserPermission, error) {
	if _, err := s.perms.GetByUUID(ctx, permissionUUID); err != nil {
		return nil, err
	}

	grant := &models.UserPermission{
		UserUUID:       userUUID,
		PermissionUUID: permissionUUID,
		ResourceFilter: opts.ResourceFilter,
		Constraints:    opts.Constraints,
		ExpiresAt:      opts.ExpiresAt,
	}
	if opts.GrantedBy != "" {
		grant.GrantedBy = &opts.GrantedBy
	}

	if err := s.grants.CreateUserPermission(ctx, grant); err != nil {
		return nil, err
	}
	s.invalidateUser(userUUID)
	return grant, nil
}

// RevokePermissionFromUser removes a user's direct grants of a permission.
func (s *Service) RevokePermissionFromUser(ctx context.Context, userUUID, permissionUUID string) error {
	if err := s.grants.DeleteUserPermission(ctx, userUUID, permissionUUID); err != nil {
		return err
	}
	s.invalidateUser(userUUID)
	return nil
}

// RevokePermissionFromRole removes a role's grants of the given permissions.
func (s *Service) RevokePermissionFromRole(ctx context.Context, roleUUID string, permissionUUIDs []string) (int64, error) {
	deleted, err := s.grants.DeleteRolePermissions(ctx, roleUUID, permissionUUIDs)
	if err != nil {
		return 0, err
	}
	s.invalidateAll()
	return deleted, nil
}

// BulkAssignPermissions grants a set of permissions to a role with one batch
// insert. Duplicate uuids in the input, and grants the role already holds
// with the same bounds, count as successes without inserting twice.
func (s *Service) BulkAssignPermissions(ctx context.Context, roleUUID string, permissionUUIDs []string, opts GrantOptions) (*BulkResult, error) {
	if _, err := s.graph.Get(ctx, roleUUID); err != nil {
		return nil, err
	}

	now := time.Now()
	existing, err := s.grants.ListRolePermissions(ctx, roleUUID, now)
	if err != nil {
		return nil, err
	}
	held := make(map[string]*models.RolePermission, len(existing))
	for i := range existing {
		grant := &existing[i]
		if grant.ResourceFilter.Equal(opts.ResourceFilter) && grant.Constraints.Equal(opts.Constraints) {
			held[grant.PermissionUUID] = grant
		}
	}

	result := &BulkResult{}
	var toInsert []*models.RolePermission
	pending := make(map[string]*models.RolePermission)

	for _, permUUID := range permissionUUIDs {
		if grant, ok := held[permUUID]; ok {
			result.Success++
			result.Grants = append(result.Grants, grant)
			continue
		}
		if grant, ok := pending[permUUID]; ok {
			// Duplicate within the request collapses onto one grant.
			result.Success++
			result.Grants = append(result.Grants, grant)
			continue
		}

		if _, err := s.perms.GetByUUID(ctx, permUUID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Failed++
				continue
			}
			return nil, err
		}

		grant := s.newRolePermission(roleUUID, permUUID, opts)
		pending[permUUID] = grant
		toInsert = append(toInsert, grant)
		result.Success++
		result.Grants = append(result.Grants, grant)
	}

	if err := s.grants.InsertRolePermissions(ctx, toInsert); err != nil {
		return nil, err
	}
	s.invalidateAll()
	return result, nil
}

// ReplaceRolePermissions deletes the role's non-expired grants and
// bulk-assigns the new set.
func (s *Service) ReplaceRolePermissions(ctx context.Context, roleUUID string, permissionUUIDs []string, opts GrantOptions) (*BulkResult, error) {
	if _, err := s.grants.DeleteRolePermissions(ctx, roleUUID, nil); err != nil {
		return nil, err
	}
	return s.BulkAssignPermissions(ctx, roleUUID, permissionUUIDs, opts)
}

// CleanupExpired eagerly removes grants whose expiry has passed.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.grants.CleanupExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.invalidateAll()
	}
	return removed, nil
}

func (s *Service) newRolePermission(roleUUID, permissionUUID string, opts GrantOptions) *models.RolePermission {
	grant := &models.RolePermission{
		RoleUUID:       roleUUID,
		PermissionUUID: permissionUUID,
		ResourceFilter: opts.ResourceFilter,
		Constraints:    opts.Constraints,
		ExpiresAt:      opts.ExpiresAt,
	}
	if opts.GrantedBy != "" {
		grant.GrantedBy = &opts.GrantedBy
	}
	return grant
}

func (s *Service) invalidateAll() {
	if s.resolver != nil {
		s.resolver.InvalidateAll()
		return
	}
	s.graph.Invalidate()
}

func (s *Service) invalidateUser(userUUID string) {
	if s.resolver != nil {
		s.resolver.InvalidateUser(userUUID)
		return
	}
	s.graph.InvalidateUser(userUUID)
}
