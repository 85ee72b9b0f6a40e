package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glueful/glueful/internal/db/models"
	"github.com/glueful/glueful/internal/repository"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrCycle indicates the stored parent relation violates the DAG invariant.
// Treated as data corruption: traversals fail and authorization denies.
var ErrCycle = errors.New("role hierarchy cycle detected")

const (
	roleCacheSize     = 1024
	userRoleCacheSize = 4096
)

// Graph answers role hierarchy queries with process-local memoization.
//
// All reads go through an LRU keyed by uuid (plus a slug→uuid index), filled
// on miss. Any role mutation purges the whole cache — roles change rarely, so
// whole-cache invalidation is acceptable. A second, TTL-bounded cache holds
// user→active-role-uuids to avoid repeat assignment queries within a request
// window.
type Graph struct {
	roles  repository.RoleRepository
	grants repository.GrantRepository

	byUUID    *lru.Cache[string, *models.Role]
	slugIndex *lru.Cache[string, string]
	userRoles *expirable.LRU[string, []string]
}

// NewGraph creates a role graph backed by the given repositories.
// userRoleTTL bounds how long a user's active role set may be served from
// cache; mutations through the same graph invalidate synchronously.
func NewGraph(roles repository.RoleRepository, grants repository.GrantRepository, userRoleTTL time.Duration) (*Graph, error) {
	byUUID, err := lru.New[string, *models.Role](roleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create role cache: %w", err)
	}
	slugIndex, err := lru.New[string, string](roleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create slug index: %w", err)
	}

	return &Graph{
		roles:     roles,
		grants:    grants,
		byUUID:    byUUID,
		slugIndex: slugIndex,
		userRoles: expirable.NewLRU[string, []string](userRoleCacheSize, nil, userRoleTTL),
	}, nil
}

// Get retrieves a role by uuid through the cache.
func (g *Graph) Get(ctx context.Context, uuid string) (*models.Role, error) {
	if role, ok := g.byUUID.Get(uuid); ok {
		return role, nil
	}

	role, err := g.roles.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	g.remember(role)
	return role, nil
}

// GetBySlug retrieves a role by slug through the cache.
func (g *Graph) GetBySlug(ctx context.Context, slug string) (*models.Role, error) {
	if uuid, ok := g.slugIndex.Get(slug); ok {
		if role, ok := g.byUUID.Get(uuid); ok {
			return role, nil
		}
	}

	role, err := g.roles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	g.remember(role)
	return role, nil
}

// RolesByUUIDs resolves a set of roles with a single query, priming the
// cache for the subsequent ancestor walk.
func (g *Graph) RolesByUUIDs(ctx context.Context, uuids []string) ([]models.Role, error) {
	roles, err := g.roles.GetByUUIDs(ctx, uuids, true)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		g.remember(&roles[i])
	}
	return roles, nil
}

// Children returns the direct children of a role, level asc then name asc.
func (g *Graph) Children(ctx context.Context, parentUUID string) ([]models.Role, error) {
	return g.roles.Children(ctx, parentUUID)
}

// ByLevel returns all roles at a hierarchy level.
func (g *Graph) ByLevel(ctx context.Context, level int) ([]models.Role, error) {
	return g.roles.ByLevel(ctx, level)
}

// Ancestors walks the parent chain of a role upward and returns it ordered
// root first, excluding the role itself. A repeated uuid on the walk fails
// with ErrCycle instead of recursing forever.
func (g *Graph) Ancestors(ctx context.Context, uuid string) ([]models.Role, error) {
	role, err := g.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}

	visited := map[string]struct{}{role.UUID: {}}
	var chain []models.Role

	current := role
	for current.ParentUUID != nil {
		parentUUID := *current.ParentUUID
		if _, seen := visited[parentUUID]; seen {
			return nil, fmt.Errorf("role %s: %w", parentUUID, ErrCycle)
		}
		visited[parentUUID] = struct{}{}

		parent, err := g.Get(ctx, parentUUID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Dangling parent reference is an integrity violation too;
				// surface it distinctly from a clean lookup miss.
				return nil, fmt.Errorf("role %s references missing parent %s: %w", current.UUID, parentUUID, err)
			}
			return nil, err
		}

		chain = append(chain, *parent)
		current = parent
	}

	// Walked leaf→root; callers expect root first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// WouldCycle reports whether setting parentUUID as the parent of roleUUID
// would close a cycle. Used to refuse the edge before it is persisted.
func (g *Graph) WouldCycle(ctx context.Context, roleUUID, parentUUID string) (bool, error) {
	if roleUUID == parentUUID {
		return true, nil
	}

	visited := map[string]struct{}{}
	current := parentUUID
	for current != "" {
		if current == roleUUID {
			return true, nil
		}
		if _, seen := visited[current]; seen {
			// Existing data already cyclic; adding any edge into it is refused.
			return true, nil
		}
		visited[current] = struct{}{}

		role, err := g.Get(ctx, current)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if role.ParentUUID == nil {
			return false, nil
		}
		current = *role.ParentUUID
	}
	return false, nil
}

// UserRoleUUIDs returns the uuids of the user's active (non-expired) roles,
// served from the short-lived cache when possible.
func (g *Graph) UserRoleUUIDs(ctx context.Context, userUUID string, now time.Time) ([]string, error) {
	if uuids, ok := g.userRoles.Get(userUUID); ok {
		return uuids, nil
	}

	assignments, err := g.grants.ActiveUserRoles(ctx, userUUID, now)
	if err != nil {
		return nil, err
	}

	uuids := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		uuids = append(uuids, assignment.RoleUUID)
	}
	g.userRoles.Add(userUUID, uuids)
	return uuids, nil
}

// UserRoleUUIDsInScope is UserRoleUUIDs narrowed to assignments whose scope
// contains every entry of scopeFilter. An unscoped assignment matches only an
// empty filter. Filtered reads bypass the cache.
func (g *Graph) UserRoleUUIDsInScope(ctx context.Context, userUUID string, scopeFilter models.JSONMap, now time.Time) ([]string, error) {
	if len(scopeFilter) == 0 {
		return g.UserRoleUUIDs(ctx, userUUID, now)
	}

	assignments, err := g.grants.ActiveUserRoles(ctx, userUUID, now)
	if err != nil {
		return nil, err
	}

	var uuids []string
	for _, assignment := range assignments {
		if scopeContains(assignment.Scope, scopeFilter) {
			uuids = append(uuids, assignment.RoleUUID)
		}
	}
	return uuids, nil
}

func scopeContains(scope, filter models.JSONMap) bool {
	for key, want := range filter {
		got, ok := scope[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// Invalidate purges the role caches. Called on any role mutation.
func (g *Graph) Invalidate() {
	g.byUUID.Purge()
	g.slugIndex.Purge()
	g.userRoles.Purge()
}

// InvalidateUser drops the cached role set of one user after an assignment
// change without discarding the role cache.
func (g *Graph) InvalidateUser(userUUID string) {
	g.userRoles.Remove(userUUID)
}

func (g *Graph) remember(role *models.Role) {
	g.byUUID.Add(role.UUID, role)
	g.slugIndex.Add(role.Slug, role.UUID)
}
