package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/glueful/glueful/internal/repository"
	"github.com/glueful/glueful/internal/telemetry"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const decisionCacheSize = 8192

// Resolver answers "does subject S have permission P in context X?".
//
// Evaluation order: direct user grants first, then role grants over the
// user's assigned roles plus all of their ancestors. The first grant that
// survives expiry, resource-filter and constraint checks authorizes.
//
// Missing data never errors a decision — a missing permission, role or grant
// simply denies. Only an unreachable store surfaces as an error.
type Resolver struct {
	perms   repository.PermissionRepository
	grants  repository.GrantRepository
	graph   *Graph
	metrics *telemetry.AuthzMetrics

	decisions *expirable.LRU[string, bool]
}

// NewResolver creates a permission resolver. cacheTTL is the upper bound on
// how long a decision may be served from cache; mutations through the owning
// Service invalidate synchronously.
func NewResolver(perms repository.PermissionRepository, grants repository.GrantRepository, graph *Graph, metrics *telemetry.AuthzMetrics, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		perms:     perms,
		grants:    grants,
		graph:     graph,
		metrics:   metrics,
		decisions: expirable.NewLRU[string, bool](decisionCacheSize, nil, cacheTTL),
	}
}

// Can reports whether the user holds the permission in the given context.
//
// The context is an optional map of string→scalar (resource, tenant, ...).
// Can never errors on missing data; it returns false. It returns an error
// only when the backing store is unreachable or misconfigured.
func (r *Resolver) Can(ctx context.Context, userUUID, permissionSlug string, evalCtx map[string]any) (bool, error) {
	cacheKey := decisionKey(userUUID, permissionSlug, evalCtx)
	if allowed, ok := r.decisions.Get(cacheKey); ok {
		return allowed, nil
	}

	allowed, err := r.evaluate(ctx, userUUID, permissionSlug, evalCtx)
	if err != nil {
		return false, err
	}

	r.decisions.Add(cacheKey, allowed)
	r.metrics.RecordDecision(ctx, permissionSlug, allowed)
	return allowed, nil
}

func (r *Resolver) evaluate(ctx context.Context, userUUID, permissionSlug string, evalCtx map[string]any) (bool, error) {
	now := time.Now()

	perm, err := r.perms.GetBySlug(ctx, permissionSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve permission %s: %w", permissionSlug, err)
	}

	// 1. Direct grants win first; a match is sufficient authorization.
	direct, err := r.grants.UserPermissions(ctx, userUUID, perm.UUID, now)
	if err != nil {
		return false, fmt.Errorf("load direct grants: %w", err)
	}
	for _, grant := range direct {
		if grantMatches(grant.ResourceFilter, grant.Constraints, evalCtx) {
			return true, nil
		}
	}

	// 2. Role grants over assigned ∪ ancestors(assigned), de-duplicated.
	closure, ok, err := r.roleClosure(ctx, userUUID, now)
	if err != nil {
		return false, err
	}
	if !ok {
		// Integrity violation in the role graph: fail safe, deny.
		return false, nil
	}
	if len(closure) == 0 {
		return false, nil
	}

	roleGrants, err := r.grants.RolePermissions(ctx, closure, perm.UUID, now)
	if err != nil {
		return false, fmt.Errorf("load role grants: %w", err)
	}
	for _, grant := range roleGrants {
		if grantMatches(grant.ResourceFilter, grant.Constraints, evalCtx) {
			return true, nil
		}
	}

	return false, nil
}

// roleClosure computes assigned ∪ ancestors(assigned) role uuids for the
// user. The second return value is false when the stored hierarchy is
// corrupt (cycle or dangling parent); the caller denies.
func (r *Resolver) roleClosure(ctx context.Context, userUUID string, now time.Time) ([]string, bool, error) {
	assigned, err := r.graph.UserRoleUUIDs(ctx, userUUID, now)
	if err != nil {
		return nil, false, fmt.Errorf("load user roles: %w", err)
	}
	if len(assigned) == 0 {
		return nil, true, nil
	}

	// One batch query resolves the assigned set and primes the cache for
	// the per-role ancestor walks.
	roles, err := r.graph.RolesByUUIDs(ctx, assigned)
	if err != nil {
		return nil, false, fmt.Errorf("resolve assigned roles: %w", err)
	}

	seen := make(map[string]struct{}, len(roles))
	closure := make([]string, 0, len(roles))
	for _, role := range roles {
		if !role.IsActive() {
			continue
		}
		if _, dup := seen[role.UUID]; dup {
			continue
		}
		seen[role.UUID] = struct{}{}
		closure = append(closure, role.UUID)

		ancestors, err := r.graph.Ancestors(ctx, role.UUID)
		if err != nil {
			if errors.Is(err, ErrCycle) || errors.Is(err, repository.ErrNotFound) {
				log.Printf("rbac: integrity violation walking ancestors of role %s: %v", role.UUID, err)
				r.metrics.RecordIntegrityDenial(ctx, "role-ancestry")
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("walk ancestors of %s: %w", role.UUID, err)
		}
		for _, ancestor := range ancestors {
			if !ancestor.IsActive() {
				continue
			}
			if _, dup := seen[ancestor.UUID]; dup {
				continue
			}
			seen[ancestor.UUID] = struct{}{}
			closure = append(closure, ancestor.UUID)
		}
	}
	return closure, true, nil
}

// InvalidateUser drops cached decisions and the cached role set for a user
// after a grant mutation.
func (r *Resolver) InvalidateUser(userUUID string) {
	r.graph.InvalidateUser(userUUID)
	for _, key := range r.decisions.Keys() {
		if strings.HasPrefix(key, userUUID+"\x1f") {
			r.decisions.Remove(key)
		}
	}
}

// InvalidateAll drops every cached decision and the role caches. Called on
// role-graph or role-permission mutations, which can affect any user.
func (r *Resolver) InvalidateAll() {
	r.graph.Invalidate()
	r.decisions.Purge()
}

// decisionKey builds the (user, permission, stable context hash) cache key.
// The context is serialized with sorted keys so logically equal maps share
// one entry.
func decisionKey(userUUID, permissionSlug string, evalCtx map[string]any) string {
	if len(evalCtx) == 0 {
		return userUUID + "\x1f" + permissionSlug + "\x1f{}"
	}

	keys := make([]string, 0, len(evalCtx))
	for k := range evalCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(userUUID)
	sb.WriteByte('\x1f')
	sb.WriteString(permissionSlug)
	sb.WriteByte('\x1f')
	for _, k := range keys {
		raw, _ := json.Marshal(evalCtx[k])
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.Write(raw)
		sb.WriteByte(';')
	}
	return sb.String()
}
