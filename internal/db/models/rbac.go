package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Role status values.
const (
	RoleStatusActive   = "active"
	RoleStatusInactive = "inactive"
)

// Role is a node in the role hierarchy. The parent relation forms a DAG with
// no cycles and level(child) > level(parent); level 0 is a root. System roles
// are undeletable and protected from demotion.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	UUID       string    `bun:"uuid,pk,type:uuid"`
	Name       string    `bun:"name,notnull"`
	Slug       string    `bun:"slug,notnull"` // unique among non-deleted roles
	ParentUUID *string   `bun:"parent_uuid,type:uuid"`
	Level      int       `bun:"level,notnull,default:0"`
	IsSystem   bool      `bun:"is_system,notnull,default:false"`
	Metadata   JSONMap   `bun:"metadata,type:jsonb"`
	Status     string    `bun:"status,notnull,default:'active'"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
	DeletedAt  time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

// IsActive reports whether the role participates in authorization.
func (r *Role) IsActive() bool {
	return r != nil && r.Status == RoleStatusActive && r.DeletedAt.IsZero()
}

// Permission is a named capability identified by its unique slug.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	UUID         string    `bun:"uuid,pk,type:uuid"`
	Name         string    `bun:"name,notnull"`
	Slug         string    `bun:"slug,notnull,unique"`
	Category     *string   `bun:"category"`
	ResourceType *string   `bun:"resource_type"`
	IsSystem     bool      `bun:"is_system,notnull,default:false"`
	Metadata     JSONMap   `bun:"metadata,type:jsonb"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// UserRole assigns a role to a user, optionally bounded by a scope object and
// an expiry. (user, role, scope) is effectively unique: reassignment returns
// the existing grant.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UUID      string     `bun:"uuid,pk,type:uuid"`
	UserUUID  string     `bun:"user_uuid,notnull,type:uuid"`
	RoleUUID  string     `bun:"role_uuid,notnull,type:uuid"`
	Scope     JSONMap    `bun:"scope,type:jsonb"`
	GrantedBy *string    `bun:"granted_by,type:uuid"`
	ExpiresAt *time.Time `bun:"expires_at"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// RolePermission grants a permission to a role. ResourceFilter bounds which
// resources the grant covers; Constraints carries operator-tagged conditions
// matched against the request context.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	UUID           string     `bun:"uuid,pk,type:uuid"`
	RoleUUID       string     `bun:"role_uuid,notnull,type:uuid"`
	PermissionUUID string     `bun:"permission_uuid,notnull,type:uuid"`
	ResourceFilter JSONMap    `bun:"resource_filter,type:jsonb"`
	Constraints    JSONMap    `bun:"constraints,type:jsonb"`
	GrantedBy      *string    `bun:"granted_by,type:uuid"`
	ExpiresAt      *time.Time `bun:"expires_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// UserPermission is a direct grant bypassing roles. Evaluated after
// role-derived grants; a match is sufficient authorization.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:up"`

	UUID           string     `bun:"uuid,pk,type:uuid"`
	UserUUID       string     `bun:"user_uuid,notnull,type:uuid"`
	PermissionUUID string     `bun:"permission_uuid,notnull,type:uuid"`
	ResourceFilter JSONMap    `bun:"resource_filter,type:jsonb"`
	Constraints    JSONMap    `bun:"constraints,type:jsonb"`
	GrantedBy      *string    `bun:"granted_by,type:uuid"`
	ExpiresAt      *time.Time `bun:"expires_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// Expired reports whether a grant expiry has passed at the given instant.
// A nil expiry never expires.
func Expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}
