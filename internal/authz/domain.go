// Package authz implements the role/permission/function access model:
// administrative assignment of grants to roles, resolution of a user's
// effective capability set, and the request gate that protected routes
// mount. All grants are indirect: users hold roles, roles hold
// permissions and functions.
package authz

import (
	"errors"
	"time"
)

// Role is an administratively defined bundle of grants. Roles are soft
// deleted: IsActive false hides a role from resolution without removing
// its association rows.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a fine-grained capability keyed "<module>.<action>",
// e.g. "patient.read".
type Permission struct {
	ID        int64
	Key       string
	Name      string
	Module    string
	Category  string
	IsActive  bool
	CreatedAt time.Time
}

// Function is a coarse capability addressing a UI route or feature.
// Resolved exactly like a Permission but kept as a separate namespace.
type Function struct {
	ID        int64
	Key       string
	Name      string
	Module    string
	Route     string
	IsActive  bool
	CreatedAt time.Time
}

// RoleAssignment is one active role held by a user. At most one
// assignment per user carries IsPrimary.
type RoleAssignment struct {
	RoleID      int64
	RoleName    string
	Description string
	IsPrimary   bool
}

// PermissionGrant is an element of a user's effective permission set.
type PermissionGrant struct {
	Key      string
	Name     string
	Module   string
	Category string
}

// FunctionGrant is an element of a user's effective function set.
type FunctionGrant struct {
	Key    string
	Name   string
	Module string
	Route  string
}

// AdminRoleNames are the role names granted the administrative bypass.
// IsAdmin matches on names, not permission grants: an admin role
// stripped of every permission still counts.
var AdminRoleNames = []string{"Super Admin", "Hospital Admin"}

// Sentinel errors surfaced by the service.
var (
	ErrRoleNotFound       = errors.New("authz: role not found")
	ErrUserNotFound       = errors.New("authz: user not found")
	ErrPermissionNotFound = errors.New("authz: permission not found")
	ErrFunctionNotFound   = errors.New("authz: function not found")
	ErrRoleInUse          = errors.New("authz: role is still assigned to users")
	ErrDuplicateKey       = errors.New("authz: key already exists")
	ErrInvalidInput       = errors.New("authz: invalid input")
)

func isAdminRoleName(name string) bool {
	for _, admin := range AdminRoleNames {
		if name == admin {
			return true
		}
	}
	return false
}
