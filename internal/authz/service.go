package authz

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// AuditEntry describes one assignment mutation for the audit trail.
type AuditEntry struct {
	Actor    string
	Action   string
	Entity   string
	EntityID int64
	Detail   string
}

// AuditRecorder receives assignment mutations. Recording is best-effort:
// implementations must not fail the mutation that triggered them.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Service exposes the resolution engine (read-only capability queries)
// and the assignment service (atomic replace of association sets).
type Service struct {
	repo  Repository
	audit AuditRecorder
}

// NewService constructs a Service. The recorder may be nil.
func NewService(repo Repository, audit AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// permissionKeyPattern constrains keys to the "<module>.<action>" form.
var permissionKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// ---------------------------------------------------------------------------
// Resolution engine
// ---------------------------------------------------------------------------

// GetUserRoles returns the user's active roles, primary first then by
// name. Unknown users and users without roles yield an empty slice.
func (s *Service) GetUserRoles(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// GetUserPermissions returns the user's effective permission set:
// the union over all active roles, restricted to active permissions,
// deduplicated by key and ordered by module, category, name.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64) ([]PermissionGrant, error) {
	return s.repo.ListUserPermissions(ctx, userID)
}

// GetUserFunctions returns the user's effective function set under the
// same aggregation rule as permissions.
func (s *Service) GetUserFunctions(ctx context.Context, userID int64) ([]FunctionGrant, error) {
	return s.repo.ListUserFunctions(ctx, userID)
}

// HasPermission reports whether key is in the user's effective
// permission set.
func (s *Service) HasPermission(ctx context.Context, userID int64, key string) (bool, error) {
	set, err := s.permissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := set[normalizeKey(key)]
	return ok, nil
}

// HasFunction reports whether key is in the user's effective function set.
func (s *Service) HasFunction(ctx context.Context, userID int64, key string) (bool, error) {
	grants, err := s.repo.ListUserFunctions(ctx, userID)
	if err != nil {
		return false, err
	}
	key = normalizeKey(key)
	for _, g := range grants {
		if g.Key == key {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyPermission reports whether at least one of keys is granted.
// An empty keys list yields false: nothing was asked for, nothing matches.
func (s *Service) HasAnyPermission(ctx context.Context, userID int64, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	set, err := s.permissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if _, ok := set[normalizeKey(key)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether every key is granted. An empty keys
// list is vacuously satisfied.
func (s *Service) HasAllPermissions(ctx context.Context, userID int64, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	set, err := s.permissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if _, ok := set[normalizeKey(key)]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsAdmin reports whether the user holds an active role whose name is in
// AdminRoleNames. Deliberately name-based, not permission-based: an admin
// role stripped of every permission still passes.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	assignments, err := s.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if isAdminRoleName(a.RoleName) {
			return true, nil
		}
	}
	return false, nil
}

// GetPrimaryRole returns the name of the user's primary role, or ""
// when the user has no primary role among active assignments.
func (s *Service) GetPrimaryRole(ctx context.Context, userID int64) (string, error) {
	assignments, err := s.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, a := range assignments {
		if a.IsPrimary {
			return a.RoleName, nil
		}
	}
	return "", nil
}

func (s *Service) permissionSet(ctx context.Context, userID int64) (map[string]struct{}, error) {
	grants, err := s.repo.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		set[g.Key] = struct{}{}
	}
	return set, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ---------------------------------------------------------------------------
// Assignment service
// ---------------------------------------------------------------------------

// ReplaceUserRoles substitutes the user's entire role set in one
// transaction. The first ID in roleIDs becomes the primary role; an
// empty list leaves the user without roles. Duplicate IDs collapse onto
// their first occurrence.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64, actor string) error {
	ids := dedupeIDs(roleIDs)
	if len(ids) > 0 {
		missing, err := s.repo.MissingRoleIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: ids %v", ErrRoleNotFound, missing)
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteUserRoles(ctx, userID); err != nil {
			return err
		}
		for i, roleID := range ids {
			if err := tx.InsertUserRole(ctx, userID, roleID, i == 0, actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "roles.replace",
		Entity:   "user",
		EntityID: userID,
		Detail:   fmt.Sprintf("assigned %d role(s)", len(ids)),
	})
	return nil
}

// ReplaceRolePermissions substitutes the role's entire permission set in
// one transaction, recording the granting actor on every row.
func (s *Service) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, actor string) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids := dedupeIDs(permissionIDs)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteRolePermissions(ctx, roleID); err != nil {
			return err
		}
		for _, permissionID := range ids {
			if err := tx.InsertRolePermission(ctx, roleID, permissionID, actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "permissions.replace",
		Entity:   "role",
		EntityID: roleID,
		Detail:   fmt.Sprintf("granted %d permission(s)", len(ids)),
	})
	return nil
}

// ReplaceRoleFunctions substitutes the role's entire function set in one
// transaction.
func (s *Service) ReplaceRoleFunctions(ctx context.Context, roleID int64, functionIDs []int64, actor string) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids := dedupeIDs(functionIDs)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteRoleFunctions(ctx, roleID); err != nil {
			return err
		}
		for _, functionID := range ids {
			if err := tx.InsertRoleFunction(ctx, roleID, functionID, actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "functions.replace",
		Entity:   "role",
		EntityID: roleID,
		Detail:   fmt.Sprintf("granted %d function(s)", len(ids)),
	})
	return nil
}

// DeactivateRole soft-deletes a role. Fails with ErrRoleInUse while any
// user still holds the role; the count and the flip happen in the same
// transaction so a concurrent assignment cannot slip in between.
func (s *Service) DeactivateRole(ctx context.Context, roleID int64, actor string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		count, err := tx.CountRoleAssignments(ctx, roleID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d assignment(s)", ErrRoleInUse, count)
		}
		return tx.SetRoleActive(ctx, roleID, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "role.deactivate",
		Entity:   "role",
		EntityID: roleID,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Catalog administration
// ---------------------------------------------------------------------------

// ListRoles returns every role, active or not, ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new active role.
func (s *Service) CreateRole(ctx context.Context, name, description, actor string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidInput)
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, AuditEntry{Actor: actor, Action: "role.create", Entity: "role", EntityID: role.ID, Detail: name})
	return role, nil
}

// UpdateRole renames or redescribes an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description, actor string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidInput)
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, AuditEntry{Actor: actor, Action: "role.update", Entity: "role", EntityID: role.ID, Detail: name})
	return role, nil
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission registers a new capability key.
func (s *Service) CreatePermission(ctx context.Context, p Permission, actor string) (Permission, error) {
	p.Key = normalizeKey(p.Key)
	if !permissionKeyPattern.MatchString(p.Key) {
		return Permission{}, fmt.Errorf("%w: permission key %q must be of the form <module>.<action>", ErrInvalidInput, p.Key)
	}
	if p.Module == "" {
		p.Module = strings.SplitN(p.Key, ".", 2)[0]
	}
	created, err := s.repo.CreatePermission(ctx, p)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, AuditEntry{Actor: actor, Action: "permission.create", Entity: "permission", EntityID: created.ID, Detail: created.Key})
	return created, nil
}

// ListFunctions returns the full function catalog.
func (s *Service) ListFunctions(ctx context.Context) ([]Function, error) {
	return s.repo.ListFunctions(ctx)
}

// CreateFunction registers a new route grant.
func (s *Service) CreateFunction(ctx context.Context, f Function, actor string) (Function, error) {
	f.Key = normalizeKey(f.Key)
	if f.Key == "" {
		return Function{}, fmt.Errorf("%w: function key required", ErrInvalidInput)
	}
	created, err := s.repo.CreateFunction(ctx, f)
	if err != nil {
		return Function{}, err
	}
	s.record(ctx, AuditEntry{Actor: actor, Action: "function.create", Entity: "function", EntityID: created.ID, Detail: created.Key})
	return created, nil
}

func (s *Service) record(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, entry)
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
