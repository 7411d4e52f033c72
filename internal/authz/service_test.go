package authz

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type userRoleRow struct {
	roleID     int64
	isPrimary  bool
	assignedBy string
}

type mockRepository struct {
	roles       map[int64]*Role
	permissions map[int64]*Permission
	functions   map[int64]*Function

	userRoles       map[int64][]userRoleRow
	rolePermissions map[int64][]int64
	roleFunctions   map[int64][]int64

	nextRoleID       int64
	nextPermissionID int64
	nextFunctionID   int64

	// Error injection
	txError        error
	listRolesError error
	listPermsError error
	insertError    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:            make(map[int64]*Role),
		permissions:      make(map[int64]*Permission),
		functions:        make(map[int64]*Function),
		userRoles:        make(map[int64][]userRoleRow),
		rolePermissions:  make(map[int64][]int64),
		roleFunctions:    make(map[int64][]int64),
		nextRoleID:       1,
		nextPermissionID: 1,
		nextFunctionID:   1,
	}
}

func (m *mockRepository) addRole(name string, active bool) int64 {
	id := m.nextRoleID
	m.nextRoleID++
	m.roles[id] = &Role{ID: id, Name: name, IsActive: active, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	return id
}

func (m *mockRepository) addPermission(key, module, category string, active bool) int64 {
	id := m.nextPermissionID
	m.nextPermissionID++
	m.permissions[id] = &Permission{ID: id, Key: key, Name: key, Module: module, Category: category, IsActive: active, CreatedAt: time.Now()}
	return id
}

func (m *mockRepository) addFunction(key, module, route string, active bool) int64 {
	id := m.nextFunctionID
	m.nextFunctionID++
	m.functions[id] = &Function{ID: id, Key: key, Name: key, Module: module, Route: route, IsActive: active, CreatedAt: time.Now()}
	return id
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) ListUserRoles(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	if m.listRolesError != nil {
		return nil, m.listRolesError
	}
	var out []RoleAssignment
	for _, row := range m.userRoles[userID] {
		role, ok := m.roles[row.roleID]
		if !ok || !role.IsActive {
			continue
		}
		out = append(out, RoleAssignment{RoleID: role.ID, RoleName: role.Name, Description: role.Description, IsPrimary: row.isPrimary})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].RoleName < out[j].RoleName
	})
	return out, nil
}

func (m *mockRepository) ListUserPermissions(ctx context.Context, userID int64) ([]PermissionGrant, error) {
	if m.listPermsError != nil {
		return nil, m.listPermsError
	}
	seen := make(map[string]struct{})
	var out []PermissionGrant
	for _, row := range m.userRoles[userID] {
		role, ok := m.roles[row.roleID]
		if !ok || !role.IsActive {
			continue
		}
		for _, pid := range m.rolePermissions[row.roleID] {
			p, ok := m.permissions[pid]
			if !ok || !p.IsActive {
				continue
			}
			if _, dup := seen[p.Key]; dup {
				continue
			}
			seen[p.Key] = struct{}{}
			out = append(out, PermissionGrant{Key: p.Key, Name: p.Name, Module: p.Module, Category: p.Category})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *mockRepository) ListUserFunctions(ctx context.Context, userID int64) ([]FunctionGrant, error) {
	seen := make(map[string]struct{})
	var out []FunctionGrant
	for _, row := range m.userRoles[userID] {
		role, ok := m.roles[row.roleID]
		if !ok || !role.IsActive {
			continue
		}
		for _, fid := range m.roleFunctions[row.roleID] {
			f, ok := m.functions[fid]
			if !ok || !f.IsActive {
				continue
			}
			if _, dup := seen[f.Key]; dup {
				continue
			}
			seen[f.Key] = struct{}{}
			out = append(out, FunctionGrant{Key: f.Key, Name: f.Name, Module: f.Module, Route: f.Route})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return *r, nil
}

func (m *mockRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return Role{}, ErrDuplicateKey
		}
	}
	id := m.addRole(name, true)
	m.roles[id].Description = description
	return *m.roles[id], nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	r.Name = name
	r.Description = description
	return *r, nil
}

func (m *mockRepository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	r, ok := m.roles[id]
	if !ok {
		return ErrRoleNotFound
	}
	r.IsActive = active
	return nil
}

func (m *mockRepository) CountRoleAssignments(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	for _, rows := range m.userRoles {
		for _, row := range rows {
			if row.roleID == roleID {
				count++
			}
		}
	}
	return count, nil
}

func (m *mockRepository) MissingRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		r, ok := m.roles[id]
		if !ok || !r.IsActive {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *mockRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockRepository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	for _, existing := range m.permissions {
		if existing.Key == p.Key {
			return Permission{}, ErrDuplicateKey
		}
	}
	id := m.addPermission(p.Key, p.Module, p.Category, true)
	m.permissions[id].Name = p.Name
	return *m.permissions[id], nil
}

func (m *mockRepository) ListFunctions(ctx context.Context) ([]Function, error) {
	var out []Function
	for _, f := range m.functions {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockRepository) CreateFunction(ctx context.Context, f Function) (Function, error) {
	for _, existing := range m.functions {
		if existing.Key == f.Key {
			return Function{}, ErrDuplicateKey
		}
	}
	id := m.addFunction(f.Key, f.Module, f.Route, true)
	m.functions[id].Name = f.Name
	return *m.functions[id], nil
}

func (m *mockRepository) DeleteUserRoles(ctx context.Context, userID int64) error {
	delete(m.userRoles, userID)
	return nil
}

func (m *mockRepository) InsertUserRole(ctx context.Context, userID, roleID int64, isPrimary bool, assignedBy string) error {
	if m.insertError != nil {
		return m.insertError
	}
	if _, ok := m.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	m.userRoles[userID] = append(m.userRoles[userID], userRoleRow{roleID: roleID, isPrimary: isPrimary, assignedBy: assignedBy})
	return nil
}

func (m *mockRepository) DeleteRolePermissions(ctx context.Context, roleID int64) error {
	delete(m.rolePermissions, roleID)
	return nil
}

func (m *mockRepository) InsertRolePermission(ctx context.Context, roleID, permissionID int64, grantedBy string) error {
	if m.insertError != nil {
		return m.insertError
	}
	if _, ok := m.permissions[permissionID]; !ok {
		return ErrPermissionNotFound
	}
	m.rolePermissions[roleID] = append(m.rolePermissions[roleID], permissionID)
	return nil
}

func (m *mockRepository) DeleteRoleFunctions(ctx context.Context, roleID int64) error {
	delete(m.roleFunctions, roleID)
	return nil
}

func (m *mockRepository) InsertRoleFunction(ctx context.Context, roleID, functionID int64, grantedBy string) error {
	if m.insertError != nil {
		return m.insertError
	}
	if _, ok := m.functions[functionID]; !ok {
		return ErrFunctionNotFound
	}
	m.roleFunctions[roleID] = append(m.roleFunctions[roleID], functionID)
	return nil
}

type recordedAudit struct {
	entries []AuditEntry
}

func (r *recordedAudit) Record(ctx context.Context, entry AuditEntry) {
	r.entries = append(r.entries, entry)
}

// seedHospital builds the fixture used across resolution tests: an
// administrator with a primary Hospital Admin role plus a secondary
// Doctor role, and a plain Doctor user.
func seedHospital(m *mockRepository) (adminUser, doctorUser, adminRole, doctorRole int64) {
	adminRole = m.addRole("Hospital Admin", true)
	doctorRole = m.addRole("Doctor", true)

	userRead := m.addPermission("user.read", "user", "read", true)
	userCreate := m.addPermission("user.create", "user", "create", true)
	patientRead := m.addPermission("patient.read", "patient", "read", true)

	m.rolePermissions[adminRole] = []int64{userRead, userCreate, patientRead}
	m.rolePermissions[doctorRole] = []int64{patientRead}

	registry := m.addFunction("patient.registry", "patient", "/patients", true)
	m.roleFunctions[doctorRole] = []int64{registry}

	adminUser, doctorUser = 100, 200
	m.userRoles[adminUser] = []userRoleRow{
		{roleID: adminRole, isPrimary: true},
		{roleID: doctorRole},
	}
	m.userRoles[doctorUser] = []userRoleRow{{roleID: doctorRole, isPrimary: true}}
	return adminUser, doctorUser, adminRole, doctorRole
}

// ============================================================================
// RESOLUTION
// ============================================================================

func TestGetUserRolesOrdering(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)

	roles, err := svc.GetUserRoles(context.Background(), adminUser)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Hospital Admin", roles[0].RoleName)
	assert.True(t, roles[0].IsPrimary)
	assert.Equal(t, "Doctor", roles[1].RoleName)
	assert.False(t, roles[1].IsPrimary)
}

func TestGetUserPermissionsUnionDeduplicates(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)

	// patient.read is granted through both roles but must appear once.
	perms, err := svc.GetUserPermissions(context.Background(), adminUser)
	require.NoError(t, err)
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"patient.read", "user.create", "user.read"}, keys)
}

func TestGetUserPermissionsUnknownUser(t *testing.T) {
	repo := newMockRepository()
	seedHospital(repo)
	svc := NewService(repo, nil)

	perms, err := svc.GetUserPermissions(context.Background(), 9999)
	require.NoError(t, err)
	assert.Empty(t, perms)

	roles, err := svc.GetUserRoles(context.Background(), 9999)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestHasPermission(t *testing.T) {
	repo := newMockRepository()
	adminUser, doctorUser, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, adminUser, "user.create")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, doctorUser, "user.create")
	require.NoError(t, err)
	assert.False(t, ok)

	// Keys are case-insensitive and whitespace-tolerant.
	ok, err = svc.HasPermission(ctx, adminUser, "  USER.READ ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasAnyPermission(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	ok, err := svc.HasAnyPermission(ctx, doctorUser, []string{"user.create", "patient.read"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAnyPermission(ctx, doctorUser, []string{"user.create", "user.read"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasAnyPermission(ctx, doctorUser, nil)
	require.NoError(t, err)
	assert.False(t, ok, "empty any-of list grants nothing")
}

func TestHasAllPermissions(t *testing.T) {
	repo := newMockRepository()
	adminUser, doctorUser, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	ok, err := svc.HasAllPermissions(ctx, adminUser, []string{"user.read", "user.create"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAllPermissions(ctx, doctorUser, []string{"patient.read", "user.read"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasAllPermissions(ctx, doctorUser, nil)
	require.NoError(t, err)
	assert.True(t, ok, "empty all-of list is vacuously satisfied")
}

func TestHasFunction(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	ok, err := svc.HasFunction(ctx, doctorUser, "patient.registry")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasFunction(ctx, doctorUser, "billing.invoices")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAdminByRoleName(t *testing.T) {
	repo := newMockRepository()
	adminUser, doctorUser, adminRole, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	ok, err := svc.IsAdmin(ctx, adminUser)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin(ctx, doctorUser)
	require.NoError(t, err)
	assert.False(t, ok)

	// Admin check is name-based: stripping every permission changes nothing.
	repo.rolePermissions[adminRole] = nil
	ok, err = svc.IsAdmin(ctx, adminUser)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeactivatedRoleDropsOutOfResolution(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, adminRole, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	repo.roles[adminRole].IsActive = false

	roles, err := svc.GetUserRoles(ctx, adminUser)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Doctor", roles[0].RoleName)

	ok, err := svc.HasPermission(ctx, adminUser, "user.create")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsAdmin(ctx, adminUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeactivatedPermissionDropsOutOfResolution(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, p := range repo.permissions {
		if p.Key == "user.create" {
			p.IsActive = false
		}
	}

	ok, err := svc.HasPermission(ctx, adminUser, "user.create")
	require.NoError(t, err)
	assert.False(t, ok)

	// Flipping it back restores the grant without any reassignment.
	for _, p := range repo.permissions {
		if p.Key == "user.create" {
			p.IsActive = true
		}
	}
	ok, err = svc.HasPermission(ctx, adminUser, "user.create")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetPrimaryRole(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	name, err := svc.GetPrimaryRole(ctx, adminUser)
	require.NoError(t, err)
	assert.Equal(t, "Hospital Admin", name)

	// A user whose only assignment is non-primary has no primary role.
	repo.userRoles[300] = []userRoleRow{{roleID: doctorRole}}
	name, err = svc.GetPrimaryRole(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestResolutionPropagatesStoreErrors(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	storeErr := errors.New("connection reset")
	repo.listPermsError = storeErr

	_, err := svc.HasPermission(ctx, adminUser, "user.read")
	assert.ErrorIs(t, err, storeErr)

	_, err = svc.HasAllPermissions(ctx, adminUser, []string{"user.read"})
	assert.ErrorIs(t, err, storeErr)

	repo.listRolesError = storeErr
	_, err = svc.IsAdmin(ctx, adminUser)
	assert.ErrorIs(t, err, storeErr)
}

// ============================================================================
// ASSIGNMENT
// ============================================================================

func TestReplaceUserRoles(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, adminRole, doctorRole := seedHospital(repo)
	recorder := &recordedAudit{}
	svc := NewService(repo, recorder)
	ctx := context.Background()

	err := svc.ReplaceUserRoles(ctx, doctorUser, []int64{adminRole, doctorRole}, "tester")
	require.NoError(t, err)

	roles, err := svc.GetUserRoles(ctx, doctorUser)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Hospital Admin", roles[0].RoleName)
	assert.True(t, roles[0].IsPrimary, "first listed role becomes primary")
	assert.False(t, roles[1].IsPrimary)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "roles.replace", recorder.entries[0].Action)
	assert.Equal(t, doctorUser, recorder.entries[0].EntityID)
}

func TestReplaceUserRolesShrinksSet(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	// [admin, doctor] replaced by [doctor] must leave exactly one row.
	err := svc.ReplaceUserRoles(ctx, adminUser, []int64{doctorRole}, "tester")
	require.NoError(t, err)

	roles, err := svc.GetUserRoles(ctx, adminUser)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Doctor", roles[0].RoleName)
	assert.True(t, roles[0].IsPrimary)
}

func TestReplaceUserRolesEmptyClearsAll(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, _ := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := svc.ReplaceUserRoles(ctx, adminUser, nil, "tester")
	require.NoError(t, err)

	roles, err := svc.GetUserRoles(ctx, adminUser)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestReplaceUserRolesDeduplicates(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, adminRole, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := svc.ReplaceUserRoles(ctx, doctorUser, []int64{doctorRole, adminRole, doctorRole}, "tester")
	require.NoError(t, err)

	roles, err := svc.GetUserRoles(ctx, doctorUser)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Doctor", roles[0].RoleName)
	assert.True(t, roles[0].IsPrimary, "primary follows first occurrence")
}

func TestReplaceUserRolesIdempotent(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, _, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.ReplaceUserRoles(ctx, doctorUser, []int64{doctorRole}, "tester"))
	require.NoError(t, svc.ReplaceUserRoles(ctx, doctorUser, []int64{doctorRole}, "tester"))

	roles, err := svc.GetUserRoles(ctx, doctorUser)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.True(t, roles[0].IsPrimary)
}

func TestReplaceUserRolesRejectsUnknownRole(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, adminRole, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := svc.ReplaceUserRoles(ctx, adminUser, []int64{doctorRole, 777}, "tester")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	// Nothing changed: the validation fails before the replace runs.
	roles, listErr := svc.GetUserRoles(ctx, adminUser)
	require.NoError(t, listErr)
	require.Len(t, roles, 2)
	assert.Equal(t, adminRole, roles[0].RoleID)
}

func TestReplaceUserRolesRejectsInactiveRole(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, _, _ := seedHospital(repo)
	ghostRole := repo.addRole("Retired", false)
	svc := NewService(repo, nil)

	err := svc.ReplaceUserRoles(context.Background(), doctorUser, []int64{ghostRole}, "tester")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestReplaceUserRolesTxFailure(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, _, doctorRole := seedHospital(repo)
	recorder := &recordedAudit{}
	svc := NewService(repo, recorder)

	repo.txError = errors.New("deadlock detected")
	err := svc.ReplaceUserRoles(context.Background(), doctorUser, []int64{doctorRole}, "tester")
	assert.ErrorContains(t, err, "deadlock")
	assert.Empty(t, recorder.entries, "failed replace must not be audited")
}

func TestReplaceRolePermissions(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, adminRole, _ := seedHospital(repo)
	recorder := &recordedAudit{}
	svc := NewService(repo, recorder)
	ctx := context.Background()

	roster := repo.addPermission("roster.manage", "roster", "manage", true)
	err := svc.ReplaceRolePermissions(ctx, adminRole, []int64{roster}, "tester")
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, adminUser, "roster.manage")
	require.NoError(t, err)
	assert.True(t, ok)

	// The old grants are gone.
	ok, err = svc.HasPermission(ctx, adminUser, "user.read")
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "permissions.replace", recorder.entries[0].Action)
}

func TestReplaceRolePermissionsUnknownRole(t *testing.T) {
	repo := newMockRepository()
	seedHospital(repo)
	svc := NewService(repo, nil)

	err := svc.ReplaceRolePermissions(context.Background(), 777, []int64{1}, "tester")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestReplaceRoleFunctions(t *testing.T) {
	repo := newMockRepository()
	_, doctorUser, _, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	icu := repo.addFunction("icu.dashboard", "icu", "/icu", true)
	err := svc.ReplaceRoleFunctions(ctx, doctorRole, []int64{icu}, "tester")
	require.NoError(t, err)

	ok, err := svc.HasFunction(ctx, doctorUser, "icu.dashboard")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasFunction(ctx, doctorUser, "patient.registry")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeactivateRoleGuardedWhileInUse(t *testing.T) {
	repo := newMockRepository()
	adminUser, _, _, doctorRole := seedHospital(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := svc.DeactivateRole(ctx, doctorRole, "tester")
	assert.ErrorIs(t, err, ErrRoleInUse)
	assert.True(t, repo.roles[doctorRole].IsActive, "guarded role stays active")

	// Release every assignment and retry.
	require.NoError(t, svc.ReplaceUserRoles(ctx, adminUser, nil, "tester"))
	require.NoError(t, svc.ReplaceUserRoles(ctx, 200, nil, "tester"))

	err = svc.DeactivateRole(ctx, doctorRole, "tester")
	require.NoError(t, err)
	assert.False(t, repo.roles[doctorRole].IsActive)
}

func TestDeactivateRoleUnknown(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	err := svc.DeactivateRole(context.Background(), 404, "tester")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

// ============================================================================
// CATALOG
// ============================================================================

func TestCreateRoleValidation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "  ", "blank", "tester")
	assert.ErrorIs(t, err, ErrInvalidInput)

	role, err := svc.CreateRole(ctx, " Radiologist ", "imaging staff", "tester")
	require.NoError(t, err)
	assert.Equal(t, "Radiologist", role.Name)

	_, err = svc.CreateRole(ctx, "Radiologist", "again", "tester")
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestCreatePermissionValidation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, Permission{Key: "not a key"}, "tester")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreatePermission(ctx, Permission{Key: "patientread"}, "tester")
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := svc.CreatePermission(ctx, Permission{Key: " Pharmacy.Dispense ", Name: "Dispense"}, "tester")
	require.NoError(t, err)
	assert.Equal(t, "pharmacy.dispense", p.Key)
	assert.Equal(t, "pharmacy", p.Module, "module defaults to the key prefix")
}

func TestCreateFunctionValidation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateFunction(ctx, Function{Key: ""}, "tester")
	assert.ErrorIs(t, err, ErrInvalidInput)

	f, err := svc.CreateFunction(ctx, Function{Key: "ICU.Dashboard", Module: "icu", Route: "/icu"}, "tester")
	require.NoError(t, err)
	assert.Equal(t, "icu.dashboard", f.Key)
}
