package authz

// Core platform permissions guarding the engine's own admin surface.
const (
	PermUserRead   = "user.read"
	PermUserCreate = "user.create"
	PermUserAssign = "user.assign"

	PermRoleRead   = "role.read"
	PermRoleCreate = "role.create"
	PermRoleUpdate = "role.update"
	PermRoleDelete = "role.delete"
	PermRoleGrant  = "role.grant"

	PermPermissionRead   = "permission.read"
	PermPermissionCreate = "permission.create"

	PermFunctionRead   = "function.read"
	PermFunctionCreate = "function.create"
)

// CoreScopes lists the permissions guarding the engine's admin surface.
func CoreScopes() []string {
	return []string{
		PermUserRead,
		PermUserCreate,
		PermUserAssign,
		PermRoleRead,
		PermRoleCreate,
		PermRoleUpdate,
		PermRoleDelete,
		PermRoleGrant,
		PermPermissionRead,
		PermPermissionCreate,
		PermFunctionRead,
		PermFunctionCreate,
	}
}

// HospitalModules enumerates the clinical and administrative modules whose
// permission keys share the "<module>.<action>" namespace.
func HospitalModules() []string {
	return []string{
		"patient",
		"appointment",
		"pharmacy",
		"icu",
		"billing",
		"roster",
		"report",
		"user",
		"role",
		"permission",
		"function",
	}
}
