package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink-hms/carelink/internal/platform/db"
)

// Repository defines persistence operations for the access model. The
// resolution queries are read-only; the Delete/Insert pairs are only ever
// called together inside WithTx by the service's replace operations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListUserRoles(ctx context.Context, userID int64) ([]RoleAssignment, error)
	ListUserPermissions(ctx context.Context, userID int64) ([]PermissionGrant, error)
	ListUserFunctions(ctx context.Context, userID int64) ([]FunctionGrant, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	SetRoleActive(ctx context.Context, id int64, active bool) error
	CountRoleAssignments(ctx context.Context, roleID int64) (int64, error)
	MissingRoleIDs(ctx context.Context, ids []int64) ([]int64, error)

	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	ListFunctions(ctx context.Context) ([]Function, error)
	CreateFunction(ctx context.Context, f Function) (Function, error)

	DeleteUserRoles(ctx context.Context, userID int64) error
	InsertUserRole(ctx context.Context, userID, roleID int64, isPrimary bool, assignedBy string) error
	DeleteRolePermissions(ctx context.Context, roleID int64) error
	InsertRolePermission(ctx context.Context, roleID, permissionID int64, grantedBy string) error
	DeleteRoleFunctions(ctx context.Context, roleID int64) error
	InsertRoleFunction(ctx context.Context, roleID, functionID int64, grantedBy string) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) ListUserRoles(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.name, r.description, ur.is_primary
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.is_active
		ORDER BY ur.is_primary DESC, r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.RoleID, &a.RoleName, &a.Description, &a.IsPrimary); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *repository) ListUserPermissions(ctx context.Context, userID int64) ([]PermissionGrant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT p.key, p.name, p.module, p.category
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.is_active
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id AND p.is_active
		WHERE ur.user_id = $1
		ORDER BY p.module, p.category, p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		if err := rows.Scan(&g.Key, &g.Name, &g.Module, &g.Category); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *repository) ListUserFunctions(ctx context.Context, userID int64) ([]FunctionGrant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT f.key, f.name, f.module, f.route
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.is_active
		JOIN role_functions rf ON rf.role_id = ur.role_id
		JOIN functions f ON f.id = rf.function_id AND f.is_active
		WHERE ur.user_id = $1
		ORDER BY f.module, f.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []FunctionGrant
	for rows.Next() {
		var g FunctionGrant
		if err := rows.Scan(&g.Key, &g.Name, &g.Module, &g.Route); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM roles
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func (r *repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id, name, description, is_active, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return role, nil
}

func (r *repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, is_active, created_at, updated_at`, id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, mapPgError(err)
	}
	return role, nil
}

func (r *repository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE roles SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *repository) CountRoleAssignments(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) MissingRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT wanted.id
		FROM unnest($1::bigint[]) AS wanted(id)
		LEFT JOIN roles r ON r.id = wanted.id AND r.is_active
		WHERE r.id IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (r *repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, key, name, module, category, is_active, created_at
		FROM permissions
		ORDER BY module, category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.Module, &p.Category, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO permissions (key, name, module, category, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, is_active, created_at`, p.Key, p.Name, p.Module, p.Category).
		Scan(&p.ID, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return Permission{}, mapPgError(err)
	}
	return p, nil
}

func (r *repository) ListFunctions(ctx context.Context) ([]Function, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, key, name, module, route, is_active, created_at
		FROM functions
		ORDER BY module, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var funcs []Function
	for rows.Next() {
		var f Function
		if err := rows.Scan(&f.ID, &f.Key, &f.Name, &f.Module, &f.Route, &f.IsActive, &f.CreatedAt); err != nil {
			return nil, err
		}
		funcs = append(funcs, f)
	}
	return funcs, rows.Err()
}

func (r *repository) CreateFunction(ctx context.Context, f Function) (Function, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO functions (key, name, module, route, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, is_active, created_at`, f.Key, f.Name, f.Module, f.Route).
		Scan(&f.ID, &f.IsActive, &f.CreatedAt)
	if err != nil {
		return Function{}, mapPgError(err)
	}
	return f, nil
}

func (r *repository) DeleteUserRoles(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	return err
}

func (r *repository) InsertUserRole(ctx context.Context, userID, roleID int64, isPrimary bool, assignedBy string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, is_primary, assigned_by)
		VALUES ($1, $2, $3, $4)`, userID, roleID, isPrimary, assignedBy)
	return mapPgError(err)
}

func (r *repository) DeleteRolePermissions(ctx context.Context, roleID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return err
}

func (r *repository) InsertRolePermission(ctx context.Context, roleID, permissionID int64, grantedBy string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_by)
		VALUES ($1, $2, $3)`, roleID, permissionID, grantedBy)
	return mapPgError(err)
}

func (r *repository) DeleteRoleFunctions(ctx context.Context, roleID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM role_functions WHERE role_id = $1`, roleID)
	return err
}

func (r *repository) InsertRoleFunction(ctx context.Context, roleID, functionID int64, grantedBy string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_functions (role_id, function_id, granted_by)
		VALUES ($1, $2, $3)`, roleID, functionID, grantedBy)
	return mapPgError(err)
}

// mapPgError translates constraint violations into domain sentinels.
// Constraint names match migrations/0001_core.sql.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.ConstraintName {
	case "uq_roles_name", "uq_permissions_key", "uq_functions_key":
		return ErrDuplicateKey
	case "fk_user_roles_user":
		return ErrUserNotFound
	case "fk_user_roles_role":
		return ErrRoleNotFound
	case "fk_role_permissions_permission":
		return ErrPermissionNotFound
	case "fk_role_permissions_role", "fk_role_functions_role":
		return ErrRoleNotFound
	case "fk_role_functions_function":
		return ErrFunctionNotFound
	}
	return err
}
