package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carelink-hms/carelink/internal/platform/httpx"
	"github.com/carelink-hms/carelink/internal/shared"
)

// Handler wires the role-management and assignment endpoints consumed by
// the administration screens.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate Middleware) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, validator: validator.New()}
}

// MountRoleRoutes registers role catalog and grant routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermRoleRead))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermRoleCreate))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermRoleUpdate))
		r.Put("/{roleID}", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermRoleDelete))
		r.Delete("/{roleID}", h.deactivateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermRoleGrant))
		r.Put("/{roleID}/permissions", h.replaceRolePermissions)
		r.Put("/{roleID}/functions", h.replaceRoleFunctions)
	})
}

// MountPermissionRoutes registers the permission catalog routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermPermissionRead))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermPermissionCreate))
		r.Post("/", h.createPermission)
	})
}

// MountFunctionRoutes registers the function catalog routes.
func (h *Handler) MountFunctionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermFunctionRead))
		r.Get("/", h.listFunctions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermFunctionCreate))
		r.Post("/", h.createFunction)
	})
}

// MountUserAccessRoutes registers per-user capability routes; mounted
// under the /users subtree.
func (h *Handler) MountUserAccessRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermUserRead))
		r.Get("/{userID}/roles", h.getUserRoles)
		r.Get("/{userID}/permissions", h.getUserPermissions)
		r.Get("/{userID}/functions", h.getUserFunctions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(PermUserAssign))
		r.Put("/{userID}/roles", h.replaceUserRoles)
	})
}

type roleResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type idListRequest struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

type roleAssignmentResponse struct {
	RoleID      int64  `json:"role_id"`
	RoleName    string `json:"role_name"`
	Description string `json:"description"`
	IsPrimary   bool   `json:"is_primary"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, actorFrom(r))
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description, actorFrom(r))
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.service.DeactivateRole(r.Context(), id, actorFrom(r)); err != nil {
		h.respondError(w, "deactivate role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req idListRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ReplaceRolePermissions(r.Context(), id, req.IDs, actorFrom(r)); err != nil {
		h.respondError(w, "replace role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replaceRoleFunctions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req idListRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ReplaceRoleFunctions(r.Context(), id, req.IDs, actorFrom(r)); err != nil {
		h.respondError(w, "replace role functions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type permissionRequest struct {
	Key      string `json:"key" validate:"required,max=100"`
	Name     string `json:"name" validate:"required,max=200"`
	Module   string `json:"module" validate:"max=50"`
	Category string `json:"category" validate:"max=50"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreatePermission(r.Context(), Permission{
		Key:      req.Key,
		Name:     req.Name,
		Module:   req.Module,
		Category: req.Category,
	}, actorFrom(r))
	if err != nil {
		h.respondError(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listFunctions(w http.ResponseWriter, r *http.Request) {
	funcs, err := h.service.ListFunctions(r.Context())
	if err != nil {
		h.respondError(w, "list functions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, funcs)
}

type functionRequest struct {
	Key    string `json:"key" validate:"required,max=100"`
	Name   string `json:"name" validate:"required,max=200"`
	Module string `json:"module" validate:"max=50"`
	Route  string `json:"route" validate:"required,max=200"`
}

func (h *Handler) createFunction(w http.ResponseWriter, r *http.Request) {
	var req functionRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateFunction(r.Context(), Function{
		Key:    req.Key,
		Name:   req.Name,
		Module: req.Module,
		Route:  req.Route,
	}, actorFrom(r))
	if err != nil {
		h.respondError(w, "create function", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type replaceUserRolesRequest struct {
	// Ordered: the first role becomes the user's primary role.
	RoleIDs []int64 `json:"role_ids" validate:"dive,gt=0"`
}

func (h *Handler) replaceUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req replaceUserRolesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ReplaceUserRoles(r.Context(), id, req.RoleIDs, actorFrom(r)); err != nil {
		h.respondError(w, "replace user roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	assignments, err := h.service.GetUserRoles(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user roles", err)
		return
	}
	out := make([]roleAssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, roleAssignmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	grants, err := h.service.GetUserPermissions(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) getUserFunctions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	grants, err := h.service.GetUserFunctions(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user functions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPermissionNotFound), errors.Is(err, ErrFunctionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrDuplicateKey):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
	}
}

func pathID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func actorFrom(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}
