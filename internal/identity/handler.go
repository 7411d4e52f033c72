package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carelink-hms/carelink/internal/authz"
	"github.com/carelink-hms/carelink/internal/platform/httpx"
	"github.com/carelink-hms/carelink/internal/shared"
)

// Handler serves account listing and the "who am I" profile endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
	access  *authz.Service
	gate    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, access *authz.Service, gate authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, access: access, gate: gate}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequirePermission(authz.PermUserRead))
		r.Get("/", h.listUsers)
	})
	// Self-or-admin: viewing a single account needs no permission grant
	// when the caller is the account owner.
	r.Get("/{userID}", h.getUser)
}

// MountProfileRoutes registers the current-user profile route.
func (h *Handler) MountProfileRoutes(r chi.Router) {
	r.Get("/", h.profile)
}

type userResponse struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type profileResponse struct {
	User        userResponse             `json:"user"`
	PrimaryRole string                   `json:"primary_role"`
	IsAdmin     bool                     `json:"is_admin"`
	Roles       []authz.RoleAssignment   `json:"roles"`
	Permissions []authz.PermissionGrant  `json:"permissions"`
	Functions   []authz.FunctionGrant    `json:"functions"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// getUser allows the account owner or an administrator; this composition
// lives in the handler, the gate only answers capability questions.
func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := authz.CurrentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	if callerID != id {
		admin, err := h.access.IsAdmin(r.Context(), callerID)
		if err != nil {
			h.logger.Error("admin check", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if !admin {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient privileges")
			return
		}
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
			return
		}
		h.logger.Error("get user", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

// profile renders the caller's account together with the full resolved
// capability set; consumed by the shell UI to decide what to show.
func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	callerID, ok := authz.CurrentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	user, err := h.service.GetUser(r.Context(), callerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		h.logger.Error("load profile", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	ctx := r.Context()
	roles, err := h.access.GetUserRoles(ctx, callerID)
	if err != nil {
		h.logger.Error("resolve roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	perms, err := h.access.GetUserPermissions(ctx, callerID)
	if err != nil {
		h.logger.Error("resolve permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	funcs, err := h.access.GetUserFunctions(ctx, callerID)
	if err != nil {
		h.logger.Error("resolve functions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	resp := profileResponse{
		User:        toUserResponse(user),
		Roles:       roles,
		Permissions: perms,
		Functions:   funcs,
	}
	for _, a := range roles {
		if a.IsPrimary {
			resp.PrimaryRole = a.RoleName
		}
		for _, admin := range authz.AdminRoleNames {
			if a.RoleName == admin {
				resp.IsAdmin = true
			}
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func toUserResponse(u User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Status: u.Status}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
