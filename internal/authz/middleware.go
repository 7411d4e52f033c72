package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/carelink-hms/carelink/internal/observability"
	"github.com/carelink-hms/carelink/internal/platform/httpx"
	"github.com/carelink-hms/carelink/internal/shared"
)

// IdentityStore reports whether the authenticated subject's account is
// still ACTIVE. The login flow already rejects non-active accounts; the
// gate re-checks defensively so a mid-session suspension is honored on
// the next request.
type IdentityStore interface {
	IsActiveUser(ctx context.Context, userID int64) (bool, error)
}

// Middleware is the authorization gate. It holds no per-request state
// and caches nothing: every evaluation is a fresh query, so a grant
// revoked mid-session is honored on the very next request.
type Middleware struct {
	Service  *Service
	Identity IdentityStore
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// RequirePermission ensures the current user holds the given permission.
func (m Middleware) RequirePermission(key string) func(http.Handler) http.Handler {
	return m.require("permission", func(ctx context.Context, userID int64) (bool, error) {
		return m.Service.HasPermission(ctx, userID, key)
	})
}

// RequireAny ensures the current user has at least one of the required
// permissions. With no permissions configured the check is skipped.
func (m Middleware) RequireAny(keys ...string) func(http.Handler) http.Handler {
	normalized := normalizeKeys(keys)
	if len(normalized) == 0 {
		return passthrough
	}
	return m.require("permission", func(ctx context.Context, userID int64) (bool, error) {
		return m.Service.HasAnyPermission(ctx, userID, normalized)
	})
}

// RequireAll ensures the current user has every required permission.
// An empty requirement is vacuously satisfied.
func (m Middleware) RequireAll(keys ...string) func(http.Handler) http.Handler {
	normalized := normalizeKeys(keys)
	return m.require("permission", func(ctx context.Context, userID int64) (bool, error) {
		return m.Service.HasAllPermissions(ctx, userID, normalized)
	})
}

// RequireFunction ensures the current user may address the given
// function/route grant.
func (m Middleware) RequireFunction(key string) func(http.Handler) http.Handler {
	return m.require("function", func(ctx context.Context, userID int64) (bool, error) {
		return m.Service.HasFunction(ctx, userID, key)
	})
}

// RequireAdmin ensures the current user holds an administrative role.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.require("admin", func(ctx context.Context, userID int64) (bool, error) {
		return m.Service.IsAdmin(ctx, userID)
	})
}

// CurrentUserID extracts the authenticated user from the request session.
func CurrentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (m Middleware) require(kind string, check func(ctx context.Context, userID int64) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := CurrentUserID(r)
			if !ok {
				m.decision(observability.DecisionUnauthenticated)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if m.Identity != nil {
				active, err := m.Identity.IsActiveUser(r.Context(), userID)
				if err != nil {
					m.logError("authz identity lookup", err)
					m.decision(observability.DecisionError)
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
					return
				}
				if !active {
					m.decision(observability.DecisionDenied)
					m.deny(w)
					return
				}
			}
			granted, err := check(r.Context(), userID)
			if err != nil {
				m.logError("authz require "+kind, err)
				m.decision(observability.DecisionError)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !granted {
				m.decision(observability.DecisionDenied)
				m.deny(w)
				return
			}
			m.decision(observability.DecisionAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// deny responds 403 with a fixed detail: the missing capability key is
// never echoed back to the caller.
func (m Middleware) deny(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient privileges")
}

func (m Middleware) decision(outcome string) {
	if m.Metrics != nil {
		m.Metrics.AuthzDecision(outcome)
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func normalizeKeys(keys []string) []string {
	unique := make(map[string]struct{}, len(keys))
	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		key = normalizeKey(key)
		if key == "" {
			continue
		}
		if _, ok := unique[key]; ok {
			continue
		}
		unique[key] = struct{}{}
		normalized = append(normalized, key)
	}
	return normalized
}
