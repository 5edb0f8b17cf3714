package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/service"
)

// RoleLookup loads the role a user principal references.
type RoleLookup interface {
	Get(ctx context.Context, id string) (*model.Role, error)
}

// RequireType admits principals whose type is one of types. It must be used
// after an authentication middleware.
func RequireType(types ...model.PrincipalType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, MsgAuthRequired)
				return
			}
			if !slices.Contains(types, p.Type) {
				writeError(w, http.StatusForbidden, MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits principals whose role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, MsgAuthRequired)
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeError(w, http.StatusForbidden, MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits principals whose role grants every one of perms.
// API-key principals bypass the check. A missing, unreadable or inactive
// role is forbidden.
func RequirePermission(lookup RoleLookup, logger *slog.Logger, perms ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, MsgAuthRequired)
				return
			}
			if p.IsAPI() {
				next.ServeHTTP(w, r)
				return
			}
			if p.RoleID == "" {
				writeError(w, http.StatusForbidden, MsgForbidden)
				return
			}

			role, err := lookup.Get(r.Context(), p.RoleID)
			if err != nil {
				if !service.IsKind(err, service.KindNotFound) {
					logger.Warn("role lookup failed", "role_id", p.RoleID, "error", err)
				}
				writeError(w, http.StatusForbidden, MsgForbidden)
				return
			}
			if !role.IsActive || !role.Permissions.HasAll(perms...) {
				writeError(w, http.StatusForbidden, MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
