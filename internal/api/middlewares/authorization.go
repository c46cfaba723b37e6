package middlewares

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/talx-hub/credit-ledger/internal/model/member"
)

// RequireRoles gates a route group to the given dashboard roles. Must run
// after Authentication.
func RequireRoles(log *slog.Logger, roles ...member.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		gateFunc := func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}
			if !slices.Contains(roles, claims.Role) {
				log.LogAttrs(r.Context(),
					slog.LevelWarn,
					"role not allowed",
					slog.String("user_id", claims.UserID),
					slog.String("role", string(claims.Role)),
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(gateFunc)
	}
}
