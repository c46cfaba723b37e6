package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/utils/auth"
)

// Authentication verifies the IdP token and puts its claims into the request
// context. Token comes as a cookie or an Authorization: Bearer header.
func Authentication(secret []byte, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authFunc := func(w http.ResponseWriter, r *http.Request) {
			tokenStr := tokenFromRequest(r)
			if tokenStr == "" {
				log.LogAttrs(r.Context(),
					slog.LevelError,
					"failed to find token in request",
				)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			claims, err := auth.CheckToken(tokenStr, secret)
			if err != nil {
				log.LogAttrs(r.Context(),
					slog.LevelError,
					"authentication failed",
					slog.Any(model.KeyLoggerError, err),
				)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			initial := r.Context()
			claimsCtx := context.WithValue(
				initial, model.KeyContextClaims, claims)

			rWithClaims := r.WithContext(claimsCtx)
			next.ServeHTTP(w, rWithClaims)
		}
		return http.HandlerFunc(authFunc)
	}
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		return cookie.Value
	}

	const bearerPrefix = "Bearer "
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}
	return ""
}

// ClaimsFromContext returns the authenticated IdP triple, if any.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(model.KeyContextClaims).(auth.Claims)
	return claims, ok
}
