package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/anurag-sv/bazaar-api/internal/common"
)

type rolesKey struct{}

// WithRoles stores the caller's roles on the context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey{}, roles)
}

// RolesFrom returns the caller's roles, if any.
func RolesFrom(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}

// Middleware authenticates requests with bearer tokens.
type Middleware struct {
	Tokens *TokenIssuer
}

// RequireAuth rejects requests without a valid bearer token and stores the
// subject and roles on the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		claims, err := m.Tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
			return
		}
		ctx := common.WithUserID(r.Context(), claims.Subject)
		ctx = WithRoles(ctx, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only callers carrying the given role. It must run
// after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, have := range RolesFrom(r.Context()) {
				if have == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		})
	}
}
