package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

// RoleLookup resolves the authoritative role of a subject. *UserRepo
// implements it.
type RoleLookup interface {
	RoleOf(ctx context.Context, sub string) (string, error)
}

// AttachRoleFromDB replaces the token's role claim with the role stored for
// the subject. Subjects without a user row keep their claim only when
// allowClaimFallback is set (dev logins).
func AttachRoleFromDB(users RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			role, err := users.RoleOf(ctx, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, ErrUserNotFound) && allowClaimFallback:
				next.ServeHTTP(w, r)
			default:
				if err != nil && !errors.Is(err, ErrUserNotFound) {
					hlog.FromRequest(r).Error().Err(err).Str("sub", sub).Msg("role lookup")
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
