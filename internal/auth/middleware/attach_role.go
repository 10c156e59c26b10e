package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/mindengage-exams/internal/httpx"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

// RoleLookup returns the current role of a user id.
type RoleLookup interface {
	Role(ctx context.Context, userID string) (string, error)
}

// AttachRoleFromDB replaces the token's role with the stored one, so role
// changes apply without waiting for tokens to expire. Tokens for users that
// are not in the store keep their claim only when allowClaimFallback is set.
func AttachRoleFromDB(lookup RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role, err := lookup.Role(ctx, SubjectFromContext(ctx))
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, users.ErrUserNotFound) && allowClaimFallback:
				next.ServeHTTP(w, r)
			case errors.Is(err, users.ErrUserNotFound):
				httpx.Fail(w, http.StatusForbidden, "unknown user")
			default:
				hlog.FromRequest(r).Error().Err(err).Msg("role lookup")
				httpx.Fail(w, http.StatusInternalServerError, "internal server error")
			}
		})
	}
}
