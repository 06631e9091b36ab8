package middleware

import (
	"net/http"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

// RequireAdmin rejects callers without the admin role. It must run after
// AuthMiddleware; the checkout service re-checks the role on every admin operation.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			switch {
			case user == nil:
				RespondWithDomainError(w, logger, domain.ErrUnauthenticated)
			case !user.IsAdmin():
				logger.Warn("Admin route denied",
					zap.String("user_id", user.ID.String()),
					zap.String("path", r.URL.Path),
				)
				RespondWithDomainError(w, logger, domain.ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
