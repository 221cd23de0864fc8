package middleware

import (
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

func RequireRole(allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := service.RequireRole(r.Context(), allowed...); err != nil {
				observability.Audit(r, "authz.require_role", "denied", "path", r.URL.Path)
				response.ServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
