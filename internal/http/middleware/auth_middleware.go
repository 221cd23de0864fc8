package middleware

import (
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

// AuthMiddleware resolves the bearer access token into an identity on the
// request context. Token validation is stateless.
func AuthMiddleware(authn service.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authn.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				response.ServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(service.WithIdentity(r.Context(), id)))
		})
	}
}
