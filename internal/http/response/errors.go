package response

import (
	"errors"
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/service"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Order matters: ErrTransientStore is checked first because store errors
// wrap the underlying cause alongside it.
var serviceErrors = []errorMapping{
	{service.ErrTransientStore, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "service temporarily unavailable"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"},
	{service.ErrMissingToken, http.StatusBadRequest, "MISSING_TOKEN", "token is required"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token"},
	{service.ErrMalformedHeader, http.StatusUnauthorized, "UNAUTHORIZED", "malformed authorization header"},
	{service.ErrMalformedToken, http.StatusUnauthorized, "UNAUTHORIZED", "malformed access token"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing access token"},
	{service.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "insufficient role"},
	{service.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found"},
	{service.ErrPrincipalNotFound, http.StatusNotFound, "USER_NOT_FOUND", "user not found"},
	{service.ErrInvalidOrExpiredToken, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", "reset token is invalid or expired"},
	{service.ErrWeakSecret, http.StatusUnprocessableEntity, "WEAK_PASSWORD", "password does not meet policy"},
	{service.ErrInvalidSeedInput, http.StatusBadRequest, "BAD_REQUEST", "email and password are required"},
}

// ServiceError writes the envelope for an error returned by the service
// layer. Unknown errors become 500 without leaking their text.
func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *service.WeakPasswordError
	if errors.As(err, &weak) && !errors.Is(err, service.ErrTransientStore) {
		Error(w, r, http.StatusUnprocessableEntity, "WEAK_PASSWORD", weak.Message, map[string]string{"rule": weak.Rule})
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			Error(w, r, m.status, m.code, m.message, nil)
			return
		}
	}
	Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
