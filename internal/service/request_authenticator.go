package service

import (
	"context"
	"slices"
	"strings"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID  uint
	Role    domain.Role
	TokenID string
}

type identityContextKey struct{}

type RequestAuthenticator struct {
	jwtMgr *security.JWTManager
}

func NewRequestAuthenticator(jwtMgr *security.JWTManager) *RequestAuthenticator {
	return &RequestAuthenticator{jwtMgr: jwtMgr}
}

// Authenticate validates an Authorization header value of the form
// "Bearer <access token>". It performs no store lookups.
func (a *RequestAuthenticator) Authenticate(header string) (*Identity, error) {
	ctx := context.Background()
	if header == "" {
		observability.RecordAccessTokenValidation(ctx, "missing", "header")
		return nil, ErrUnauthorized
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		observability.RecordAccessTokenValidation(ctx, "malformed_header", "header")
		return nil, ErrMalformedHeader
	}
	claims, err := a.jwtMgr.ParseAccessToken(token)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid", "header")
		return nil, ErrUnauthorized
	}
	userID, err := parseSubject(claims.Subject)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "malformed_token", "header")
		return nil, ErrMalformedToken
	}
	observability.RecordAccessTokenValidation(ctx, "success", "header")
	return &Identity{UserID: userID, Role: domain.Role(claims.Role), TokenID: claims.ID}, nil
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}

// RequireRole succeeds when the identity in ctx holds one of allowed.
func RequireRole(ctx context.Context, allowed ...domain.Role) error {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if !slices.Contains(allowed, id.Role) {
		return ErrForbidden
	}
	return nil
}
