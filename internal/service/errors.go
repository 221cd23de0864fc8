package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/security"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrMissingToken          = errors.New("missing token")
	ErrInvalidToken          = errors.New("invalid token")
	ErrPrincipalNotFound     = errors.New("principal not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrTransientStore        = errors.New("store temporarily unavailable")

	ErrUnauthorized     = errors.New("unauthorized")
	ErrMalformedHeader  = errors.New("malformed authorization header")
	ErrMalformedToken   = errors.New("malformed token")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrWeakSecret       = security.ErrWeakPassword
	ErrInvalidSeedInput = errors.New("seed email and password are required")
)

// WeakPasswordError names the violated rule and matches ErrWeakSecret.
type WeakPasswordError = security.PolicyError

// storeError marks infrastructure failures so callers can map them to a
// retryable response. Deadline and driver errors are never retried here.
func storeError(err error) error {
	if err == nil || errors.Is(err, ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
