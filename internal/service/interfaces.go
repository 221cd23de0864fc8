package service

import (
	"context"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
)

type AuthServiceInterface interface {
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken, ip, ua string) (*LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uint) (int64, error)
}

type SessionServiceInterface interface {
	ListActiveSessions(ctx context.Context, userID uint) ([]SessionView, error)
	RevokeSession(ctx context.Context, userID, sessionID uint) error
	RevokeAllSessions(ctx context.Context, userID uint, reason string) (int64, error)
}

type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
}

type AccountServiceInterface interface {
	ChangePassword(ctx context.Context, userID uint, current, next string) error
	AdminResetPassword(ctx context.Context, userID uint) error
	Inactivate(ctx context.Context, userID uint) error
	Reactivate(ctx context.Context, userID uint) error
	SeedGod(ctx context.Context, email, password string) (*domain.User, bool, error)
}

type Authenticator interface {
	Authenticate(header string) (*Identity, error)
}

var (
	_ AuthServiceInterface          = (*AuthService)(nil)
	_ SessionServiceInterface       = (*SessionService)(nil)
	_ PasswordResetServiceInterface = (*PasswordResetService)(nil)
	_ AccountServiceInterface       = (*AccountService)(nil)
	_ Authenticator                 = (*RequestAuthenticator)(nil)
)
