package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type UserView struct {
	ID          uint           `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Role        domain.Role    `json:"role"`
	Preferences map[string]any `json:"preferences,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func NewUserView(u *domain.User) UserView {
	return UserView{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
	}
}

type LoginResult struct {
	User             UserView  `json:"user"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type AuthService struct {
	userRepo     repository.UserRepository
	tokenSvc     *TokenService
	sessionSvc   *SessionService
	hasher       *security.PasswordHasher
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewAuthService(userRepo repository.UserRepository, tokenSvc *TokenService, sessionSvc *SessionService, hasher *security.PasswordHasher, storeTimeout time.Duration, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo:     userRepo,
		tokenSvc:     tokenSvc,
		sessionSvc:   sessionSvc,
		hasher:       hasher,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin(ctx, "error")
			return nil, storeError(err)
		}
		s.hasher.DummyVerify(in.Password)
		observability.RecordAuthLogin(ctx, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) || !user.IsActive() {
		observability.RecordAuthLogin(ctx, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokenSvc.Issue(ctx, user, in.UserAgent, in.IP)
	if err != nil {
		observability.RecordAuthLogin(ctx, "error")
		return nil, err
	}
	observability.RecordAuthLogin(ctx, "success")
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID)
	return newLoginResult(user, pair), nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, ua string) (*LoginResult, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	pair, user, err := s.tokenSvc.Rotate(ctx, refreshToken, s.userRepo.FindByID, ua, ip)
	if err != nil {
		observability.RecordAuthRefresh(ctx, refreshStatus(err))
		return nil, err
	}
	observability.RecordAuthRefresh(ctx, "success")
	return newLoginResult(user, pair), nil
}

// Logout revokes the session behind refreshToken. Empty or unknown tokens
// succeed without effect.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	changed, err := s.tokenSvc.Revoke(ctx, refreshToken, domain.RevokeReasonLogout)
	if err != nil {
		observability.RecordAuthLogout(ctx, "single", "error")
		return err
	}
	if changed {
		observability.RecordSessionRevocations(ctx, domain.RevokeReasonLogout, 1)
	}
	observability.RecordAuthLogout(ctx, "single", "success")
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID uint) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	n, err := s.sessionSvc.RevokeAllSessions(ctx, userID, domain.RevokeReasonLogoutAll)
	if err != nil {
		observability.RecordAuthLogout(ctx, "all", "error")
		return 0, err
	}
	observability.RecordAuthLogout(ctx, "all", "success")
	return n, nil
}

func newLoginResult(user *domain.User, pair *TokenPair) *LoginResult {
	return &LoginResult{
		User:             NewUserView(user),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func refreshStatus(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrPrincipalNotFound):
		return "principal_not_found"
	default:
		return "error"
	}
}
