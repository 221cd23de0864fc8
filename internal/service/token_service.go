package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

// TokenPair is what a client receives after login or renewal. TokenID is the
// jti shared by the access token and the session row.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	TokenID          string
}

type UserFetcher func(ctx context.Context, id uint) (*domain.User, error)

type TokenService struct {
	jwtMgr      *security.JWTManager
	sessionRepo repository.SessionRepository
	pepper      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, sessionRepo repository.SessionRepository, pepper string, accessTTL, refreshTTL time.Duration, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		jwtMgr:      jwtMgr,
		sessionRepo: sessionRepo,
		pepper:      pepper,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// Issue mints a token pair for user and persists a new session lineage. No
// token is returned unless the session row was written.
func (s *TokenService) Issue(ctx context.Context, user *domain.User, ua, ip string) (*TokenPair, error) {
	pair, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(ctx, &domain.Session{
		UserID:    user.ID,
		TokenHash: security.HashToken(pair.RefreshToken, s.pepper),
		TokenID:   pair.TokenID,
		FamilyID:  pair.TokenID,
		UserAgent: ua,
		IP:        ip,
		ExpiresAt: pair.RefreshExpiresAt.UTC(),
	}); err != nil {
		return nil, storeError(err)
	}
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. Every rejection that
// depends on the presented token is reported as ErrInvalidToken.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string, fetchUser UserFetcher, ua, ip string) (*TokenPair, *domain.User, error) {
	if refreshToken == "" {
		return nil, nil, ErrMissingToken
	}
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	hash := security.HashToken(refreshToken, s.pepper)
	session, err := s.sessionRepo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, storeError(err)
	}
	userID, err := parseSubject(claims.Subject)
	if err != nil || session.UserID != userID || session.TokenID != claims.ID {
		return nil, nil, ErrInvalidToken
	}
	if session.Revoked {
		if session.RevokedReason != nil && *session.RevokedReason == domain.RevokeReasonRotated {
			s.logger.WarnContext(ctx, "refresh token reuse detected",
				"user_id", session.UserID,
				"session_id", session.ID,
				"family_id", session.FamilyID,
			)
			observability.RecordAuthRefresh(ctx, "reuse_detected")
		}
		return nil, nil, ErrInvalidToken
	}
	if !session.IsActive(s.now()) {
		return nil, nil, ErrInvalidToken
	}

	user, err := fetchUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrPrincipalNotFound
		}
		return nil, nil, storeError(err)
	}
	if !user.IsActive() {
		return nil, nil, ErrInvalidToken
	}

	pair, err := s.mintTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	_, err = s.sessionRepo.RotateSession(ctx, hash, &domain.Session{
		UserID:    user.ID,
		TokenHash: security.HashToken(pair.RefreshToken, s.pepper),
		TokenID:   pair.TokenID,
		FamilyID:  session.FamilyID,
		UserAgent: ua,
		IP:        ip,
		ExpiresAt: pair.RefreshExpiresAt.UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, storeError(err)
	}
	return pair, user, nil
}

// Revoke flags the session bound to refreshToken. An unknown token is not an
// error.
func (s *TokenService) Revoke(ctx context.Context, refreshToken, reason string) (bool, error) {
	if refreshToken == "" {
		return false, nil
	}
	changed, err := s.sessionRepo.RevokeByHash(ctx, security.HashToken(refreshToken, s.pepper), reason)
	if err != nil {
		return false, storeError(err)
	}
	return changed, nil
}

func (s *TokenService) mintTokenPair(user *domain.User) (*TokenPair, error) {
	refresh, refreshClaims, err := s.jwtMgr.SignRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	access, err := s.jwtMgr.SignAccessTokenWithJTI(user.ID, string(user.Role), s.accessTTL, refreshClaims.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  refreshClaims.IssuedAt.Add(s.accessTTL),
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		TokenID:          refreshClaims.ID,
	}, nil
}

func parseSubject(subject string) (uint, error) {
	if subject == "" {
		return 0, strconv.ErrSyntax
	}
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, strconv.ErrRange
	}
	return uint(id), nil
}
