package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

const passwordResetCooldownNamespace = "password_reset"

type PasswordResetOptions struct {
	TokenTTL      time.Duration
	Cooldown      time.Duration
	ResetURL      string
	Pepper        string
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

type PasswordResetService struct {
	userRepo  repository.UserRepository
	resetRepo repository.PasswordResetRepository
	hasher    *security.PasswordHasher
	policy    security.PasswordPolicy
	sink      NotificationSink
	cooldown  CooldownStore
	opts      PasswordResetOptions
	logger    *slog.Logger
	now       func() time.Time

	deliveries sync.WaitGroup
}

func NewPasswordResetService(
	userRepo repository.UserRepository,
	resetRepo repository.PasswordResetRepository,
	hasher *security.PasswordHasher,
	policy security.PasswordPolicy,
	sink NotificationSink,
	cooldown CooldownStore,
	opts PasswordResetOptions,
	logger *slog.Logger,
) *PasswordResetService {
	if cooldown == nil {
		cooldown = NewNoopCooldownStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		userRepo:  userRepo,
		resetRepo: resetRepo,
		hasher:    hasher,
		policy:    policy,
		sink:      sink,
		cooldown:  cooldown,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestReset never reveals whether email belongs to a principal. Only
// store outages are returned.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		observability.RecordPasswordReset(ctx, "request", "ignored")
		return nil
	}

	acquired, err := s.cooldown.Acquire(ctx, passwordResetCooldownNamespace, email, s.opts.Cooldown)
	if err != nil {
		s.logger.WarnContext(ctx, "password reset cooldown unavailable", "error", err)
		acquired = true
	}
	if !acquired {
		observability.RecordPasswordReset(ctx, "request", "cooldown")
		return nil
	}

	storeCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	user, err := s.userRepo.FindByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordPasswordReset(ctx, "request", "ignored")
			return nil
		}
		s.releaseCooldown(ctx, email)
		observability.RecordPasswordReset(ctx, "request", "error")
		return storeError(err)
	}
	if !user.IsActive() {
		observability.RecordPasswordReset(ctx, "request", "ignored")
		return nil
	}

	token, err := security.NewOpaqueToken()
	if err != nil {
		s.releaseCooldown(ctx, email)
		observability.RecordPasswordReset(ctx, "request", "error")
		return err
	}
	if err := s.resetRepo.Create(storeCtx, &domain.PasswordReset{
		UserID:    user.ID,
		TokenHash: security.HashToken(token, s.opts.Pepper),
		ExpiresAt: s.now().UTC().Add(s.opts.TokenTTL),
	}); err != nil {
		s.releaseCooldown(ctx, email)
		observability.RecordPasswordReset(ctx, "request", "error")
		return storeError(err)
	}

	// Delivery runs detached so known and unknown emails answer in the same
	// time class.
	s.deliveries.Add(1)
	go s.deliverResetLink(context.WithoutCancel(ctx), user.ID, user.Email, buildResetLink(s.opts.ResetURL, token))
	observability.RecordPasswordReset(ctx, "request", "issued")
	return nil
}

func (s *PasswordResetService) deliverResetLink(ctx context.Context, userID uint, to, link string) {
	defer s.deliveries.Done()
	ctx, cancel := withTimeout(ctx, s.opts.NotifyTimeout)
	defer cancel()
	if err := s.sink.SendResetLink(ctx, to, link); err != nil {
		s.logger.WarnContext(ctx, "password reset delivery failed", "user_id", userID, "error", err)
		observability.RecordNotification(ctx, "reset_link", "error")
		return
	}
	observability.RecordNotification(ctx, "reset_link", "success")
}

// Wait blocks until in-flight reset deliveries finish or ctx is done.
func (s *PasswordResetService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfirmReset consumes the challenge behind token and replaces the
// principal's password. All active sessions are revoked with it.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		observability.RecordPasswordReset(ctx, "confirm", "invalid_token")
		return ErrInvalidOrExpiredToken
	}
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	reset, err := s.resetRepo.FindValidByHash(ctx, security.HashToken(token, s.opts.Pepper))
	if err != nil {
		if errors.Is(err, repository.ErrPasswordResetNotFound) {
			observability.RecordPasswordReset(ctx, "confirm", "invalid_token")
			return ErrInvalidOrExpiredToken
		}
		observability.RecordPasswordReset(ctx, "confirm", "error")
		return storeError(err)
	}
	if err := s.policy.Validate(newPassword); err != nil {
		observability.RecordPasswordReset(ctx, "confirm", "weak_password")
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		observability.RecordPasswordReset(ctx, "confirm", "error")
		return err
	}
	revoked, err := s.resetRepo.ConsumeAndSetPassword(ctx, reset.ID, reset.UserID, hash, domain.RevokeReasonPasswordReset)
	if err != nil {
		if errors.Is(err, repository.ErrPasswordResetNotFound) || errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordPasswordReset(ctx, "confirm", "invalid_token")
			return ErrInvalidOrExpiredToken
		}
		observability.RecordPasswordReset(ctx, "confirm", "error")
		return storeError(err)
	}
	observability.RecordSessionRevocations(ctx, domain.RevokeReasonPasswordReset, revoked)
	observability.RecordPasswordReset(ctx, "confirm", "success")
	s.logger.InfoContext(ctx, "password reset completed", "user_id", reset.UserID, "sessions_revoked", revoked)
	return nil
}

func (s *PasswordResetService) releaseCooldown(ctx context.Context, email string) {
	if err := s.cooldown.Release(ctx, passwordResetCooldownNamespace, email); err != nil {
		s.logger.WarnContext(ctx, "password reset cooldown release failed", "error", err)
	}
}

func buildResetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
