package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

type AccountService struct {
	userRepo      repository.UserRepository
	hasher        *security.PasswordHasher
	policy        security.PasswordPolicy
	sink          NotificationSink
	storeTimeout  time.Duration
	notifyTimeout time.Duration
	logger        *slog.Logger
}

func NewAccountService(userRepo repository.UserRepository, hasher *security.PasswordHasher, policy security.PasswordPolicy, sink NotificationSink, storeTimeout, notifyTimeout time.Duration, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		userRepo:      userRepo,
		hasher:        hasher,
		policy:        policy,
		sink:          sink,
		storeTimeout:  storeTimeout,
		notifyTimeout: notifyTimeout,
		logger:        logger,
	}
}

func (s *AccountService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		observability.RecordAccountEvent(ctx, "change_password", "error")
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		observability.RecordAccountEvent(ctx, "change_password", "invalid_credentials")
		return ErrInvalidCredentials
	}
	if err := s.policy.Validate(next); err != nil {
		observability.RecordAccountEvent(ctx, "change_password", "weak_password")
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	revoked, err := s.userRepo.UpdatePasswordAndRevokeSessions(ctx, userID, hash, domain.RevokeReasonPasswordChange)
	if err != nil {
		observability.RecordAccountEvent(ctx, "change_password", "error")
		return mapUserError(err)
	}
	observability.RecordSessionRevocations(ctx, domain.RevokeReasonPasswordChange, revoked)
	observability.RecordAccountEvent(ctx, "change_password", "success")
	return nil
}

// AdminResetPassword replaces the password with a generated one and mails
// it to the principal. Delivery failures are logged, not returned.
func (s *AccountService) AdminResetPassword(ctx context.Context, userID uint) error {
	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.findUser(storeCtx, userID)
	if err != nil {
		observability.RecordAccountEvent(ctx, "admin_reset_password", "error")
		return err
	}
	secret, err := s.policy.GeneratePassword()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}
	revoked, err := s.userRepo.UpdatePasswordAndRevokeSessions(storeCtx, userID, hash, domain.RevokeReasonAdminReset)
	if err != nil {
		observability.RecordAccountEvent(ctx, "admin_reset_password", "error")
		return mapUserError(err)
	}
	observability.RecordSessionRevocations(ctx, domain.RevokeReasonAdminReset, revoked)

	notifyCtx, cancelNotify := withTimeout(ctx, s.notifyTimeout)
	defer cancelNotify()
	if err := s.sink.SendResetSecretNotice(notifyCtx, user.Email, secret); err != nil {
		s.logger.WarnContext(ctx, "reset secret delivery failed", "user_id", userID, "error", err)
		observability.RecordNotification(ctx, "reset_secret", "error")
	} else {
		observability.RecordNotification(ctx, "reset_secret", "success")
	}
	observability.RecordAccountEvent(ctx, "admin_reset_password", "success")
	return nil
}

func (s *AccountService) Inactivate(ctx context.Context, userID uint) error {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	revoked, err := s.userRepo.InactivateAndRevokeSessions(ctx, userID, domain.RevokeReasonInactivated)
	if err != nil {
		observability.RecordAccountEvent(ctx, "inactivate", "error")
		return mapUserError(err)
	}
	observability.RecordSessionRevocations(ctx, domain.RevokeReasonInactivated, revoked)
	observability.RecordAccountEvent(ctx, "inactivate", "success")
	return nil
}

func (s *AccountService) Reactivate(ctx context.Context, userID uint) error {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.userRepo.SetInactivated(ctx, userID, nil); err != nil {
		observability.RecordAccountEvent(ctx, "reactivate", "error")
		return mapUserError(err)
	}
	observability.RecordAccountEvent(ctx, "reactivate", "success")
	return nil
}

// SeedGod creates the god principal once. An existing account with the same
// email is returned unchanged.
func (s *AccountService) SeedGod(ctx context.Context, email, password string) (*domain.User, bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, false, ErrInvalidSeedInput
	}
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, storeError(err)
	}
	if err := s.policy.Validate(password); err != nil {
		return nil, false, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, err
	}
	user := &domain.User{
		Email:        email,
		Name:         "God",
		PasswordHash: hash,
		Role:         domain.RoleGod,
		Preferences:  map[string]any{},
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, storeError(err)
	}
	observability.RecordAccountEvent(ctx, "seed_god", "success")
	return user, true, nil
}

func (s *AccountService) findUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}
	return user, nil
}

func mapUserError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrPrincipalNotFound
	}
	return storeError(err)
}
