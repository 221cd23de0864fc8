package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, userID uint, passwordHash string) error
	SetInactivated(ctx context.Context, userID uint, at *time.Time) error
	// UpdatePasswordAndRevokeSessions stores a new hash and revokes every
	// active session of the user in one transaction.
	UpdatePasswordAndRevokeSessions(ctx context.Context, userID uint, passwordHash, reason string) (int64, error)
	// InactivateAndRevokeSessions marks the user inactive and revokes every
	// active session in one transaction.
	InactivateAndRevokeSessions(ctx context.Context, userID uint, reason string) (int64, error)
}

type GormUserRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db, now: time.Now}
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = domain.NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, userID uint, passwordHash string) error {
	err := updatePasswordTx(r.db.WithContext(ctx), userID, passwordHash)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "update_password", outcomeFor(err, ErrUserNotFound))
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "update_password", "success")
	return nil
}

func (r *GormUserRepository) SetInactivated(ctx context.Context, userID uint, at *time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("inactivated_at", at)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", "set_inactivated", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", "set_inactivated", "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "set_inactivated", "success")
	return nil
}

func (r *GormUserRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, userID uint, passwordHash, reason string) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updatePasswordTx(tx, userID, passwordHash); err != nil {
			return err
		}
		n, err := revokeSessionsTx(tx, userID, reason, r.now().UTC())
		revoked = n
		return err
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "update_password_and_revoke_sessions", outcomeFor(err, ErrUserNotFound))
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "update_password_and_revoke_sessions", "success")
	return revoked, nil
}

func (r *GormUserRepository) InactivateAndRevokeSessions(ctx context.Context, userID uint, reason string) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()
		res := tx.Model(&domain.User{}).Where("id = ?", userID).Update("inactivated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		n, err := revokeSessionsTx(tx, userID, reason, now)
		revoked = n
		return err
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "inactivate_and_revoke_sessions", outcomeFor(err, ErrUserNotFound))
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "inactivate_and_revoke_sessions", "success")
	return revoked, nil
}

func updatePasswordTx(tx *gorm.DB, userID uint, passwordHash string) error {
	res := tx.Model(&domain.User{}).Where("id = ?", userID).Update("password_hash", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func outcomeFor(err, notFound error) string {
	if errors.Is(err, notFound) {
		return "not_found"
	}
	return "error"
}
