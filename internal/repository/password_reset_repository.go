package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"

	"gorm.io/gorm"
)

var ErrPasswordResetNotFound = errors.New("password reset not found")

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	FindValidByHash(ctx context.Context, hash string) (*domain.PasswordReset, error)
	MarkConsumed(ctx context.Context, id uint) (bool, error)
	// ConsumeAndSetPassword consumes the challenge, stores the new password
	// hash on its owner and revokes every active session of the owner, all
	// in one transaction. ErrPasswordResetNotFound means another caller
	// consumed the challenge first or it expired.
	ConsumeAndSetPassword(ctx context.Context, resetID, userID uint, passwordHash, reason string) (int64, error)
}

type GormPasswordResetRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &GormPasswordResetRepository{db: db, now: time.Now}
}

func (r *GormPasswordResetRepository) Create(ctx context.Context, reset *domain.PasswordReset) error {
	err := r.db.WithContext(ctx).Create(reset).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "create", "success")
	return nil
}

func (r *GormPasswordResetRepository) FindValidByHash(ctx context.Context, hash string) (*domain.PasswordReset, error) {
	var pr domain.PasswordReset
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, r.now().UTC()).
		First(&pr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "password_reset", "find_valid_by_hash", "not_found")
			return nil, ErrPasswordResetNotFound
		}
		observability.RecordRepositoryOperation(ctx, "password_reset", "find_valid_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "find_valid_by_hash", "success")
	return &pr, nil
}

func (r *GormPasswordResetRepository) MarkConsumed(ctx context.Context, id uint) (bool, error) {
	ok, err := consumeResetTx(r.db.WithContext(ctx), id, r.now().UTC())
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "mark_consumed", "error")
		return false, err
	}
	if !ok {
		observability.RecordRepositoryOperation(ctx, "password_reset", "mark_consumed", "not_found")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "mark_consumed", "success")
	return true, nil
}

func (r *GormPasswordResetRepository) ConsumeAndSetPassword(ctx context.Context, resetID, userID uint, passwordHash, reason string) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()
		ok, err := consumeResetTx(tx, resetID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPasswordResetNotFound
		}
		if err := updatePasswordTx(tx, userID, passwordHash); err != nil {
			return err
		}
		n, err := revokeSessionsTx(tx, userID, reason, now)
		revoked = n
		return err
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "password_reset", "consume_and_set_password", outcomeFor(err, ErrPasswordResetNotFound))
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "password_reset", "consume_and_set_password", "success")
	return revoked, nil
}

func consumeResetTx(tx *gorm.DB, id uint, now time.Time) (bool, error) {
	res := tx.Model(&domain.PasswordReset{}).
		Where("id = ? AND used_at IS NULL AND expires_at > ?", id, now).
		Update("used_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
