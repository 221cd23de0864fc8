package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByHash(ctx context.Context, hash string) (*domain.Session, error)
	FindActiveByIDForUser(ctx context.Context, userID, sessionID uint) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint) ([]domain.Session, error)
	RotateSession(ctx context.Context, oldHash string, newSession *domain.Session) (*domain.Session, error)
	RevokeByHash(ctx context.Context, hash, reason string) (bool, error)
	RevokeByIDForUser(ctx context.Context, userID, sessionID uint, reason string) (bool, error)
	RevokeByUserID(ctx context.Context, userID uint, reason string) (int64, error)
}

type GormSessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db, now: time.Now}
}

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByHash(ctx context.Context, hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindActiveByIDForUser(ctx context.Context, userID, sessionID uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ? AND revoked = ? AND expires_at > ?", userID, sessionID, false, r.now().UTC()).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_active_by_id_for_user", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_active_by_id_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_active_by_id_for_user", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, r.now().UTC()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// RotateSession revokes the active row for oldHash and inserts newSession in
// one transaction. The revoke is a conditional update, so of several
// concurrent callers presenting the same token exactly one sees a row
// affected; the others get ErrSessionNotFound and nothing is inserted.
func (r *GormSessionRepository) RotateSession(ctx context.Context, oldHash string, newSession *domain.Session) (*domain.Session, error) {
	var rotated *domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.Session
		if err := tx.Where("token_hash = ?", oldHash).First(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		now := r.now().UTC()
		reason := domain.RevokeReasonRotated
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND revoked = ? AND expires_at > ?", s.ID, false, now).
			Updates(map[string]any{"revoked": true, "revoked_at": now, "revoked_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrSessionNotFound
		}
		newSession.UserID = s.UserID
		newSession.FamilyID = s.FamilyID
		parent := s.TokenID
		newSession.ParentTokenID = &parent
		if err := tx.Create(newSession).Error; err != nil {
			return err
		}
		s.Revoked = true
		s.RevokedAt = &now
		s.RevokedReason = &reason
		rotated = &s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "rotate_session", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "session", "rotate_session", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "rotate_session", "success")
	return rotated, nil
}

func (r *GormSessionRepository) RevokeByHash(ctx context.Context, hash, reason string) (bool, error) {
	res := r.revoke(ctx).Where("token_hash = ? AND revoked = ?", hash, false).
		Updates(r.revocation(reason))
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_by_hash", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_by_hash", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) RevokeByIDForUser(ctx context.Context, userID, sessionID uint, reason string) (bool, error) {
	res := r.revoke(ctx).Where("user_id = ? AND id = ? AND revoked = ?", userID, sessionID, false).
		Updates(r.revocation(reason))
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_by_id_for_user", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_by_id_for_user", "not_found")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_by_id_for_user", "success")
	return true, nil
}

func (r *GormSessionRepository) RevokeByUserID(ctx context.Context, userID uint, reason string) (int64, error) {
	res := r.revoke(ctx).Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, r.now().UTC()).
		Updates(r.revocation(reason))
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_by_user_id", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_by_user_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) revoke(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.Session{})
}

func (r *GormSessionRepository) revocation(reason string) map[string]any {
	return map[string]any{"revoked": true, "revoked_at": r.now().UTC(), "revoked_reason": reason}
}

// revokeSessionsTx revokes every active session of userID inside an
// existing transaction.
func revokeSessionsTx(tx *gorm.DB, userID uint, reason string, now time.Time) (int64, error) {
	res := tx.Model(&domain.Session{}).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Updates(map[string]any{"revoked": true, "revoked_at": now, "revoked_reason": reason})
	return res.RowsAffected, res.Error
}
