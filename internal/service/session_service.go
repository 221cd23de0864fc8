package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
)

// SessionView is the client-facing projection of a session. It never
// carries the token or its digest.
type SessionView struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
}

type SessionService struct {
	sessionRepo  repository.SessionRepository
	storeTimeout time.Duration
}

func NewSessionService(sessionRepo repository.SessionRepository, storeTimeout time.Duration) *SessionService {
	return &SessionService{sessionRepo: sessionRepo, storeTimeout: storeTimeout}
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID uint) ([]SessionView, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	sessions, err := s.sessionRepo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			UserAgent: session.UserAgent,
			IP:        session.IP,
		})
	}
	return views, nil
}

// RevokeSession only touches sessions that are in the caller's active set.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID uint) error {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	reason := domain.RevokeReasonUserRevoked
	if _, err := s.sessionRepo.FindActiveByIDForUser(ctx, userID, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return storeError(err)
	}
	changed, err := s.sessionRepo.RevokeByIDForUser(ctx, userID, sessionID, reason)
	if err != nil {
		return storeError(err)
	}
	if !changed {
		return ErrSessionNotFound
	}
	observability.RecordSessionRevocations(ctx, reason, 1)
	return nil
}

func (s *SessionService) RevokeAllSessions(ctx context.Context, userID uint, reason string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	n, err := s.sessionRepo.RevokeByUserID(ctx, userID, reason)
	if err != nil {
		return 0, storeError(err)
	}
	observability.RecordSessionRevocations(ctx, reason, n)
	return n, nil
}
