package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

var errStoreDown = errors.New("connection refused")

// memStore backs the in-memory repositories so transactional composites can
// touch users, sessions and resets under one lock.
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	users    map[uint]*domain.User
	sessions map[uint]*domain.Session
	resets   map[uint]*domain.PasswordReset
	fail     bool
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   1,
		users:    map[uint]*domain.User{},
		sessions: map[uint]*domain.Session{},
		resets:   map[uint]*domain.PasswordReset{},
	}
}

func (m *memStore) id() uint {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = v
}

func (m *memStore) revokeUserSessions(userID uint, reason string, now time.Time) int64 {
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive(now) {
			markRevoked(s, reason, now)
			n++
		}
	}
	return n
}

func markRevoked(s *domain.Session, reason string, now time.Time) {
	r := reason
	t := now
	s.Revoked = true
	s.RevokedAt = &t
	s.RevokedReason = &r
}

type memUserRepo struct{ m *memStore }

func (r memUserRepo) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return nil, errStoreDown
	}
	u, ok := r.m.users[id]
	if !ok || u.DeletedAt.Valid {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return nil, errStoreDown
	}
	email = domain.NormalizeEmail(email)
	for _, u := range r.m.users {
		if u.Email == email && !u.DeletedAt.Valid {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return errStoreDown
	}
	user.Email = domain.NormalizeEmail(user.Email)
	for _, u := range r.m.users {
		if u.Email == user.Email {
			return errors.New("unique constraint failed: users.email")
		}
	}
	user.ID = r.m.id()
	user.CreatedAt = time.Now().UTC()
	cp := *user
	r.m.users[user.ID] = &cp
	return nil
}

func (r memUserRepo) UpdatePassword(_ context.Context, userID uint, passwordHash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r memUserRepo) SetInactivated(_ context.Context, userID uint, at *time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.InactivatedAt = at
	return nil
}

func (r memUserRepo) UpdatePasswordAndRevokeSessions(_ context.Context, userID uint, passwordHash, reason string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return r.m.revokeUserSessions(userID, reason, time.Now()), nil
}

func (r memUserRepo) InactivateAndRevokeSessions(_ context.Context, userID uint, reason string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.InactivatedAt = &now
	return r.m.revokeUserSessions(userID, reason, now), nil
}

type memSessionRepo struct{ m *memStore }

func (r memSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return errStoreDown
	}
	r.insert(s)
	return nil
}

func (r memSessionRepo) insert(s *domain.Session) {
	s.ID = r.m.id()
	s.CreatedAt = time.Now().UTC()
	cp := *s
	r.m.sessions[s.ID] = &cp
}

func (r memSessionRepo) FindByHash(_ context.Context, hash string) (*domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return nil, errStoreDown
	}
	for _, s := range r.m.sessions {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r memSessionRepo) FindActiveByIDForUser(_ context.Context, userID, sessionID uint) (*domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[sessionID]
	if !ok || s.UserID != userID || !s.IsActive(time.Now()) {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSessionRepo) ListActiveByUserID(_ context.Context, userID uint) ([]domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return nil, errStoreDown
	}
	var out []domain.Session
	now := time.Now()
	for _, s := range r.m.sessions {
		if s.UserID == userID && s.IsActive(now) {
			out = append(out, *s)
		}
	}
	// ids grow with creation time
	slices.SortFunc(out, func(a, b domain.Session) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (r memSessionRepo) RotateSession(_ context.Context, oldHash string, newSession *domain.Session) (*domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := time.Now()
	for _, s := range r.m.sessions {
		if s.TokenHash != oldHash {
			continue
		}
		if !s.IsActive(now) {
			return nil, repository.ErrSessionNotFound
		}
		markRevoked(s, domain.RevokeReasonRotated, now)
		newSession.UserID = s.UserID
		newSession.FamilyID = s.FamilyID
		parent := s.TokenID
		newSession.ParentTokenID = &parent
		r.insert(newSession)
		cp := *s
		return &cp, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (r memSessionRepo) RevokeByHash(_ context.Context, hash, reason string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.sessions {
		if s.TokenHash == hash && !s.Revoked {
			markRevoked(s, reason, time.Now())
			return true, nil
		}
	}
	return false, nil
}

func (r memSessionRepo) RevokeByIDForUser(_ context.Context, userID, sessionID uint, reason string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[sessionID]
	if !ok || s.UserID != userID || s.Revoked {
		return false, nil
	}
	markRevoked(s, reason, time.Now())
	return true, nil
}

func (r memSessionRepo) RevokeByUserID(_ context.Context, userID uint, reason string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return 0, errStoreDown
	}
	return r.m.revokeUserSessions(userID, reason, time.Now()), nil
}

type memResetRepo struct{ m *memStore }

func (r memResetRepo) Create(_ context.Context, reset *domain.PasswordReset) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.fail {
		return errStoreDown
	}
	reset.ID = r.m.id()
	reset.CreatedAt = time.Now().UTC()
	cp := *reset
	r.m.resets[reset.ID] = &cp
	return nil
}

func (r memResetRepo) FindValidByHash(_ context.Context, hash string) (*domain.PasswordReset, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, pr := range r.m.resets {
		if pr.TokenHash == hash && pr.IsValid(time.Now()) {
			cp := *pr
			return &cp, nil
		}
	}
	return nil, repository.ErrPasswordResetNotFound
}

func (r memResetRepo) MarkConsumed(_ context.Context, id uint) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	pr, ok := r.m.resets[id]
	if !ok || !pr.IsValid(time.Now()) {
		return false, nil
	}
	now := time.Now().UTC()
	pr.UsedAt = &now
	return true, nil
}

func (r memResetRepo) ConsumeAndSetPassword(_ context.Context, resetID, userID uint, passwordHash, reason string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	pr, ok := r.m.resets[resetID]
	if !ok || !pr.IsValid(time.Now()) {
		return 0, repository.ErrPasswordResetNotFound
	}
	u, ok := r.m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	now := time.Now().UTC()
	pr.UsedAt = &now
	u.PasswordHash = passwordHash
	return r.m.revokeUserSessions(userID, reason, now), nil
}

type sentMessage struct {
	kind string
	to   string
	body string
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSink) SendResetLink(_ context.Context, to, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{kind: "reset_link", to: to, body: link})
	return s.err
}

func (s *recordingSink) SendResetSecretNotice(_ context.Context, to, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{kind: "reset_secret", to: to, body: secret})
	return s.err
}

func (s *recordingSink) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

const testPepper = "test-pepper-0123456789"

type testEnv struct {
	store     *memStore
	users     memUserRepo
	sessions  memSessionRepo
	resets    memResetRepo
	jwt       *security.JWTManager
	hasher    *security.PasswordHasher
	sink      *recordingSink
	auth      *AuthService
	tokens    *TokenService
	session   *SessionService
	reset     *PasswordResetService
	account   *AccountService
	authn     *RequestAuthenticator
	resetBase string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	env := &testEnv{
		store:     store,
		users:     memUserRepo{m: store},
		sessions:  memSessionRepo{m: store},
		resets:    memResetRepo{m: store},
		jwt:       security.NewJWTManager("test-issuer", "test-audience", strings.Repeat("a", 32), strings.Repeat("r", 32)),
		hasher:    security.NewPasswordHasher(4),
		sink:      &recordingSink{},
		resetBase: "https://app.example.com/reset-password",
	}
	policy := security.DefaultPasswordPolicy()
	env.tokens = NewTokenService(env.jwt, env.sessions, testPepper, 15*time.Minute, 7*24*time.Hour, nil)
	env.session = NewSessionService(env.sessions, time.Second)
	env.auth = NewAuthService(env.users, env.tokens, env.session, env.hasher, time.Second, nil)
	env.reset = NewPasswordResetService(env.users, env.resets, env.hasher, policy, env.sink, NewInMemoryCooldownStore(), PasswordResetOptions{
		TokenTTL:      time.Hour,
		Cooldown:      time.Minute,
		ResetURL:      env.resetBase,
		Pepper:        testPepper,
		StoreTimeout:  time.Second,
		NotifyTimeout: time.Second,
	}, nil)
	env.account = NewAccountService(env.users, env.hasher, policy, env.sink, time.Second, time.Second, nil)
	env.authn = NewRequestAuthenticator(env.jwt)
	return env
}

func (e *testEnv) waitDeliveries(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.reset.Wait(ctx); err != nil {
		t.Fatalf("reset deliveries did not finish: %v", err)
	}
}

func (e *testEnv) createUser(t *testing.T, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{Email: email, Name: "test", PasswordHash: hash, Role: role}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *testEnv) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), LoginInput{Email: email, Password: password, IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}
