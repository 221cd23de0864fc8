package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/health"
	"github.com/sandeepkv93/credential-session-core/internal/http/handler"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

const testPepper = "router-test-pepper-0123456789"

type unhealthyChecker struct{}

func (unhealthyChecker) Check(ctx context.Context) health.CheckResult {
	return health.CheckResult{Name: "db", Healthy: false, Error: "db down"}
}

type captureSink struct {
	mu    sync.Mutex
	links map[string]string
}

func (s *captureSink) SendResetLink(_ context.Context, to, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links == nil {
		s.links = map[string]string{}
	}
	s.links[to] = link
	return nil
}

func (s *captureSink) SendResetSecretNotice(context.Context, string, string) error { return nil }

func (s *captureSink) tokenFor(t *testing.T, email string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[email]
	if !ok {
		t.Fatalf("no reset link sent to %s", email)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	jwt     *security.JWTManager
	hasher  *security.PasswordHasher
	sink    *captureSink
	resets  *service.PasswordResetService
}

func newTestServer(t *testing.T, mutate func(*Dependencies)) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repository.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	resets := repository.NewPasswordResetRepository(db)
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456", "abcdefghijklmnopqrstuvwxyz654321")
	hasher := security.NewPasswordHasher(4)
	policy := security.DefaultPasswordPolicy()
	sink := &captureSink{}

	tokenSvc := service.NewTokenService(jwtMgr, sessions, testPepper, 15*time.Minute, 24*time.Hour, nil)
	sessionSvc := service.NewSessionService(sessions, 2*time.Second)
	authSvc := service.NewAuthService(users, tokenSvc, sessionSvc, hasher, 2*time.Second, nil)
	resetSvc := service.NewPasswordResetService(users, resets, hasher, policy, sink, service.NewNoopCooldownStore(), service.PasswordResetOptions{
		TokenTTL:      time.Hour,
		Cooldown:      time.Minute,
		ResetURL:      "https://app.example.com/reset-password",
		Pepper:        testPepper,
		StoreTimeout:  2 * time.Second,
		NotifyTimeout: time.Second,
	}, nil)
	accountSvc := service.NewAccountService(users, hasher, policy, sink, 2*time.Second, time.Second, nil)

	dep := Dependencies{
		AuthHandler:               handler.NewAuthHandler(authSvc),
		PasswordResetHandler:      handler.NewPasswordResetHandler(resetSvc),
		MeHandler:                 handler.NewMeHandler(sessionSvc, accountSvc),
		AdminHandler:              handler.NewAdminHandler(accountSvc),
		Authenticator:             service.NewRequestAuthenticator(jwtMgr),
		AuthRateLimitRPM:          1000,
		PasswordResetRateLimitRPM: 1000,
		APIRateLimitRPM:           1000,
	}
	if mutate != nil {
		mutate(&dep)
	}
	return &testServer{handler: NewRouter(dep), db: db, jwt: jwtMgr, hasher: hasher, sink: sink, resets: resetSvc}
}

func (s *testServer) resetLinkToken(t *testing.T, email string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.resets.Wait(ctx); err != nil {
		t.Fatalf("reset delivery did not finish: %v", err)
	}
	return s.sink.tokenFor(t, email)
}

func (s *testServer) createUser(t *testing.T, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := s.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: email, Name: "test", PasswordHash: hash, Role: role}
	if err := repository.NewUserRepository(s.db).Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func perform(h http.Handler, method, target, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	req.Header.Set("User-Agent", "router-test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, rr.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *testServer) login(t *testing.T, email, password string) tokens {
	t.Helper()
	rr := perform(s.handler, http.MethodPost, "/api/v1/auth/login", "", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var tk tokens
	decode(t, rr, &tk)
	return tk
}

func TestRouterHealthReadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		s := newTestServer(t, nil)
		rr := perform(s.handler, http.MethodGet, "/health/ready", "", "")
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		s := newTestServer(t, func(d *Dependencies) {
			d.Readiness = health.NewProbeRunner(time.Second, 0, unhealthyChecker{})
		})
		rr := perform(s.handler, http.MethodGet, "/health/ready", "", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"code":"DEPENDENCY_UNREADY"`) {
			t.Fatalf("expected DEPENDENCY_UNREADY error envelope, got %s", rr.Body.String())
		}
	})

	t.Run("live", func(t *testing.T) {
		s := newTestServer(t, nil)
		rr := perform(s.handler, http.MethodGet, "/health/live", "", "")
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
			t.Fatalf("expected live ok, got %d %s", rr.Code, rr.Body.String())
		}
	})
}

func TestRouterLoginRefreshReuseFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser(t, "alice@example.com", "correct-horse!", domain.RoleUser)

	rr := perform(s.handler, http.MethodPost, "/api/v1/auth/login", "", `{"email":"alice@example.com","password":"wrong-horse!"}`)
	if rr.Code != http.StatusUnauthorized || decode(t, rr, nil).Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %d %s", rr.Code, rr.Body.String())
	}

	first := s.login(t, "  Alice@Example.com ", "correct-horse!")

	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, first.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var second tokens
	decode(t, rr, &second)
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}

	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, first.RefreshToken))
	if rr.Code != http.StatusUnauthorized || decode(t, rr, nil).Error.Code != "INVALID_TOKEN" {
		t.Fatalf("reuse: expected INVALID_TOKEN, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":""}`)
	if rr.Code != http.StatusBadRequest || decode(t, rr, nil).Error.Code != "MISSING_TOKEN" {
		t.Fatalf("empty: expected MISSING_TOKEN, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/logout", "", fmt.Sprintf(`{"refresh_token":%q}`, second.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}
	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, second.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rr.Code)
	}
}

func TestRouterSessionsListAndRevoke(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser(t, "bob@example.com", "correct-horse!", domain.RoleUser)
	s.createUser(t, "eve@example.com", "correct-horse!", domain.RoleUser)

	a := s.login(t, "bob@example.com", "correct-horse!")
	b := s.login(t, "bob@example.com", "correct-horse!")
	eve := s.login(t, "eve@example.com", "correct-horse!")

	rr := perform(s.handler, http.MethodGet, "/api/v1/me/sessions", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = perform(s.handler, http.MethodGet, "/api/v1/me/sessions", a.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var listed struct {
		Sessions []service.SessionView `json:"sessions"`
	}
	decode(t, rr, &listed)
	if len(listed.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(listed.Sessions))
	}
	if listed.Sessions[0].UserAgent != "router-test" || listed.Sessions[0].IP != "10.10.10.10" {
		t.Fatalf("unexpected session metadata %+v", listed.Sessions[0])
	}

	target := listed.Sessions[0].ID
	rr = perform(s.handler, http.MethodDelete, fmt.Sprintf("/api/v1/me/sessions/%d", target), eve.AccessToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign revoke: expected 404, got %d", rr.Code)
	}
	rr = perform(s.handler, http.MethodDelete, fmt.Sprintf("/api/v1/me/sessions/%d", target), a.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(s.handler, http.MethodDelete, fmt.Sprintf("/api/v1/me/sessions/%d", target), a.AccessToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second revoke: expected 404, got %d", rr.Code)
	}
	rr = perform(s.handler, http.MethodDelete, "/api/v1/me/sessions/abc", a.AccessToken, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rr.Code)
	}

	rr = perform(s.handler, http.MethodDelete, "/api/v1/me/sessions", a.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke all: expected 200, got %d", rr.Code)
	}
	var revoked struct {
		Revoked int64 `json:"revoked"`
	}
	decode(t, rr, &revoked)
	if revoked.Revoked != 1 {
		t.Fatalf("expected 1 remaining session revoked, got %d", revoked.Revoked)
	}
	for _, tk := range []tokens{a, b} {
		rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, tk.RefreshToken))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("refresh after revoke all: expected 401, got %d", rr.Code)
		}
	}
	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, eve.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("other user's session must survive, got %d", rr.Code)
	}
}

func TestRouterPasswordResetResponsesAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser(t, "carol@example.com", "correct-horse!", domain.RoleUser)

	known := perform(s.handler, http.MethodPost, "/api/v1/password-reset/request", "", `{"email":"carol@example.com"}`)
	unknown := perform(s.handler, http.MethodPost, "/api/v1/password-reset/request", "", `{"email":"nobody@example.com"}`)

	if known.Code != http.StatusAccepted || unknown.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for both, got %d and %d", known.Code, unknown.Code)
	}
	var knownData, unknownData map[string]string
	decode(t, known, &knownData)
	decode(t, unknown, &unknownData)
	if knownData["message"] == "" || knownData["message"] != unknownData["message"] {
		t.Fatalf("expected identical bodies, got %v and %v", knownData, unknownData)
	}

	token := s.resetLinkToken(t, "carol@example.com")

	rr := perform(s.handler, http.MethodPost, "/api/v1/password-reset/confirm", "", fmt.Sprintf(`{"token":%q,"new_password":"short1"}`, token))
	if rr.Code != http.StatusUnprocessableEntity || decode(t, rr, nil).Error.Details["rule"] != security.RuleMinLength {
		t.Fatalf("weak: expected 422 with rule, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(s.handler, http.MethodPost, "/api/v1/password-reset/confirm", "", fmt.Sprintf(`{"token":%q,"new_password":"brand-new-pass!"}`, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(s.handler, http.MethodPost, "/api/v1/password-reset/confirm", "", fmt.Sprintf(`{"token":%q,"new_password":"another-pass!"}`, token))
	if rr.Code != http.StatusBadRequest || decode(t, rr, nil).Error.Code != "INVALID_OR_EXPIRED_TOKEN" {
		t.Fatalf("reuse: expected INVALID_OR_EXPIRED_TOKEN, got %d %s", rr.Code, rr.Body.String())
	}

	s.login(t, "carol@example.com", "brand-new-pass!")
}

func TestRouterChangePassword(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser(t, "dave@example.com", "correct-horse!", domain.RoleUser)
	tk := s.login(t, "dave@example.com", "correct-horse!")

	rr := perform(s.handler, http.MethodPatch, "/api/v1/me/password", tk.AccessToken, `{"current_password":"nope","new_password":"brand-new-pass!"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current: expected 401, got %d", rr.Code)
	}
	rr = perform(s.handler, http.MethodPatch, "/api/v1/me/password", tk.AccessToken, `{"current_password":"correct-horse!","new_password":"brand-new-pass!"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("change: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, tk.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("sessions must be revoked after password change, got %d", rr.Code)
	}
	s.login(t, "dave@example.com", "brand-new-pass!")
}

func TestRouterAdminRoutesRequireRole(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser(t, "admin@example.com", "correct-horse!", domain.RoleAdministrator)
	target := s.createUser(t, "target@example.com", "correct-horse!", domain.RoleUser)

	userTokens := s.login(t, "target@example.com", "correct-horse!")
	adminTokens := s.login(t, "admin@example.com", "correct-horse!")
	path := fmt.Sprintf("/api/v1/admin/users/%d", target.ID)

	rr := perform(s.handler, http.MethodPatch, path+"/inactivate", userTokens.AccessToken, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user role: expected 403, got %d", rr.Code)
	}

	rr = perform(s.handler, http.MethodPatch, path+"/inactivate", adminTokens.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("inactivate: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, userTokens.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after inactivation: expected 401, got %d", rr.Code)
	}
	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/login", "", `{"email":"target@example.com","password":"correct-horse!"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("login while inactive: expected 401, got %d", rr.Code)
	}

	rr = perform(s.handler, http.MethodPatch, path+"/reactivate", adminTokens.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reactivate: expected 200, got %d", rr.Code)
	}
	s.login(t, "target@example.com", "correct-horse!")

	rr = perform(s.handler, http.MethodPatch, "/api/v1/admin/users/9999/inactivate", adminTokens.AccessToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rr.Code)
	}
}

func TestRouterAuthRateLimit(t *testing.T) {
	s := newTestServer(t, func(d *Dependencies) { d.AuthRateLimitRPM = 1 })

	body := `{"email":"x@example.com","password":"whatever!"}`
	if rr := perform(s.handler, http.MethodPost, "/api/v1/auth/login", "", body); rr.Code != http.StatusUnauthorized {
		t.Fatalf("first request expected 401, got %d", rr.Code)
	}
	rr := perform(s.handler, http.MethodPost, "/api/v1/auth/login", "", body)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second request expected 429 with Retry-After, got %d", rr.Code)
	}
}

func TestRouterRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	for _, body := range []string{`{`, `{"email":"a@b.c","password":"x","extra":1}`, `{"email":"a"}{"email":"b"}`} {
		rr := perform(s.handler, http.MethodPost, "/api/v1/auth/login", "", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestRouterSessionsOutsideUTC(t *testing.T) {
	prev := time.Local
	time.Local = time.FixedZone("UTC-8", -8*60*60)
	t.Cleanup(func() { time.Local = prev })

	s := newTestServer(t, nil)
	s.createUser(t, "dave@example.com", "correct-horse!", domain.RoleUser)
	first := s.login(t, "dave@example.com", "correct-horse!")

	rr := perform(s.handler, http.MethodGet, "/api/v1/me/sessions", first.AccessToken, "")
	var listed struct {
		Sessions []service.SessionView `json:"sessions"`
	}
	decode(t, rr, &listed)
	if rr.Code != http.StatusOK || len(listed.Sessions) != 1 {
		t.Fatalf("expected the fresh session listed, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, first.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh right after login: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterConcurrentRefreshSingleWinner(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser(t, "erin@example.com", "correct-horse!", domain.RoleUser)
	first := s.login(t, "erin@example.com", "correct-horse!")
	body := fmt.Sprintf(`{"refresh_token":%q}`, first.RefreshToken)

	const workers = 8
	codes := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- perform(s.handler, http.MethodPost, "/api/v1/auth/refresh", "", body).Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusUnauthorized] != workers-1 {
		t.Fatalf("expected one 200 and the rest 401, got %v", counts)
	}
}
