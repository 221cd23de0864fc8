package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

func resetTokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("link %q carries no token", link)
	}
	return tok
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.reset.RequestReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	env.waitDeliveries(t)
	if got := len(env.sink.messages()); got != 0 {
		t.Fatalf("expected no delivery, got %d", got)
	}
	if err := env.reset.RequestReset(context.Background(), "  "); err != nil {
		t.Fatalf("expected nil for empty email, got %v", err)
	}
}

func TestRequestResetDeliversLink(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "Sup3r$ecret", domain.RoleUser)

	if err := env.reset.RequestReset(context.Background(), "Alice@Example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	env.waitDeliveries(t)
	msgs := env.sink.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(msgs))
	}
	if msgs[0].to != "alice@example.com" || !strings.HasPrefix(msgs[0].body, env.resetBase+"?token=") {
		t.Fatalf("unexpected delivery %+v", msgs[0])
	}
	tok := resetTokenFromLink(t, msgs[0].body)
	for _, pr := range env.store.resets {
		if pr.TokenHash == tok {
			t.Fatal("raw reset token must not be stored")
		}
		if pr.TokenHash != security.HashToken(tok, testPepper) {
			t.Fatal("stored digest does not match the delivered token")
		}
		if d := time.Until(pr.ExpiresAt); d <= 59*time.Minute || d > time.Hour {
			t.Fatalf("unexpected reset ttl %s", d)
		}
	}
}

func TestRequestResetCooldownAndDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "Sup3r$ecret", domain.RoleUser)
	env.sink.err = errors.New("smtp unavailable")
	ctx := context.Background()

	if err := env.reset.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
	if err := env.reset.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("cooldown hit must not surface: %v", err)
	}
	if got := len(env.store.resets); got != 1 {
		t.Fatalf("expected cooldown to suppress the second challenge, got %d", got)
	}
	env.waitDeliveries(t)
	if got := len(env.sink.messages()); got != 1 {
		t.Fatalf("expected one delivery attempt, got %d", got)
	}
}

type blockingSink struct {
	release chan struct{}
	done    chan error
}

func (s *blockingSink) SendResetLink(ctx context.Context, _, _ string) error {
	<-s.release
	s.done <- ctx.Err()
	return nil
}

func (s *blockingSink) SendResetSecretNotice(context.Context, string, string) error { return nil }

func TestRequestResetDoesNotWaitForDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "Sup3r$ecret", domain.RoleUser)
	sink := &blockingSink{release: make(chan struct{}), done: make(chan error, 1)}
	env.reset.sink = sink

	for _, email := range []string{"nobody@example.com", "alice@example.com"} {
		ctx, cancel := context.WithCancel(context.Background())
		returned := make(chan error, 1)
		go func() { returned <- env.reset.RequestReset(ctx, email) }()
		select {
		case err := <-returned:
			if err != nil {
				t.Fatalf("%s: request reset: %v", email, err)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("%s: request reset blocked on delivery", email)
		}
		cancel()
	}

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelWait()
	if err := env.reset.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected pending delivery, got %v", err)
	}

	close(sink.release)
	if err := <-sink.done; err != nil {
		t.Fatalf("delivery must outlive the request context, got %v", err)
	}
	env.waitDeliveries(t)
}

func TestRequestResetStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.setFail(true)
	if err := env.reset.RequestReset(context.Background(), "alice@example.com"); !errors.Is(err, ErrTransientStore) {
		t.Fatalf("expected ErrTransientStore, got %v", err)
	}
}

func TestConfirmResetConsumesOnceAndRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "Sup3r$ecret", domain.RoleUser)
	login := env.login(t, "alice@example.com", "Sup3r$ecret")
	ctx := context.Background()

	if err := env.reset.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	env.waitDeliveries(t)
	tok := resetTokenFromLink(t, env.sink.messages()[0].body)

	if err := env.reset.ConfirmReset(ctx, tok, "longenough!"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := env.auth.Refresh(ctx, login.RefreshToken, "", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected sessions revoked after reset, got %v", err)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Sup3r$ecret"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	env.login(t, "alice@example.com", "longenough!")

	if err := env.reset.ConfirmReset(ctx, tok, "another-one!"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken on reuse, got %v", err)
	}
}

func TestConfirmResetRejectsWeakPasswordWithoutConsuming(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "Sup3r$ecret", domain.RoleUser)
	ctx := context.Background()

	if err := env.reset.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	env.waitDeliveries(t)
	tok := resetTokenFromLink(t, env.sink.messages()[0].body)

	err := env.reset.ConfirmReset(ctx, tok, "short1")
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
	var weak *WeakPasswordError
	if !errors.As(err, &weak) || weak.Rule != security.RuleMinLength {
		t.Fatalf("expected min_length rule, got %v", err)
	}
	if err := env.reset.ConfirmReset(ctx, tok, "longenough!"); err != nil {
		t.Fatalf("challenge must survive a policy failure: %v", err)
	}
}

func TestConfirmResetInvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "alice@example.com", "Sup3r$ecret", domain.RoleUser)
	ctx := context.Background()

	if err := env.reset.ConfirmReset(ctx, "", "longenough!"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken for empty token, got %v", err)
	}
	if err := env.reset.ConfirmReset(ctx, "never-issued", "longenough!"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken for unknown token, got %v", err)
	}

	expired := &domain.PasswordReset{
		UserID:    u.ID,
		TokenHash: security.HashToken("expired-token", testPepper),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := env.resets.Create(ctx, expired); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.reset.ConfirmReset(ctx, "expired-token", "longenough!"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken for expired token, got %v", err)
	}
}

func TestBuildResetLink(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{base: "https://app.example.com/reset-password", want: "https://app.example.com/reset-password?token=abc"},
		{base: "https://app.example.com/reset?lang=en", want: "https://app.example.com/reset?lang=en&token=abc"},
	}
	for _, tc := range cases {
		if got := buildResetLink(tc.base, "abc"); got != tc.want {
			t.Fatalf("buildResetLink(%q)=%q want %q", tc.base, got, tc.want)
		}
	}
}
