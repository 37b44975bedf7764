package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rentaldesk/console/internal/cache"
	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/service"
	"rentaldesk/console/internal/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestAuth(t *testing.T) (*AuthManager, *service.Service, *notify.Outbox, *testClock) {
	t.Helper()

	backend := memory.NewSeeded(memory.WithPasswordCost(bcrypt.MinCost))
	outbox := notify.NewOutbox(0)
	svc := service.New(backend, service.Options{Notifier: outbox, Logger: logging.Nop(), OnSessionEnd: outbox.Forget})
	auth := NewAuthManager(AuthConfig{
		Secret:          "test-secret-key",
		SessionDuration: time.Hour,
		SessionWarning:  5 * time.Minute,
	}, cache.NewMemorySessionStore(), svc, outbox)

	clock := &testClock{now: time.Now().UTC()}
	auth.now = clock.Now
	return auth, svc, outbox, clock
}

func TestAuthManagerLoginIssuesResolvableToken(t *testing.T) {
	auth, _, _, _ := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	session, err := auth.Authenticate(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if session.User.Email != testAdminEmail {
		t.Fatalf("expected session for %s, got %s", testAdminEmail, session.User.Email)
	}
	if session.UpstreamToken == "" {
		t.Fatalf("expected backend token to be kept server side")
	}
}

func TestAuthManagerRejectsForeignSignature(t *testing.T) {
	auth, svc, outbox, _ := newTestAuth(t)
	other := NewAuthManager(AuthConfig{Secret: "another-secret"}, cache.NewMemorySessionStore(), svc, outbox)

	resp, err := other.Login(context.Background(), domain.LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := auth.Authenticate(context.Background(), resp.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestAuthManagerSessionExpires(t *testing.T) {
	auth, _, _, clock := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	clock.now = clock.now.Add(time.Hour + time.Second)
	if _, err := auth.Authenticate(context.Background(), resp.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired session to be rejected, got %v", err)
	}
}

func TestAuthManagerStatusWarnsNearExpiry(t *testing.T) {
	auth, _, _, clock := newTestAuth(t)

	session := domain.Session{ExpiresAt: clock.now.Add(4 * time.Minute)}
	status := auth.Status(session)
	if !status.Warning {
		t.Fatalf("expected warning with 4 minutes left")
	}
	if status.RemainingSeconds != 240 {
		t.Fatalf("expected 240 seconds remaining, got %d", status.RemainingSeconds)
	}

	session.ExpiresAt = clock.now.Add(-time.Minute)
	if status := auth.Status(session); status.RemainingSeconds != 0 {
		t.Fatalf("expected remaining time clamped at zero, got %d", status.RemainingSeconds)
	}
}

func TestAuthManagerRefreshExtendsWindow(t *testing.T) {
	auth, _, _, clock := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	session, err := auth.Authenticate(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	clock.now = clock.now.Add(50 * time.Minute)
	refreshed, err := auth.Refresh(context.Background(), *session)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	clock.now = clock.now.Add(30 * time.Minute)
	if _, err := auth.Authenticate(context.Background(), refreshed.AccessToken); err != nil {
		t.Fatalf("expected refreshed session to outlive the first window, got %v", err)
	}
}

func TestAuthManagerLogoutCancelsInFlightWork(t *testing.T) {
	auth, svc, outbox, _ := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	session, err := auth.Authenticate(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	ctx, cancel := svc.BindSession(context.Background(), *session)
	defer cancel()
	outbox.Notify(ctx, notify.LevelInfo, "pending")

	if err := auth.Logout(context.Background(), *session); err != nil {
		t.Fatalf("logout: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected bound context to be cancelled by logout")
	}
	if !errors.Is(context.Cause(ctx), service.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded cause, got %v", context.Cause(ctx))
	}
	if notices := outbox.Drain(session.ID); len(notices) != 0 {
		t.Fatalf("expected queued notices to be dropped, got %d", len(notices))
	}
	if _, err := auth.Authenticate(context.Background(), resp.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected logged-out token to be rejected, got %v", err)
	}
}

func TestAuthManagerRejectsTokenWithoutSessionID(t *testing.T) {
	auth, _, _, clock := newTestAuth(t)

	claims := consoleClaims{RegisteredClaims: jwtlib.RegisteredClaims{
		Subject:   "user-admin",
		ExpiresAt: jwtlib.NewNumericDate(clock.now.Add(time.Hour)),
	}}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(auth.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.ParseToken(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestExpiredSessionDropsQueuedNotices(t *testing.T) {
	backend := memory.NewSeeded(memory.WithPasswordCost(bcrypt.MinCost))
	outbox := notify.NewOutbox(0)
	svc := service.New(backend, service.Options{Notifier: outbox, Logger: logging.Nop(), OnSessionEnd: outbox.Forget})

	session := domain.Session{ID: "s-short", ExpiresAt: time.Now().Add(20 * time.Millisecond)}
	svc.StartSession(session)
	ctx, cancel := svc.BindSession(context.Background(), session)
	outbox.Notify(ctx, notify.LevelInfo, "pending")
	cancel()

	deadline := time.Now().Add(time.Second)
	for outbox.Pending(session.ID) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected queue to be dropped once the session expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
