package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"rentaldesk/console/internal/cache"
	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/service"
	"rentaldesk/console/internal/xid"
)

const (
	defaultSessionDuration = 3 * time.Hour
	defaultSessionWarning  = 5 * time.Minute
)

var ErrInvalidSession = errors.New("invalid or expired session")

// AuthManager turns a backend login into a console session. The browser holds
// a signed token naming the session; the backend token never leaves the server.
type AuthManager struct {
	secret   []byte
	duration time.Duration
	warning  time.Duration
	sessions cache.SessionStore
	service  *service.Service
	outbox   *notify.Outbox
	now      func() time.Time
}

type AuthConfig struct {
	Secret          string
	SessionDuration time.Duration
	SessionWarning  time.Duration
}

type consoleClaims struct {
	jwtlib.RegisteredClaims
	SessionID string `json:"sid"`
}

func NewAuthManager(cfg AuthConfig, sessions cache.SessionStore, svc *service.Service, outbox *notify.Outbox) *AuthManager {
	if cfg.Secret == "" {
		cfg.Secret = "dev-change-me"
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = defaultSessionDuration
	}
	if cfg.SessionWarning <= 0 {
		cfg.SessionWarning = defaultSessionWarning
	}
	return &AuthManager{
		secret:   []byte(cfg.Secret),
		duration: cfg.SessionDuration,
		warning:  cfg.SessionWarning,
		sessions: sessions,
		service:  svc,
		outbox:   outbox,
		now:      time.Now,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	token, user, err := a.service.Login(ctx, req)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	now := a.now().UTC()
	session := &domain.Session{
		ID:            xid.New("sess"),
		UpstreamToken: token,
		User:          *user,
		LoginAt:       now,
		ExpiresAt:     now.Add(a.duration),
	}
	return a.issue(ctx, session)
}

// Refresh restarts the session window from now.
func (a *AuthManager) Refresh(ctx context.Context, session domain.Session) (domain.LoginResponse, error) {
	now := a.now().UTC()
	session.LoginAt = now
	session.ExpiresAt = now.Add(a.duration)
	return a.issue(ctx, &session)
}

func (a *AuthManager) issue(ctx context.Context, session *domain.Session) (domain.LoginResponse, error) {
	if err := a.sessions.Set(ctx, session, session.ExpiresAt.Sub(a.now())); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("store session: %w", err)
	}
	a.service.StartSession(*session)

	signed, err := a.sign(session)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: signed,
		ExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
		User:        session.User,
	}, nil
}

// Logout forgets the session and cancels whatever it still has in flight.
func (a *AuthManager) Logout(ctx context.Context, session domain.Session) error {
	a.service.EndSession(session.ID)
	if a.outbox != nil {
		a.outbox.Forget(session.ID)
	}
	return a.sessions.Delete(context.WithoutCancel(ctx), session.ID)
}

// Authenticate resolves a bearer token to a live session.
func (a *AuthManager) Authenticate(ctx context.Context, tokenStr string) (*domain.Session, error) {
	sessionID, err := a.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}
	session, ok, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok || !a.now().Before(session.ExpiresAt) {
		return nil, ErrInvalidSession
	}
	return session, nil
}

func (a *AuthManager) Status(session domain.Session) domain.SessionStatus {
	remaining := max(session.ExpiresAt.Sub(a.now()), 0)
	return domain.SessionStatus{
		ExpiresAt:        session.ExpiresAt,
		RemainingSeconds: int64(remaining / time.Second),
		Warning:          remaining <= a.warning,
	}
}

func (a *AuthManager) ParseToken(tokenStr string) (string, error) {
	claims := &consoleClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidSession
	}
	if claims.SessionID == "" {
		return "", ErrInvalidSession
	}
	return claims.SessionID, nil
}

func (a *AuthManager) sign(session *domain.Session) (string, error) {
	claims := consoleClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   session.User.ID,
			IssuedAt:  jwtlib.NewNumericDate(session.LoginAt),
			ExpiresAt: jwtlib.NewNumericDate(session.ExpiresAt),
			Issuer:    "rentaldesk-console",
		},
		SessionID: session.ID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
