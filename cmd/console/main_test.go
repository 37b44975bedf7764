package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentaldesk/console/internal/config"
	"rentaldesk/console/internal/logging"
)

func strongConfig() config.Config {
	return config.Config{
		Port:               "8080",
		AllowedOrigin:      "http://127.0.0.1:3000",
		AuthSecret:         "0123456789abcdef0123456789abcdef",
		BackendTimeout:     15 * time.Second,
		SessionDuration:    3 * time.Hour,
		SessionWarning:     5 * time.Minute,
		UniquenessDebounce: 500 * time.Millisecond,
		CompanyName:        "Rental Desk",
	}
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cfg := strongConfig()
	cfg.AuthSecret = "short"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}

	cfg = strongConfig()
	cfg.AllowedOrigin = "*"
	cfg.BackendBaseURL = "https://api.rental.example"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected wildcard origin with a real backend to be rejected")
	}

	cfg = strongConfig()
	cfg.SessionWarning = cfg.SessionDuration
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected warning window longer than the session to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(strongConfig()); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestBuildAppInMemory(t *testing.T) {
	handler, closers, err := buildApp(context.Background(), strongConfig(), logging.Nop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected no closers for in-memory wiring, got %d", len(closers))
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", res.Code)
	}
}

func TestBuildAppRejectsBadBackendURL(t *testing.T) {
	cfg := strongConfig()
	cfg.BackendBaseURL = "://missing-scheme"
	if _, _, err := buildApp(context.Background(), cfg, logging.Nop()); err == nil {
		t.Fatalf("expected invalid backend url to abort startup")
	}
}
