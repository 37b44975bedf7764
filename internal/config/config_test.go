package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "BACKEND_BASE_URL", "BACKEND_TIMEOUT_SECONDS", "SESSION_DURATION_MINUTES", "SESSION_WARNING_MINUTES", "UNIQUENESS_DEBOUNCE_MS", "COMPANY_NAME"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Address())
	assert.Empty(t, cfg.BackendBaseURL)
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 3*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 5*time.Minute, cfg.SessionWarning)
	assert.Equal(t, 500*time.Millisecond, cfg.UniquenessDebounce)
	assert.Equal(t, "Rental Desk", cfg.CompanyName)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_BASE_URL", " https://api.rental.example/ ")
	t.Setenv("SESSION_DURATION_MINUTES", "30")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "-4")
	t.Setenv("REDIS_DB", "2")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "https://api.rental.example", cfg.BackendBaseURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionDuration)
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout, "non-positive values fall back")
	assert.Equal(t, 2, cfg.RedisDB)
}
