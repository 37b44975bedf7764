package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	AllowedOrigin  string
	BackendBaseURL string
	BackendTimeout time.Duration

	AuthSecret      string
	SessionDuration time.Duration
	SessionWarning  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditDatabaseURL string

	ReportBucket    string
	ReportEndpoint  string
	ReportRegion    string
	ReportAccessKey string
	ReportSecretKey string

	UniquenessDebounce time.Duration
	CompanyName        string

	LogLevel       string
	LogDevelopment bool
}

// Load reads defaults, then an optional .env file, then the environment.
func Load() Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("backend_timeout_seconds", 15)
	v.SetDefault("session_duration_minutes", 180)
	v.SetDefault("session_warning_minutes", 5)
	v.SetDefault("redis_db", 0)
	v.SetDefault("uniqueness_debounce_ms", 500)
	v.SetDefault("company_name", "Rental Desk")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)

	return Config{
		Port:           v.GetString("port"),
		AllowedOrigin:  v.GetString("allowed_origin"),
		BackendBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("backend_base_url")), "/"),
		BackendTimeout: positive(v.GetInt("backend_timeout_seconds"), 15) * time.Second,

		AuthSecret:      strings.TrimSpace(v.GetString("auth_secret")),
		SessionDuration: positive(v.GetInt("session_duration_minutes"), 180) * time.Minute,
		SessionWarning:  positive(v.GetInt("session_warning_minutes"), 5) * time.Minute,

		RedisAddr:     strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		AuditDatabaseURL: strings.TrimSpace(v.GetString("audit_database_url")),

		ReportBucket:    strings.TrimSpace(v.GetString("report_bucket")),
		ReportEndpoint:  strings.TrimSpace(v.GetString("report_endpoint")),
		ReportRegion:    strings.TrimSpace(v.GetString("report_region")),
		ReportAccessKey: v.GetString("report_access_key"),
		ReportSecretKey: v.GetString("report_secret_key"),

		UniquenessDebounce: positive(v.GetInt("uniqueness_debounce_ms"), 500) * time.Millisecond,
		CompanyName:        v.GetString("company_name"),

		LogLevel:       v.GetString("log_level"),
		LogDevelopment: v.GetBool("log_development"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func positive(n int, fallback int) time.Duration {
	if n < 1 {
		n = fallback
	}
	return time.Duration(n)
}
