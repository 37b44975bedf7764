package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentaldesk/console/internal/audit"
	"rentaldesk/console/internal/cache"
	"rentaldesk/console/internal/config"
	"rentaldesk/console/internal/httpapi"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/report"
	"rentaldesk/console/internal/service"
	"rentaldesk/console/internal/store"
	"rentaldesk/console/internal/store/memory"
	"rentaldesk/console/internal/store/upstream"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handler, closers, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("startup failed", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Statement PDFs and backend round trips can take a while.
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("console listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warnw("close error", "error", err)
		}
	}

	logger.Infow("server stopped")
}

// buildApp wires the console from cfg. Optional services that are configured
// but unreachable abort startup rather than silently degrading.
func buildApp(ctx context.Context, cfg config.Config, logger *logging.Logger) (http.Handler, []func() error, error) {
	closers := make([]func() error, 0, 3)
	metrics := httpapi.NewMetrics()

	var backend store.Backend
	if cfg.BackendBaseURL != "" {
		client, err := upstream.New(cfg.BackendBaseURL, cfg.BackendTimeout,
			upstream.WithLogger(logger),
			upstream.WithObserver(metrics.ObserveBackend),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("backend client: %w", err)
		}
		backend = client
		logger.Infow("backend: upstream", "base_url", cfg.BackendBaseURL)
	} else {
		backend = memory.NewSeeded()
		logger.Infow("backend: in-memory")
	}

	var sessions cache.SessionStore = cache.NewMemorySessionStore()
	if cfg.RedisAddr != "" {
		redisSessions := cache.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisSessions.Ping(ctx); err != nil {
			_ = redisSessions.Close()
			return nil, nil, fmt.Errorf("redis unavailable and REDIS_ADDR is set: %w", err)
		}
		sessions = redisSessions
		closers = append(closers, redisSessions.Close)
		logger.Infow("sessions: redis", "addr", cfg.RedisAddr)
	} else {
		logger.Infow("sessions: in-memory")
	}

	var recorder audit.Recorder = audit.NewMemoryRecorder()
	if cfg.AuditDatabaseURL != "" {
		pg, err := audit.NewPostgresRecorder(ctx, cfg.AuditDatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("audit database unavailable and AUDIT_DATABASE_URL is set: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("audit schema: %w", err)
		}
		recorder = pg
		closers = append(closers, pg.Close)
		logger.Infow("audit: postgres")
	} else {
		logger.Infow("audit: in-memory")
	}

	var archive report.Archive = report.NoopArchive{}
	if cfg.ReportBucket != "" {
		s3Archive, err := report.NewS3Archive(ctx, report.S3Config{
			Bucket:    cfg.ReportBucket,
			Endpoint:  cfg.ReportEndpoint,
			Region:    cfg.ReportRegion,
			AccessKey: cfg.ReportAccessKey,
			SecretKey: cfg.ReportSecretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("report archive: %w", err)
		}
		archive = s3Archive
		logger.Infow("report archive: s3", "bucket", cfg.ReportBucket)
	}

	outbox := notify.NewOutbox(0)
	svc := service.New(backend, service.Options{
		Audit:           recorder,
		Notifier:        notify.Multi{outbox, notify.NewLogNotifier(logger)},
		Archive:         archive,
		Logger:          logger,
		CompanyName:     cfg.CompanyName,
		UniquenessDelay: cfg.UniquenessDebounce,
		OnAllocation:    metrics.ObserveAllocation,
		OnSessionEnd:    outbox.Forget,
	})
	auth := httpapi.NewAuthManager(httpapi.AuthConfig{
		Secret:          cfg.AuthSecret,
		SessionDuration: cfg.SessionDuration,
		SessionWarning:  cfg.SessionWarning,
	}, sessions, svc, outbox)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Outbox:        outbox,
		Metrics:       metrics,
		Logger:        logger,
	})

	return api.Handler(), closers, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.BackendBaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the console origin when a real backend is configured")
	}
	if cfg.SessionWarning >= cfg.SessionDuration {
		return fmt.Errorf("SESSION_WARNING_MINUTES must be shorter than SESSION_DURATION_MINUTES")
	}
	return nil
}
