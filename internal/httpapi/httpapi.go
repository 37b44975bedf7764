package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/service"
	"rentaldesk/console/internal/store"
	"rentaldesk/console/internal/uniqueness"
)

// statusClientClosedRequest is logged when the browser gave up first.
const statusClientClosedRequest = 499

type API struct {
	service       *service.Service
	auth          *AuthManager
	outbox        *notify.Outbox
	metrics       *Metrics
	logger        *logging.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

type Options struct {
	AllowedOrigin string
	Outbox        *notify.Outbox
	Metrics       *Metrics
	Logger        *logging.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if opts.Outbox == nil {
		opts.Outbox = notify.NewOutbox(0)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		outbox:        opts.Outbox,
		metrics:       opts.Metrics,
		logger:        opts.Logger.WithComponent("httpapi"),
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.metrics.Middleware)

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/csrf-token", a.handleCSRFToken).Methods(http.MethodGet)

	api := v1.NewRoute().Subrouter()
	api.Use(a.requireSession)

	api.HandleFunc("/auth/refresh", a.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", a.handleSessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/notifications", a.handleNotifications).Methods(http.MethodGet)

	api.HandleFunc("/customers", a.handleListCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers", a.handleCreateCustomer).Methods(http.MethodPost)
	api.HandleFunc("/customers/availability", a.handleCustomerAvailability).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}", a.handleGetCustomer).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}", a.handleUpdateCustomer).Methods(http.MethodPut)
	api.HandleFunc("/customers/{id}", a.handleDeleteCustomer).Methods(http.MethodDelete)

	api.HandleFunc("/items", a.handleListItems).Methods(http.MethodGet)
	api.HandleFunc("/items", a.handleCreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", a.handleGetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", a.handleUpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", a.handleDeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/toggle-status", a.handleToggleItem).Methods(http.MethodPatch)

	api.HandleFunc("/uoms", a.handleListUOMs).Methods(http.MethodGet)
	api.HandleFunc("/uoms", a.handleCreateUOM).Methods(http.MethodPost)
	api.HandleFunc("/stock", a.handleListStock).Methods(http.MethodGet)
	api.HandleFunc("/users", a.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users", a.handleCreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", a.handleUpdateUser).Methods(http.MethodPut)
	api.HandleFunc("/users/{id}", a.handleDeleteUser).Methods(http.MethodDelete)
	api.HandleFunc("/customer-credits", a.handleAddCredit).Methods(http.MethodPost)

	api.HandleFunc("/inwards", a.handleListInwards).Methods(http.MethodGet)
	api.HandleFunc("/inwards", a.handleCreateInward).Methods(http.MethodPost)
	api.HandleFunc("/inwards/attachment-check", a.handleAttachmentCheck).Methods(http.MethodPost)
	api.HandleFunc("/inwards/{id}", a.handleGetInward).Methods(http.MethodGet)
	api.HandleFunc("/inwards/{id}", a.handleUpdateInward).Methods(http.MethodPut)
	api.HandleFunc("/inwards/{id}", a.handleDeleteInward).Methods(http.MethodDelete)

	api.HandleFunc("/onrents", a.handleListOnRents).Methods(http.MethodGet)
	api.HandleFunc("/onrents", a.handleCreateOnRent).Methods(http.MethodPost)
	api.HandleFunc("/onrents/quantity", a.handleQuantityCheck).Methods(http.MethodPost)
	api.HandleFunc("/onrents/{onRentNo}", a.handleGetOnRent).Methods(http.MethodGet)
	api.HandleFunc("/onrents/{onRentNo}", a.handleUpdateOnRent).Methods(http.MethodPut)
	api.HandleFunc("/onrents/{onRentNo}", a.handleDeleteOnRent).Methods(http.MethodDelete)
	api.HandleFunc("/onrents/{id}/toggle", a.handleToggleOnRent).Methods(http.MethodPatch)

	api.HandleFunc("/onrent-returns/customers/{customerId}/rentals", a.handleReturnRentals).Methods(http.MethodGet)
	api.HandleFunc("/onrent-returns/preview", a.handleReturnPreview).Methods(http.MethodPost)
	api.HandleFunc("/onrent-returns", a.handleListReturns).Methods(http.MethodGet)
	api.HandleFunc("/onrent-returns", a.handleCreateReturn).Methods(http.MethodPost)
	api.HandleFunc("/onrent-returns/{returnNo}", a.handleGetReturn).Methods(http.MethodGet)
	api.HandleFunc("/onrent-returns/{returnNo}", a.handleUpdateReturn).Methods(http.MethodPut)
	api.HandleFunc("/onrent-returns/{returnNo}", a.handleDeleteReturn).Methods(http.MethodDelete)

	api.HandleFunc("/payments", a.handleListPayments).Methods(http.MethodGet)
	api.HandleFunc("/payments", a.handleSubmitPayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/customers/{customerId}/returns", a.handleCustomerReturns).Methods(http.MethodGet)
	api.HandleFunc("/payments/allocation", a.handleAllocate).Methods(http.MethodPost)

	api.HandleFunc("/reports/customers/{customerId}", a.handleCustomerReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/customers/{customerId}/send", a.handleSendReport).Methods(http.MethodPost)

	api.HandleFunc("/audit-logs", a.handleAuditLogs).Methods(http.MethodGet)

	return a.withMiddleware(r)
}

type sessionContextKey struct{}

func sessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(domain.Session)
	return session, ok
}

// requireSession resolves the bearer token and runs the handler under the
// session's lifetime.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		session, err := a.auth.Authenticate(r.Context(), strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			if errors.Is(err, ErrInvalidSession) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			a.logger.Errorw("session lookup failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}

		ctx, cancel := a.service.BindSession(r.Context(), *session)
		defer cancel()
		ctx = context.WithValue(ctx, sessionContextKey{}, *session)
		ctx = logging.WithLogger(ctx, a.logger.With("session_id", session.ID, "user_id", session.User.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths are called before the browser can have fetched a token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the CSRF header on state-changing methods.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(a.allowedOrigin, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		MaxAge:         300,
	})

	return corsHandler.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			// Inward attachments travel inline as base64.
			r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)
		a.logger.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration", time.Since(startedAt),
		)
	}))
}

// writeServiceError maps a service failure onto a status code. Validation
// failures carry their field messages.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		message := verr.Message
		if message == "" {
			message = "validation failed"
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  message,
			"fields": verr.Fields,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionEnded), errors.Is(err, service.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, uniqueness.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled):
		status = statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUpstream):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		logging.FromContext(r.Context()).Errorw("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError hides 5xx details; 4xx messages are meant for the user.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
		if status == http.StatusBadGateway {
			msg = "backend unavailable"
		}
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
