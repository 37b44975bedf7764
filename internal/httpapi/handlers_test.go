package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rentaldesk/console/internal/audit"
	"rentaldesk/console/internal/cache"
	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/service"
	"rentaldesk/console/internal/store/memory"
)

const (
	testAdminEmail    = "admin@rentaldesk.local"
	testAdminPassword = "admin123"
)

// newTestAPI builds a full API with an in-memory backend, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	backend := memory.NewSeeded(memory.WithPasswordCost(bcrypt.MinCost))
	outbox := notify.NewOutbox(0)
	metrics := NewMetrics()
	svc := service.New(backend, service.Options{
		Audit:           audit.NewMemoryRecorder(),
		Notifier:        outbox,
		Logger:          logging.Nop(),
		UniquenessDelay: time.Millisecond,
		OnAllocation:    metrics.ObserveAllocation,
		OnSessionEnd:    outbox.Forget,
	})
	auth := NewAuthManager(AuthConfig{Secret: "test-secret-key", SessionDuration: time.Hour}, cache.NewMemorySessionStore(), svc, outbox)

	return New(svc, auth, Options{
		AllowedOrigin: "*",
		Outbox:        outbox,
		Metrics:       metrics,
		Logger:        logging.Nop(),
	})
}

// doJSON sends an authenticated request with a CSRF token attached.
func doJSON(t *testing.T, api *API, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, res.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    testAdminEmail,
		Password: testAdminPassword,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var resp domain.LoginResponse
	decodeBody(t, res, &resp)
	if resp.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if resp.User.Email != testAdminEmail {
		t.Fatalf("expected user %s, got %s", testAdminEmail, resp.User.Email)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    testAdminEmail,
		Password: "wrong-password",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestHandleLogin_ValidationFields(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: "not-an-email"})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, res, &body)
	if body.Fields["email"] == "" || body.Fields["password"] == "" {
		t.Fatalf("expected email and password field errors, got %v", body.Fields)
	}
}

func TestHandleCustomers_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/customers", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/customers", "garbage", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.Code)
	}
}

func TestHandleCustomers_CreateAndList(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerRequest{
		CustomerName: "Beta Infra",
		Email:        "ops@beta.com",
		Mobile:       "9123456780",
		Address:      "Plot 7 MIDC",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/customers", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var customers []domain.Customer
	decodeBody(t, res, &customers)
	if len(customers) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(customers))
	}
}

func TestHandleCustomers_TakenNameIsFieldError(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerRequest{
		CustomerName: "Acme Builders",
		Email:        "other@acme.com",
		Mobile:       "9123456780",
		Address:      "Plot 7 MIDC",
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, res, &body)
	if body.Fields["customer_name"] == "" {
		t.Fatalf("expected customer_name error, got %v", body.Fields)
	}
}

func TestHandleCustomerAvailability(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/customers/availability?field=name&value=acme%20builders", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var resp domain.AvailabilityResponse
	decodeBody(t, res, &resp)
	if resp.Available {
		t.Fatal("expected existing name to be unavailable")
	}
}

func TestHandleGetCustomer_NotFound(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/customers/cust-missing", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestHandleOnRent_ShortfallIsFieldError(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/onrents", token, map[string]any{
		"on_rent_date": "2024-03-01",
		"customer_id":  "cust-acme",
		"items": []map[string]any{
			{"item_id": "item-jack", "uom": "qty", "qty_or_weight": "100", "per_day_rate": "2"},
		},
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, res, &body)
	if got := body.Fields["items[0].qty_or_weight"]; got != "Only 80 available in stock." {
		t.Fatalf("unexpected shortfall message %q", got)
	}
}

func TestHandleAllocate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/payments/allocation", token, map[string]any{
		"action": "distribute_evenly",
		"sheet": map[string]any{
			"paid_amount": "100",
			"lines": []map[string]any{
				{"return_id": "r1", "balance_amount": "80", "allocated_amount": "0", "selected": true},
				{"return_id": "r2", "balance_amount": "80", "allocated_amount": "0", "selected": true},
			},
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var resp domain.AllocationResponse
	decodeBody(t, res, &resp)
	if !resp.Totals.Allocated.Equal(resp.Sheet.PaidAmount) {
		t.Fatalf("expected the whole payment allocated, got %s", resp.Totals.Allocated)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/payments/allocation", token, map[string]any{
		"action":    "pay_full",
		"return_id": "missing",
		"sheet":     map[string]any{"paid_amount": "100"},
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown return, got %d", res.Code)
	}
}

func TestHandleCustomerReturns_BadPaidAmount(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/payments/customers/cust-acme/returns?paid_amount=abc", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHandleReport_FormatAndNoData(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/customers/cust-acme?format=xml", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/customers/cust-acme?format=csv", token, nil)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without rentals, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleReport_CSV(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/onrents", token, map[string]any{
		"on_rent_date": "2024-03-01",
		"customer_id":  "cust-acme",
		"items": []map[string]any{
			{"item_id": "item-prop", "item_name": "Steel Prop", "uom": "qty", "qty_or_weight": "10", "per_day_rate": "5"},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create on-rent: expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/customers/cust-acme?format=csv", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	if !strings.Contains(res.Body.String(), "Steel Prop") {
		t.Fatalf("expected rented item in csv, got %s", res.Body.String())
	}
}

func TestHandleNotifications_DrainsSessionQueue(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/customer-credits", token, map[string]any{
		"customer_id":  "cust-acme",
		"payment_type": "Cash",
		"payment_date": "2024-03-10",
		"amount":       "250",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/notifications", token, nil)
	var body struct {
		Notifications []notify.Notice `json:"notifications"`
	}
	decodeBody(t, res, &body)
	if len(body.Notifications) != 1 || body.Notifications[0].Message != "Credit added" {
		t.Fatalf("unexpected notifications %+v", body.Notifications)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/notifications", token, nil)
	body.Notifications = nil
	decodeBody(t, res, &body)
	if len(body.Notifications) != 0 {
		t.Fatalf("expected drained queue, got %+v", body.Notifications)
	}
}

func TestHandleLogout_InvalidatesToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/auth/session", token, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.Code)
	}
}

func TestHandleSessionStatus(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/auth/session", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var status domain.SessionStatus
	decodeBody(t, res, &status)
	if status.RemainingSeconds <= 0 || status.Warning {
		t.Fatalf("unexpected fresh session status %+v", status)
	}
}

func TestHandleAuditLogs_RecordsWrites(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/uoms", token, domain.UOMRequest{Name: "Bundle"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/audit-logs?limit=10", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var logs []domain.AuditLog
	decodeBody(t, res, &logs)
	if len(logs) == 0 || logs[0].Actor != testAdminEmail {
		t.Fatalf("expected an audit entry by the admin, got %+v", logs)
	}
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	doJSON(t, api, http.MethodGet, "/api/v1/customers/cust-acme", token, nil)

	res := doJSON(t, api, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, `path="/api/v1/customers/{id}"`) {
		t.Fatalf("expected templated path label in metrics output")
	}
	if strings.Contains(body, "cust-acme") {
		t.Fatalf("expected raw ids to stay out of metric labels")
	}
}
