package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/store"
)

type capturedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Body          map[string]any
}

// fakeBackend answers from a route table and records what it was sent.
type fakeBackend struct {
	mu       sync.Mutex
	requests []capturedRequest
	routes   map[string]func(w http.ResponseWriter)
}

func newFakeBackend(t *testing.T) (*fakeBackend, *Client) {
	t.Helper()
	fake := &fakeBackend{routes: make(map[string]func(w http.ResponseWriter))}
	srv := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(srv.Close)

	client, err := New(srv.URL+"/api", time.Second)
	require.NoError(t, err)
	return fake, client
}

func (f *fakeBackend) on(method string, path string, status int, body string) {
	f.routes[method+" "+path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	captured := capturedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
	}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &captured.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, captured)
	route := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if route == nil {
		http.Error(w, `{"message":"no route"}`, http.StatusNotFound)
		return
	}
	route(w)
}

func (f *fakeBackend) last() capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api", time.Second)
	assert.Error(t, err)
}

func TestLoginReturnsTokenAndUser(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodPost, "/api/userMaster/login", http.StatusOK,
		`{"token":"tok-1","user":{"_id":"u1","firstName":"Asha","lastName":"Rao","email":"asha@example.com"}}`)

	token, user, err := client.Login(context.Background(), "asha@example.com", "secret")

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Asha Rao", user.FullName())
	assert.Equal(t, "secret", fake.last().Body["password"])
}

func TestLoginMapsRejectionToUnauthorized(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodPost, "/api/userMaster/login", http.StatusBadRequest, `{"message":"Invalid credentials"}`)

	_, _, err := client.Login(context.Background(), "asha@example.com", "nope")

	assert.ErrorIs(t, err, store.ErrUnauthorized)
}

func TestBearerTokenForwarded(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodGet, "/api/customerMaster", http.StatusOK, `[]`)

	ctx := store.WithToken(context.Background(), "tok-9")
	_, err := client.ListCustomers(ctx)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-9", fake.last().Authorization)
}

func TestErrorStatusMapsToSentinel(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, store.ErrNotFound},
		{http.StatusUnprocessableEntity, store.ErrInvalidRequest},
		{http.StatusForbidden, store.ErrUnauthorized},
		{http.StatusConflict, store.ErrConflict},
		{http.StatusBadGateway, store.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			fake, client := newFakeBackend(t)
			fake.on(http.MethodGet, "/api/itemMaster/x", tc.status, `{"message":"nope"}`)

			_, err := client.GetItem(context.Background(), "x")

			assert.ErrorIs(t, err, tc.want)
			var upstreamErr *store.UpstreamError
			require.True(t, errors.As(err, &upstreamErr))
			assert.Equal(t, tc.status, upstreamErr.Status)
			assert.Equal(t, "nope", upstreamErr.Body)
		})
	}
}

func TestErrorBodyCutsOnRuneBoundary(t *testing.T) {
	// 511 ASCII bytes put the next rune across the cut.
	raw := strings.Repeat("x", maxErrorBody-1) + strings.Repeat("é", 10)

	text := errorBody([]byte(raw))

	assert.True(t, utf8.ValidString(text))
	assert.LessOrEqual(t, len(text), maxErrorBody)
	assert.Equal(t, strings.Repeat("x", maxErrorBody-1), text)
}

func TestCancelledContextReturnsContextError(t *testing.T) {
	_, client := newFakeBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListItems(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestListStockNormalizesKeyVariants(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodGet, "/api/stockMaster", http.StatusOK, `{"data":[
		{"item_id":"i1","qty":"12.5"},
		{"itemId":"i2","qty":7},
		{"item":{"id":"i3","itemName":"Jack"},"quantity":3}
	]}`)

	stock, err := client.ListStock(context.Background())

	require.NoError(t, err)
	require.Len(t, stock, 3)
	assert.Equal(t, "i1", stock[0].ItemID)
	assert.True(t, stock[0].Qty.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "i2", stock[1].ItemID)
	assert.Equal(t, "i3", stock[2].ItemID)
	assert.Equal(t, "Jack", stock[2].ItemName)
}

func TestListOnRentsDerivesRemainingQty(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodGet, "/api/onrent", http.StatusOK, `[{
		"_id":"r1","onRentNo":"OR-1","onRentDate":"2024-03-01T00:00:00.000Z",
		"customer":{"id":"c1","customerName":"Acme"},
		"items":[{"itemid":"i1","itemName":"Prop","uom":{"uom":"qty"},"qtyOrWeight":"10","qtyReturn":"4","perDayRate":"2","onRentReturnDate":"null"}]
	}]`)

	rentals, err := client.ListOnRents(context.Background())

	require.NoError(t, err)
	require.Len(t, rentals, 1)
	rental := rentals[0]
	assert.Equal(t, "OR-1", rental.OnRentNo)
	assert.Equal(t, "c1", rental.CustomerID)
	assert.Equal(t, "Acme", rental.CustomerName)
	require.Len(t, rental.Items, 1)
	item := rental.Items[0]
	assert.Equal(t, "i1", item.ItemID)
	assert.Equal(t, "qty", item.UOM)
	assert.True(t, item.RemainingQty.Equal(decimal.NewFromInt(6)))
	assert.Nil(t, item.OnRentReturnDate)
}

func TestCreatePaymentSendsAllocations(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodPost, "/api/payment", http.StatusCreated, `{"_id":"p1"}`)

	created, err := client.CreatePayment(context.Background(), domain.Payment{
		CustomerID:  "c1",
		PaidAmount:  decimal.RequireFromString("1000"),
		PaymentType: domain.PaymentTypeUPI,
		AllocatedReturns: []domain.AllocatedReturn{
			{ReturnID: "ret-1", ReturnNumber: "RT-1", AllocatedAmount: decimal.RequireFromString("400"), IsReturnCompleted: true},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "p1", created.ID)
	body := fake.last().Body
	assert.Equal(t, "UPI", body["paymentType"])
	assert.Equal(t, float64(1000), body["paidAmount"])
	allocated := body["allocatedReturns"].([]any)
	require.Len(t, allocated, 1)
	assert.Equal(t, "ret-1", allocated[0].(map[string]any)["returnId"])
	assert.Equal(t, true, allocated[0].(map[string]any)["isReturnCompleted"])
}

func TestCustomerEmailExistsQueriesBackend(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodGet, "/api/customerMaster/check/email", http.StatusOK, `{"exists":true}`)

	exists, err := client.CustomerEmailExists(context.Background(), "a@b.co")

	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "email=a%40b.co", fake.last().Query)
}

func TestObserverSeesStatus(t *testing.T) {
	fake, client := newFakeBackend(t)
	fake.on(http.MethodDelete, "/api/inward/in-1", http.StatusNoContent, ``)
	var seen []int
	client.observer = func(method string, status int, elapsed time.Duration) {
		seen = append(seen, status)
	}

	require.NoError(t, client.DeleteInward(context.Background(), "in-1"))
	assert.Equal(t, []int{http.StatusNoContent}, seen)
}
