// Package upstream implements store.Backend over the rental backend's REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/store"
)

const maxResponseBytes = 16 << 20

// Observer is told about every finished backend call. status is 0 when the
// request never got an answer.
type Observer func(method string, status int, elapsed time.Duration)

type Client struct {
	baseURL  string
	http     *http.Client
	logger   *logging.Logger
	observer Observer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ store.Backend = (*Client)(nil)

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := store.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, 0, time.Since(started))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warnw("backend request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, store.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.observe(method, resp.StatusCode, time.Since(started))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read %s %s: %w: %v", method, path, store.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Infow("backend rejected request", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &store.UpstreamError{
			Status: resp.StatusCode,
			Body:   errorBody(raw),
			Err:    sentinelFor(resp.StatusCode),
		}
	}
	return raw, nil
}

func (c *Client) observe(method string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(method, status, elapsed)
	}
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return store.ErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return store.ErrUnauthorized
	case http.StatusConflict:
		return store.ErrConflict
	default:
		return store.ErrUpstream
	}
}

const maxErrorBody = 512

// errorBody prefers the backend's own message field over the raw body.
func errorBody(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func (c *Client) getList(ctx context.Context, path string, keys ...string) ([]record, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw, keys...)
}

func (c *Client) getOne(ctx context.Context, path string, keys ...string) (record, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return rec.unwrap(keys...), nil
}

// send posts payload and decodes the entity the backend echoes back. An empty
// body decodes as an empty record.
func (c *Client) send(ctx context.Context, method string, path string, payload any, keys ...string) (record, error) {
	raw, err := c.do(ctx, method, path, nil, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return record{}, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return rec.unwrap(keys...), nil
}

func (c *Client) remove(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func escape(id string) string {
	return url.PathEscape(id)
}

func (c *Client) Login(ctx context.Context, email string, password string) (string, *domain.User, error) {
	rec, err := c.send(ctx, http.MethodPost, "/userMaster/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		var upstreamErr *store.UpstreamError
		if errors.As(err, &upstreamErr) && upstreamErr.Status < 500 {
			return "", nil, store.ErrUnauthorized
		}
		return "", nil, err
	}
	token := rec.str("token", "accessToken", "access_token")
	if token == "" {
		return "", nil, fmt.Errorf("login: %w: response carried no token", store.ErrUpstream)
	}
	user := userFrom(rec.unwrap("user"))
	if user.Email == "" {
		user.Email = email
	}
	return token, &user, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	recs, err := c.getList(ctx, "/customerMaster", "customers")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(recs))
	for _, rec := range recs {
		out = append(out, customerFrom(rec))
	}
	return out, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	rec, err := c.getOne(ctx, "/customerMaster/"+escape(id), "customer")
	if err != nil {
		return nil, err
	}
	customer := customerFrom(rec)
	return &customer, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	rec, err := c.send(ctx, http.MethodPost, "/customerMaster", customerPayload(customer), "customer")
	if err != nil {
		return nil, err
	}
	created := mergeCustomer(customerFrom(rec), customer)
	return &created, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	rec, err := c.send(ctx, http.MethodPut, "/customerMaster/"+escape(customer.ID), customerPayload(customer), "customer")
	if err != nil {
		return nil, err
	}
	updated := mergeCustomer(customerFrom(rec), customer)
	return &updated, nil
}

// mergeCustomer fills fields the backend left out of its echo.
func mergeCustomer(got domain.Customer, sent domain.Customer) domain.Customer {
	if got.ID == "" {
		got.ID = sent.ID
	}
	if got.CustomerName == "" {
		got = sent
	}
	return got
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	return c.remove(ctx, "/customerMaster/"+escape(id))
}

func (c *Client) CustomerNameExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, "/customerMaster/check/name", url.Values{"name": {name}})
}

func (c *Client) CustomerEmailExists(ctx context.Context, email string) (bool, error) {
	return c.exists(ctx, "/customerMaster/check/email", url.Values{"email": {email}})
}

func (c *Client) exists(ctx context.Context, path string, query url.Values) (bool, error) {
	raw, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return false, err
	}
	return rec.flag("exists"), nil
}

func (c *Client) ListItems(ctx context.Context) ([]domain.Item, error) {
	recs, err := c.getList(ctx, "/itemMaster", "items")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Item, 0, len(recs))
	for _, rec := range recs {
		out = append(out, itemFrom(rec))
	}
	return out, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	rec, err := c.getOne(ctx, "/itemMaster/"+escape(id), "item")
	if err != nil {
		return nil, err
	}
	item := itemFrom(rec)
	return &item, nil
}

func (c *Client) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	rec, err := c.send(ctx, http.MethodPost, "/itemMaster", itemPayload(item), "item")
	if err != nil {
		return nil, err
	}
	created := itemFrom(rec)
	if created.ItemName == "" {
		created = item
		created.ID = rec.id()
	}
	return &created, nil
}

func (c *Client) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	rec, err := c.send(ctx, http.MethodPut, "/itemMaster/"+escape(item.ID), itemPayload(item), "item")
	if err != nil {
		return nil, err
	}
	updated := itemFrom(rec)
	if updated.ItemName == "" {
		updated = item
	}
	return &updated, nil
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.remove(ctx, "/itemMaster/"+escape(id))
}

func (c *Client) ToggleItemStatus(ctx context.Context, id string) (*domain.Item, error) {
	rec, err := c.send(ctx, http.MethodPatch, "/itemMaster/"+escape(id)+"/toggle-status", nil, "item")
	if err != nil {
		return nil, err
	}
	item := itemFrom(rec)
	if item.ID == "" {
		item.ID = id
	}
	return &item, nil
}

func (c *Client) ListUOMs(ctx context.Context) ([]domain.UOM, error) {
	recs, err := c.getList(ctx, "/uom", "uoms")
	if err != nil {
		return nil, err
	}
	out := make([]domain.UOM, 0, len(recs))
	for _, rec := range recs {
		out = append(out, uomFrom(rec))
	}
	return out, nil
}

func (c *Client) CreateUOM(ctx context.Context, uom domain.UOM) (*domain.UOM, error) {
	rec, err := c.send(ctx, http.MethodPost, "/uom", map[string]string{"uom": uom.Name}, "uom")
	if err != nil {
		return nil, err
	}
	created := uomFrom(rec)
	if created.Name == "" {
		created.Name = uom.Name
	}
	return &created, nil
}

func (c *Client) ListStock(ctx context.Context) ([]domain.StockItem, error) {
	recs, err := c.getList(ctx, "/stockMaster", "stock", "stocks")
	if err != nil {
		return nil, err
	}
	out := make([]domain.StockItem, 0, len(recs))
	for _, rec := range recs {
		out = append(out, stockFrom(rec))
	}
	return out, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	recs, err := c.getList(ctx, "/userMaster", "users")
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(recs))
	for _, rec := range recs {
		out = append(out, userFrom(rec))
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, user domain.User, password string) (*domain.User, error) {
	rec, err := c.send(ctx, http.MethodPost, "/userMaster", userPayload(user, password), "user")
	if err != nil {
		return nil, err
	}
	created := userFrom(rec)
	if created.Email == "" {
		id := rec.id()
		created = user
		created.ID = id
	}
	return &created, nil
}

func (c *Client) UpdateUser(ctx context.Context, user domain.User, password string) (*domain.User, error) {
	rec, err := c.send(ctx, http.MethodPut, "/userMaster/"+escape(user.ID), userPayload(user, password), "user")
	if err != nil {
		return nil, err
	}
	updated := userFrom(rec)
	if updated.Email == "" {
		updated = user
	}
	return &updated, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.remove(ctx, "/userMaster/"+escape(id))
}

func (c *Client) ListInwards(ctx context.Context) ([]domain.Inward, error) {
	recs, err := c.getList(ctx, "/inward", "inwards")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Inward, 0, len(recs))
	for _, rec := range recs {
		out = append(out, inwardFrom(rec))
	}
	return out, nil
}

func (c *Client) GetInward(ctx context.Context, id string) (*domain.Inward, error) {
	rec, err := c.getOne(ctx, "/inward/"+escape(id), "inward")
	if err != nil {
		return nil, err
	}
	inward := inwardFrom(rec)
	return &inward, nil
}

func (c *Client) CreateInward(ctx context.Context, inward domain.Inward) (*domain.Inward, error) {
	rec, err := c.send(ctx, http.MethodPost, "/inward", inwardPayload(inward), "inward")
	if err != nil {
		return nil, err
	}
	created := inwardFrom(rec)
	if created.InwardNo == "" {
		id := rec.id()
		created = inward
		created.ID = id
	}
	return &created, nil
}

func (c *Client) UpdateInward(ctx context.Context, inward domain.Inward) (*domain.Inward, error) {
	rec, err := c.send(ctx, http.MethodPut, "/inward/"+escape(inward.ID), inwardPayload(inward), "inward")
	if err != nil {
		return nil, err
	}
	updated := inwardFrom(rec)
	if updated.InwardNo == "" {
		updated = inward
	}
	return &updated, nil
}

func (c *Client) DeleteInward(ctx context.Context, id string) error {
	return c.remove(ctx, "/inward/"+escape(id))
}

func (c *Client) ListOnRents(ctx context.Context) ([]domain.OnRent, error) {
	recs, err := c.getList(ctx, "/onrent", "onrents", "onRents")
	if err != nil {
		return nil, err
	}
	out := make([]domain.OnRent, 0, len(recs))
	for _, rec := range recs {
		out = append(out, onRentFrom(rec))
	}
	return out, nil
}

func (c *Client) GetOnRent(ctx context.Context, onRentNo string) (*domain.OnRent, error) {
	rec, err := c.getOne(ctx, "/onrent/"+escape(onRentNo), "onrent", "onRent")
	if err != nil {
		return nil, err
	}
	rental := onRentFrom(rec)
	return &rental, nil
}

func (c *Client) CreateOnRent(ctx context.Context, rental domain.OnRent) (*domain.OnRent, error) {
	rec, err := c.send(ctx, http.MethodPost, "/onrent", onRentPayload(rental), "onrent", "onRent")
	if err != nil {
		return nil, err
	}
	created := onRentFrom(rec)
	if created.OnRentNo == "" {
		id := rec.id()
		created = rental
		created.ID = id
	}
	return &created, nil
}

func (c *Client) UpdateOnRent(ctx context.Context, rental domain.OnRent) (*domain.OnRent, error) {
	rec, err := c.send(ctx, http.MethodPut, "/onrent/"+escape(rental.OnRentNo), onRentPayload(rental), "onrent", "onRent")
	if err != nil {
		return nil, err
	}
	updated := onRentFrom(rec)
	if updated.OnRentNo == "" {
		updated = rental
	}
	return &updated, nil
}

func (c *Client) DeleteOnRent(ctx context.Context, onRentNo string) error {
	return c.remove(ctx, "/onrent/"+escape(onRentNo))
}

func (c *Client) ToggleOnRent(ctx context.Context, id string) (*domain.OnRent, error) {
	rec, err := c.send(ctx, http.MethodPatch, "/onrent/toggle/"+escape(id), nil, "onrent", "onRent")
	if err != nil {
		return nil, err
	}
	rental := onRentFrom(rec)
	rental.IsActive = rec.flag("isActive", "is_active")
	if rental.ID == "" {
		rental.ID = id
	}
	return &rental, nil
}

func (c *Client) ListOnRentReturns(ctx context.Context) ([]domain.OnRentReturn, error) {
	recs, err := c.getList(ctx, "/onrentreturn", "returns", "onRentReturns")
	if err != nil {
		return nil, err
	}
	out := make([]domain.OnRentReturn, 0, len(recs))
	for _, rec := range recs {
		out = append(out, onRentReturnFrom(rec))
	}
	return out, nil
}

func (c *Client) GetOnRentReturn(ctx context.Context, returnNo string) (*domain.OnRentReturn, error) {
	rec, err := c.getOne(ctx, "/onrentreturn/"+escape(returnNo), "onRentReturn", "return")
	if err != nil {
		return nil, err
	}
	ret := onRentReturnFrom(rec)
	return &ret, nil
}

func (c *Client) CreateOnRentReturn(ctx context.Context, ret domain.OnRentReturn) (*domain.OnRentReturn, error) {
	rec, err := c.send(ctx, http.MethodPost, "/onrentreturn", onRentReturnPayload(ret), "onRentReturn", "return")
	if err != nil {
		return nil, err
	}
	created := onRentReturnFrom(rec)
	if created.OnRentReturnNo == "" {
		id := rec.id()
		created = ret
		created.ID = id
	}
	return &created, nil
}

func (c *Client) UpdateOnRentReturn(ctx context.Context, ret domain.OnRentReturn) (*domain.OnRentReturn, error) {
	rec, err := c.send(ctx, http.MethodPut, "/onrentreturn/"+escape(ret.OnRentReturnNo), onRentReturnPayload(ret), "onRentReturn", "return")
	if err != nil {
		return nil, err
	}
	updated := onRentReturnFrom(rec)
	if updated.OnRentReturnNo == "" {
		updated = ret
	}
	return &updated, nil
}

func (c *Client) DeleteOnRentReturn(ctx context.Context, returnNo string) error {
	return c.remove(ctx, "/onrentreturn/"+escape(returnNo))
}

func (c *Client) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	recs, err := c.getList(ctx, "/payment", "payments")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Payment, 0, len(recs))
	for _, rec := range recs {
		out = append(out, paymentFrom(rec))
	}
	return out, nil
}

func (c *Client) CustomerReturns(ctx context.Context, customerID string) ([]domain.ReturnBalance, error) {
	recs, err := c.getList(ctx, "/payment/customer-returns/"+escape(customerID), "returns")
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnBalance, 0, len(recs))
	for _, rec := range recs {
		balance := returnBalanceFrom(rec)
		if balance.CustomerID == "" {
			balance.CustomerID = customerID
		}
		out = append(out, balance)
	}
	return out, nil
}

func (c *Client) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	rec, err := c.send(ctx, http.MethodPost, "/payment", paymentPayload(payment), "payment")
	if err != nil {
		return nil, err
	}
	created := paymentFrom(rec)
	if created.CustomerID == "" {
		id := rec.id()
		created = payment
		created.ID = id
	}
	return &created, nil
}

func (c *Client) AddCustomerCredit(ctx context.Context, credit domain.CustomerCredit) (*domain.CustomerCredit, error) {
	rec, err := c.send(ctx, http.MethodPost, "/customerCredit/add", creditPayload(credit), "credit", "customerCredit")
	if err != nil {
		return nil, err
	}
	created := creditFrom(rec)
	if created.CustomerID == "" {
		id := rec.id()
		created = credit
		created.ID = id
	}
	return &created, nil
}

func (c *Client) SendReport(ctx context.Context, delivery domain.ReportDelivery) error {
	_, err := c.do(ctx, http.MethodPost, "/report/send-report", nil, map[string]string{
		"customerId":   delivery.CustomerID,
		"pdfBase64":    delivery.PDFBase64,
		"customerName": delivery.CustomerName,
	})
	return err
}
