package store

import (
	"context"
	"errors"
	"fmt"

	"rentaldesk/console/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrUpstream          = errors.New("backend unavailable")
)

// UpstreamError is a non-2xx answer from the backend. It unwraps to the
// sentinel matching its status.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%d", e.Status)
	}
	return fmt.Sprintf("%d - %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type tokenContextKey struct{}

// WithToken attaches the user's backend bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

// Backend is the system of record for every business entity the console edits.
type Backend interface {
	Login(ctx context.Context, email string, password string) (token string, user *domain.User, err error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	CustomerNameExists(ctx context.Context, name string) (bool, error)
	CustomerEmailExists(ctx context.Context, email string) (bool, error)

	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	ToggleItemStatus(ctx context.Context, id string) (*domain.Item, error)

	ListUOMs(ctx context.Context) ([]domain.UOM, error)
	CreateUOM(ctx context.Context, uom domain.UOM) (*domain.UOM, error)
	ListStock(ctx context.Context) ([]domain.StockItem, error)

	ListUsers(ctx context.Context) ([]domain.User, error)
	CreateUser(ctx context.Context, user domain.User, password string) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User, password string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	ListInwards(ctx context.Context) ([]domain.Inward, error)
	GetInward(ctx context.Context, id string) (*domain.Inward, error)
	CreateInward(ctx context.Context, inward domain.Inward) (*domain.Inward, error)
	UpdateInward(ctx context.Context, inward domain.Inward) (*domain.Inward, error)
	DeleteInward(ctx context.Context, id string) error

	ListOnRents(ctx context.Context) ([]domain.OnRent, error)
	GetOnRent(ctx context.Context, onRentNo string) (*domain.OnRent, error)
	CreateOnRent(ctx context.Context, rental domain.OnRent) (*domain.OnRent, error)
	UpdateOnRent(ctx context.Context, rental domain.OnRent) (*domain.OnRent, error)
	DeleteOnRent(ctx context.Context, onRentNo string) error
	ToggleOnRent(ctx context.Context, id string) (*domain.OnRent, error)

	ListOnRentReturns(ctx context.Context) ([]domain.OnRentReturn, error)
	GetOnRentReturn(ctx context.Context, returnNo string) (*domain.OnRentReturn, error)
	CreateOnRentReturn(ctx context.Context, ret domain.OnRentReturn) (*domain.OnRentReturn, error)
	UpdateOnRentReturn(ctx context.Context, ret domain.OnRentReturn) (*domain.OnRentReturn, error)
	DeleteOnRentReturn(ctx context.Context, returnNo string) error

	ListPayments(ctx context.Context) ([]domain.Payment, error)
	CustomerReturns(ctx context.Context, customerID string) ([]domain.ReturnBalance, error)
	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)

	AddCustomerCredit(ctx context.Context, credit domain.CustomerCredit) (*domain.CustomerCredit, error)
	SendReport(ctx context.Context, delivery domain.ReportDelivery) error
}
