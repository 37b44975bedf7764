package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/store"
	"rentaldesk/console/internal/uniqueness"
)

const (
	FieldName  = "name"
	FieldEmail = "email"
)

const (
	msgNameTaken  = "This Customer Name is already taken."
	msgEmailTaken = "This Email is already taken."
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.backend.ListCustomers(ctx)
	return settle(ctx, customers, err)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	customer, err := s.backend.GetCustomer(ctx, id)
	return settle(ctx, customer, err)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (*domain.Customer, error) {
	req = trimCustomer(req)
	if err := s.checkCustomer(ctx, req, nil); err != nil {
		return nil, err
	}

	created, err := s.backend.CreateCustomer(ctx, customerFromRequest(req))
	if err != nil {
		return nil, s.failed(ctx, "customer", err)
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.CustomerName)
	return settle(ctx, created, nil)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (*domain.Customer, error) {
	req = trimCustomer(req)
	existing, err := s.backend.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCustomer(ctx, req, existing); err != nil {
		return nil, err
	}

	customer := customerFromRequest(req)
	customer.ID = existing.ID
	customer.IsActive = existing.IsActive
	customer.CreatedAt = existing.CreatedAt
	updated, err := s.backend.UpdateCustomer(ctx, customer)
	if err != nil {
		return nil, s.failed(ctx, "customer", err)
	}
	s.logAudit(ctx, "customer_update", "customer", updated.ID, "name="+updated.CustomerName)
	return settle(ctx, updated, nil)
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.backend.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", id, "")
	return nil
}

// checkCustomer validates the form and, for values that changed, asks the
// backend whether name and email are still free.
func (s *Service) checkCustomer(ctx context.Context, req domain.CustomerRequest, existing *domain.Customer) error {
	verr, err := validationFrom(domain.Validate(req))
	if err != nil {
		return err
	}

	if _, bad := verr.Fields["customer_name"]; !bad && (existing == nil || !strings.EqualFold(existing.CustomerName, req.CustomerName)) {
		taken, err := s.backend.CustomerNameExists(ctx, req.CustomerName)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("customer_name", msgNameTaken)
		}
	}
	if _, bad := verr.Fields["email"]; !bad && (existing == nil || !strings.EqualFold(existing.Email, req.Email)) {
		taken, err := s.backend.CustomerEmailExists(ctx, req.Email)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("email", msgEmailTaken)
		}
	}
	return verr.Err()
}

// CheckAvailability is the live, debounced check behind the customer form. A
// value equal to current (the record being edited) is always available. A
// newer check for the same field from the same session returns
// uniqueness.ErrSuperseded.
func (s *Service) CheckAvailability(ctx context.Context, field string, value string, current string) (domain.AvailabilityResponse, error) {
	value = strings.TrimSpace(value)
	resp := domain.AvailabilityResponse{Field: field, Value: value, Available: true}

	var lookup uniqueness.Lookup
	switch field {
	case FieldName:
		lookup = s.backend.CustomerNameExists
	case FieldEmail:
		lookup = s.backend.CustomerEmailExists
	default:
		verr := domain.NewValidationError()
		verr.Add("field", "Must be one of: name email.")
		return resp, verr
	}
	if value == "" || (current != "" && strings.EqualFold(strings.TrimSpace(current), value)) {
		return resp, nil
	}

	key := notify.RecipientFromContext(ctx) + ":" + field
	taken, err := s.checker.Check(ctx, key, value, lookup)
	if err != nil {
		return resp, err
	}
	resp.Available = !taken
	return settle(ctx, resp, nil)
}

func trimCustomer(req domain.CustomerRequest) domain.CustomerRequest {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.Address = strings.TrimSpace(req.Address)
	req.GSTNumber = strings.ToUpper(strings.TrimSpace(req.GSTNumber))
	req.PANNumber = strings.ToUpper(strings.TrimSpace(req.PANNumber))
	return req
}

func customerFromRequest(req domain.CustomerRequest) domain.Customer {
	return domain.Customer{
		CustomerName: req.CustomerName,
		Email:        req.Email,
		Mobile:       req.Mobile,
		Address:      req.Address,
		GSTNumber:    req.GSTNumber,
		PANNumber:    req.PANNumber,
		IsActive:     true,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.backend.ListItems(ctx)
	return settle(ctx, items, err)
}

func (s *Service) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.backend.GetItem(ctx, id)
	return settle(ctx, item, err)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemRequest) (*domain.Item, error) {
	req = trimItem(req)
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	created, err := s.backend.CreateItem(ctx, domain.Item{
		ItemName:    req.ItemName,
		ItemCode:    req.ItemCode,
		Description: req.Description,
		IsActive:    true,
	})
	if err != nil {
		return nil, s.failed(ctx, "item", err)
	}
	s.logAudit(ctx, "item_create", "item", created.ID, "code="+created.ItemCode)
	return settle(ctx, created, nil)
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemRequest) (*domain.Item, error) {
	req = trimItem(req)
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	existing, err := s.backend.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item := *existing
	item.ItemName = req.ItemName
	item.ItemCode = req.ItemCode
	item.Description = req.Description
	updated, err := s.backend.UpdateItem(ctx, item)
	if err != nil {
		return nil, s.failed(ctx, "item", err)
	}
	s.logAudit(ctx, "item_update", "item", updated.ID, "code="+updated.ItemCode)
	return settle(ctx, updated, nil)
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.backend.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "item_delete", "item", id, "")
	return nil
}

func (s *Service) ToggleItemStatus(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.backend.ToggleItemStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "item_toggle", "item", item.ID, fmt.Sprintf("active=%t", item.IsActive))
	return settle(ctx, item, nil)
}

func trimItem(req domain.ItemRequest) domain.ItemRequest {
	req.ItemName = strings.TrimSpace(req.ItemName)
	req.ItemCode = strings.TrimSpace(req.ItemCode)
	req.Description = strings.TrimSpace(req.Description)
	return req
}

func (s *Service) ListUOMs(ctx context.Context) ([]domain.UOM, error) {
	uoms, err := s.backend.ListUOMs(ctx)
	return settle(ctx, uoms, err)
}

func (s *Service) CreateUOM(ctx context.Context, req domain.UOMRequest) (*domain.UOM, error) {
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	created, err := s.backend.CreateUOM(ctx, domain.UOM{Name: req.Name})
	if err != nil {
		return nil, s.failed(ctx, "uom", err)
	}
	s.logAudit(ctx, "uom_create", "uom", created.ID, "uom="+created.Name)
	return settle(ctx, created, nil)
}

func (s *Service) ListStock(ctx context.Context) ([]domain.StockItem, error) {
	stock, err := s.backend.ListStock(ctx)
	return settle(ctx, stock, err)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.backend.ListUsers(ctx)
	return settle(ctx, users, err)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserRequest) (*domain.User, error) {
	req = trimUser(req)
	verr, err := validationFrom(domain.Validate(req))
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		verr.Add("password", "This field is required.")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	created, err := s.backend.CreateUser(ctx, userFromRequest(req), req.Password)
	if err != nil {
		return nil, s.failed(ctx, "user", err)
	}
	s.logAudit(ctx, "user_create", "user", created.ID, "email="+created.Email)
	return settle(ctx, created, nil)
}

// UpdateUser keeps the current password when none is given.
func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserRequest) (*domain.User, error) {
	req = trimUser(req)
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	user := userFromRequest(req)
	user.ID = id
	updated, err := s.backend.UpdateUser(ctx, user, req.Password)
	if err != nil {
		return nil, s.failed(ctx, "user", err)
	}
	s.logAudit(ctx, "user_update", "user", updated.ID, "email="+updated.Email)
	return settle(ctx, updated, nil)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if actor, ok := ActorFromContext(ctx); ok && actor.UserID == id {
		return fmt.Errorf("cannot delete the signed-in user: %w", store.ErrConflict)
	}
	if err := s.backend.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", "user", id, "")
	return nil
}

func trimUser(req domain.UserRequest) domain.UserRequest {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	return req
}

func userFromRequest(req domain.UserRequest) domain.User {
	return domain.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Mobile:    req.Mobile,
		IsActive:  true,
	}
}

func (s *Service) AddCustomerCredit(ctx context.Context, req domain.CustomerCreditRequest) (*domain.CustomerCredit, error) {
	req.PaymentType = strings.ToLower(strings.TrimSpace(req.PaymentType))
	verr, err := validationFrom(domain.Validate(req))
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		verr.Add("amount", "Amount must be greater than 0.")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	paymentDate, _ := time.Parse("2006-01-02", req.PaymentDate)

	credit, err := s.backend.AddCustomerCredit(ctx, domain.CustomerCredit{
		CustomerID:  req.CustomerID,
		PaymentType: req.PaymentType,
		PaymentDate: paymentDate,
		Amount:      req.Amount,
	})
	if err != nil {
		return nil, s.failed(ctx, "credit", err)
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Credit added")
	s.logAudit(ctx, "credit_add", "customer", req.CustomerID, fmt.Sprintf("type=%s,amount=%s", credit.PaymentType, credit.Amount))
	return settle(ctx, credit, nil)
}
