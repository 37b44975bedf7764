package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/returns"
)

// CustomerRentals lists the rentals a return for customerID can draw from.
func (s *Service) CustomerRentals(ctx context.Context, customerID string) ([]domain.SelectableRental, error) {
	rentals, err := s.customerRentals(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return settle(ctx, returns.Selectable(rentals), nil)
}

// PreviewReturn prices a return form as it is being filled in.
func (s *Service) PreviewReturn(ctx context.Context, req domain.ReturnPreviewRequest) (domain.ReturnPreview, error) {
	form, rentals, _, err := s.returnForm(ctx, req.OnRentReturnRequest, strings.TrimSpace(req.EditingReturnNo))
	if err != nil {
		return domain.ReturnPreview{}, err
	}
	return settle(ctx, returns.Evaluate(form, rentals), nil)
}

func (s *Service) ListOnRentReturns(ctx context.Context) ([]domain.OnRentReturn, error) {
	list, err := s.backend.ListOnRentReturns(ctx)
	return settle(ctx, list, err)
}

func (s *Service) GetOnRentReturn(ctx context.Context, returnNo string) (*domain.OnRentReturn, error) {
	ret, err := s.backend.GetOnRentReturn(ctx, returnNo)
	return settle(ctx, ret, err)
}

func (s *Service) CreateOnRentReturn(ctx context.Context, req domain.OnRentReturnRequest) (*domain.OnRentReturn, error) {
	ret, err := s.buildReturn(ctx, req, "")
	if err != nil {
		return nil, err
	}
	created, err := s.backend.CreateOnRentReturn(ctx, ret)
	if err != nil {
		return nil, s.failed(ctx, "on rent return", err)
	}
	s.logAudit(ctx, "return_create", "onrent_return", created.OnRentReturnNo, fmt.Sprintf("customer=%s,total=%s", created.CustomerID, created.TotalAmount))
	return settle(ctx, created, nil)
}

func (s *Service) UpdateOnRentReturn(ctx context.Context, returnNo string, req domain.OnRentReturnRequest) (*domain.OnRentReturn, error) {
	ret, err := s.buildReturn(ctx, req, returnNo)
	if err != nil {
		return nil, err
	}
	updated, err := s.backend.UpdateOnRentReturn(ctx, ret)
	if err != nil {
		return nil, s.failed(ctx, "on rent return", err)
	}
	s.logAudit(ctx, "return_update", "onrent_return", updated.OnRentReturnNo, fmt.Sprintf("customer=%s,total=%s", updated.CustomerID, updated.TotalAmount))
	return settle(ctx, updated, nil)
}

func (s *Service) DeleteOnRentReturn(ctx context.Context, returnNo string) error {
	if err := s.backend.DeleteOnRentReturn(ctx, returnNo); err != nil {
		return err
	}
	s.logAudit(ctx, "return_delete", "onrent_return", returnNo, "")
	return nil
}

// buildReturn runs submit validation and assembles the record to send.
// editingNo is empty for a new return.
func (s *Service) buildReturn(ctx context.Context, req domain.OnRentReturnRequest, editingNo string) (domain.OnRentReturn, error) {
	verr := domain.NewValidationError()
	if strings.TrimSpace(req.CustomerID) == "" {
		verr.Add("customer_id", "Customer Name is required.")
	}
	if _, ok := parseDate(req.OnRentReturnDate); !ok {
		verr.Add("on_rent_return_date", "This field is required.")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "Select at least one item to return.")
	}
	if err := verr.Err(); err != nil {
		return domain.OnRentReturn{}, err
	}

	form, rentals, existing, err := s.returnForm(ctx, req, editingNo)
	if err != nil {
		return domain.OnRentReturn{}, err
	}
	preview := returns.Evaluate(form, rentals)
	for rowID, message := range preview.Errors {
		verr.Add(rowID, message)
	}
	for _, line := range form.Lines {
		rental, ok := rentals[line.OnRentNo]
		if ok && form.ReturnDate.Before(rental.OnRentDate.Truncate(24*time.Hour)) {
			verr.Add("on_rent_return_date", "Return date cannot be before the on rent date.")
		}
	}
	if verr.Empty() && !preview.TotalAmount.IsPositive() {
		verr.Add("total_amount", "Total amount must be greater than 0.")
	}
	if err := verr.Err(); err != nil {
		return domain.OnRentReturn{}, err
	}

	ret := domain.OnRentReturn{
		OnRentReturnNo:   strings.TrimSpace(req.OnRentReturnNo),
		OnRentReturnDate: form.ReturnDate,
		CustomerID:       strings.TrimSpace(req.CustomerID),
		CustomerName:     strings.TrimSpace(req.CustomerName),
		VehicleDetails:   strings.TrimSpace(req.VehicleDetails),
		Items:            returns.Lines(form, rentals, preview),
		TotalAmount:      preview.TotalAmount,
	}
	if existing != nil {
		ret.ID = existing.ID
		ret.OnRentReturnNo = existing.OnRentReturnNo
	}
	return ret, nil
}

// returnForm loads what a return form is checked against: the customer's
// rentals and, when editing, the return's own earlier quantities.
func (s *Service) returnForm(ctx context.Context, req domain.OnRentReturnRequest, editingNo string) (returns.Form, map[string]domain.OnRent, *domain.OnRentReturn, error) {
	form := returns.Form{Lines: req.Items}
	if date, ok := parseDate(req.OnRentReturnDate); ok {
		form.ReturnDate = date
	}

	var existing *domain.OnRentReturn
	if editingNo != "" {
		ret, err := s.backend.GetOnRentReturn(ctx, editingNo)
		if err != nil {
			return returns.Form{}, nil, nil, err
		}
		existing = ret
		form.Previous = make(map[string]decimal.Decimal, len(ret.Items))
		for _, item := range ret.Items {
			form.Previous[item.RowID()] = form.Previous[item.RowID()].Add(item.QtyReturn)
		}
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" && existing != nil {
		customerID = existing.CustomerID
	}
	list, err := s.customerRentals(ctx, customerID)
	if err != nil {
		return returns.Form{}, nil, nil, err
	}
	rentals := make(map[string]domain.OnRent, len(list))
	for _, rental := range list {
		rentals[rental.OnRentNo] = rental
	}
	return form, rentals, existing, nil
}
