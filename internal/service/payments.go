package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/allocation"
	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/notify"
)

func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	payments, err := s.backend.ListPayments(ctx)
	return settle(ctx, payments, err)
}

// CustomerReturns starts a payment sheet for a customer: every outstanding
// return, nothing selected, nothing allocated.
func (s *Service) CustomerReturns(ctx context.Context, customerID string, paid decimal.Decimal) (domain.AllocationResponse, error) {
	balances, err := s.backend.CustomerReturns(ctx, customerID)
	if err != nil {
		return domain.AllocationResponse{}, err
	}
	sheet := allocation.NewSheet(paid, balances)
	return settle(ctx, domain.AllocationResponse{Sheet: sheet, Totals: allocation.Totals(sheet)}, nil)
}

// Allocate applies one allocation step to the sheet the browser holds.
func (s *Service) Allocate(_ context.Context, req domain.AllocationRequest) (domain.AllocationResponse, error) {
	if err := domain.Validate(req); err != nil {
		return domain.AllocationResponse{}, err
	}

	sheet := req.Sheet
	var err error
	switch req.Action {
	case domain.AllocationManual:
		sheet, err = allocation.Manual(sheet, req.ReturnID, req.Amount)
	case domain.AllocationPayFull:
		sheet, err = allocation.PayFull(sheet, req.ReturnID)
	case domain.AllocationDistributeEvenly:
		sheet = allocation.DistributeEvenly(sheet)
	case domain.AllocationAutoAllocate:
		sheet = allocation.AutoAllocateRemaining(sheet)
	case domain.AllocationReset:
		sheet = allocation.Reset(sheet)
	case domain.AllocationPaidAmountChanged:
		sheet = allocation.SetPaidAmount(sheet, req.PaidAmount)
	case domain.AllocationSelect:
		sheet = allocation.Select(sheet, req.Selected)
	}
	if errors.Is(err, allocation.ErrUnknownReturn) {
		verr := domain.NewValidationError()
		verr.Add("return_id", "Return is not on this payment sheet.")
		return domain.AllocationResponse{}, verr
	}
	if err != nil {
		return domain.AllocationResponse{}, err
	}

	if s.onAllocation != nil {
		s.onAllocation(req.Action)
	}
	return domain.AllocationResponse{Sheet: sheet, Totals: allocation.Totals(sheet)}, nil
}

// SubmitPayment checks the finished sheet and posts it as one payment.
func (s *Service) SubmitPayment(ctx context.Context, req domain.PaymentSubmitRequest) (*domain.Payment, error) {
	verr := domain.NewValidationError()
	if strings.TrimSpace(req.CustomerID) == "" {
		verr.Add("customer_id", "Customer Name is required.")
	}
	if !req.Sheet.PaidAmount.IsPositive() {
		verr.Add("paid_amount", "Amount must be greater than 0.")
	}
	paymentType, ok := canonicalPaymentType(req.PaymentType)
	if !ok {
		verr.Add("payment_type", "Payment Type is required.")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if msg := allocation.Check(req.Sheet); msg != "" {
		return nil, &domain.ValidationError{Message: msg}
	}

	created, err := s.backend.CreatePayment(ctx, domain.Payment{
		CustomerID:       strings.TrimSpace(req.CustomerID),
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerEmail:    strings.TrimSpace(req.CustomerEmail),
		PaidAmount:       req.Sheet.PaidAmount,
		PaymentType:      paymentType,
		AllocatedReturns: allocation.Allocated(req.Sheet),
	})
	if err != nil {
		return nil, s.failed(ctx, "payment", err)
	}

	s.notifier.Notify(ctx, notify.LevelSuccess, "Payment saved")
	s.logAudit(ctx, "payment_create", "payment", created.ID, fmt.Sprintf("customer=%s,amount=%s,type=%s,returns=%d",
		created.CustomerID, created.PaidAmount, created.PaymentType, len(created.AllocatedReturns)))
	return settle(ctx, created, nil)
}

func canonicalPaymentType(value string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cash":
		return domain.PaymentTypeCash, true
	case "cheque":
		return domain.PaymentTypeCheque, true
	case "upi":
		return domain.PaymentTypeUPI, true
	}
	return "", false
}
