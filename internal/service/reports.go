package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/report"
)

// Statement builds a customer's statement as of now.
func (s *Service) Statement(ctx context.Context, customerID string) (*report.Statement, error) {
	customer, err := s.backend.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rentals, err := s.customerRentals(ctx, customerID)
	if err != nil {
		return nil, err
	}
	all, err := s.backend.ListPayments(ctx)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(all))
	for _, payment := range all {
		if payment.CustomerID == customerID {
			payments = append(payments, payment)
		}
	}

	st, err := report.BuildStatement(s.company, *customer, rentals, payments, s.now())
	if errors.Is(err, report.ErrNoData) {
		return nil, &domain.ValidationError{Message: report.ErrNoData.Error()}
	}
	return settle(ctx, st, err)
}

// SendStatement mails the customer's statement through the backend and keeps
// a copy in the report archive.
func (s *Service) SendStatement(ctx context.Context, customerID string) error {
	st, err := s.Statement(ctx, customerID)
	if err != nil {
		return err
	}
	pdf, err := report.RenderPDF(st)
	if err != nil {
		return fmt.Errorf("render statement: %w", err)
	}

	err = s.backend.SendReport(ctx, domain.ReportDelivery{
		CustomerID:   customerID,
		CustomerName: st.Customer.CustomerName,
		PDFBase64:    base64.StdEncoding.EncodeToString(pdf),
	})
	if err != nil {
		if ctx.Err() == nil {
			s.notifier.Notify(ctx, notify.LevelError, "Failed to send email: "+describe(err))
		}
		return err
	}

	key := report.ArchiveKey(customerID, st.GeneratedAt)
	if err := s.archive.Store(context.WithoutCancel(ctx), key, pdf); err != nil {
		s.logger.Warnw("failed to archive statement", "customer_id", customerID, "key", key, "error", err)
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Email sent successfully!")
	s.logAudit(ctx, "report_send", "customer", customerID, "key="+key)
	return nil
}
