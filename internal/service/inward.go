package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
)

const msgBadAttachment = "Attachment must be an image or a PDF."

func (s *Service) ListInwards(ctx context.Context) ([]domain.Inward, error) {
	inwards, err := s.backend.ListInwards(ctx)
	return settle(ctx, inwards, err)
}

func (s *Service) GetInward(ctx context.Context, id string) (*domain.Inward, error) {
	inward, err := s.backend.GetInward(ctx, id)
	return settle(ctx, inward, err)
}

func (s *Service) CreateInward(ctx context.Context, req domain.InwardRequest) (*domain.Inward, error) {
	inward, err := inwardFromRequest(req)
	if err != nil {
		return nil, err
	}
	created, err := s.backend.CreateInward(ctx, inward)
	if err != nil {
		return nil, s.failed(ctx, "inward", err)
	}
	s.logAudit(ctx, "inward_create", "inward", created.ID, fmt.Sprintf("items=%d,total=%s", len(created.Items), created.TotalAmount))
	return settle(ctx, created, nil)
}

func (s *Service) UpdateInward(ctx context.Context, id string, req domain.InwardRequest) (*domain.Inward, error) {
	inward, err := inwardFromRequest(req)
	if err != nil {
		return nil, err
	}
	inward.ID = id
	updated, err := s.backend.UpdateInward(ctx, inward)
	if err != nil {
		return nil, s.failed(ctx, "inward", err)
	}
	s.logAudit(ctx, "inward_update", "inward", updated.ID, fmt.Sprintf("items=%d,total=%s", len(updated.Items), updated.TotalAmount))
	return settle(ctx, updated, nil)
}

func (s *Service) DeleteInward(ctx context.Context, id string) error {
	if err := s.backend.DeleteInward(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "inward_delete", "inward", id, "")
	return nil
}

// CheckAttachment sniffs an uploaded file before the form is submitted.
func (s *Service) CheckAttachment(_ context.Context, req domain.AttachmentCheckRequest) (domain.AttachmentCheckResponse, error) {
	if err := domain.Validate(req); err != nil {
		return domain.AttachmentCheckResponse{}, err
	}
	contentType, accepted := sniffAttachment(req.Attachment)
	return domain.AttachmentCheckResponse{ContentType: contentType, Accepted: accepted}, nil
}

// InwardLineAmount prices an inward line by weight for weight-measured items
// and by count otherwise.
func InwardLineAmount(uom string, qty decimal.Decimal, weight decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if uom == domain.UOMWeight {
		return weight.Mul(rate)
	}
	return qty.Mul(rate)
}

func inwardFromRequest(req domain.InwardRequest) (domain.Inward, error) {
	verr, err := validationFrom(domain.Validate(req))
	if err != nil {
		return domain.Inward{}, err
	}

	inward := domain.Inward{
		InwardNo:    strings.TrimSpace(req.InwardNo),
		Attachment:  strings.TrimSpace(req.Attachment),
		Items:       make([]domain.InwardItem, 0, len(req.Items)),
		TotalAmount: decimal.Zero,
	}
	if date, ok := parseDate(req.InwardDate); ok {
		inward.InwardDate = date
	}

	for i, line := range req.Items {
		uom := strings.ToLower(strings.TrimSpace(line.UOM))
		if uom == "" {
			verr.Add(itemField(i, "uom"), "This field is required.")
		}
		if !line.Qty.IsPositive() {
			verr.Add(itemField(i, "qty"), "Qty must be greater than 0.")
		}
		if !line.Weight.IsPositive() {
			verr.Add(itemField(i, "weight"), "Weight must be greater than 0.")
		}
		if !line.Rate.IsPositive() {
			verr.Add(itemField(i, "rate"), "Rate must be greater than 0.")
		}
		amount := InwardLineAmount(uom, line.Qty, line.Weight, line.Rate)
		inward.Items = append(inward.Items, domain.InwardItem{
			ItemID:      line.ItemID,
			ItemName:    line.ItemName,
			UOM:         uom,
			Qty:         line.Qty,
			Weight:      line.Weight,
			Rate:        line.Rate,
			TotalAmount: amount,
		})
		inward.TotalAmount = inward.TotalAmount.Add(amount)
	}

	if len(req.Items) > 0 && !inward.TotalAmount.IsPositive() {
		verr.Add("total_amount", "Total amount must be greater than 0.")
	}
	if inward.Attachment != "" {
		if _, ok := sniffAttachment(inward.Attachment); !ok {
			verr.Add("attachment", msgBadAttachment)
		}
	}
	if err := verr.Err(); err != nil {
		return domain.Inward{}, err
	}
	return inward, nil
}

// sniffAttachment decodes a base64 upload, with or without a data URL prefix,
// and reports its content type and whether it is an image or a PDF.
func sniffAttachment(encoded string) (string, bool) {
	if _, payload, ok := strings.Cut(encoded, ";base64,"); ok {
		encoded = payload
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	contentType := http.DetectContentType(raw)
	mediaType, _, _ := strings.Cut(contentType, ";")
	accepted := strings.HasPrefix(mediaType, "image/") || mediaType == "application/pdf"
	return mediaType, accepted
}
