package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/returns"
	"rentaldesk/console/internal/stock"
)

// ListOnRents returns every rental with its day count and active flag worked
// out for today.
func (s *Service) ListOnRents(ctx context.Context) ([]domain.OnRentSummary, error) {
	rentals, err := s.backend.ListOnRents(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	summaries := make([]domain.OnRentSummary, 0, len(rentals))
	for _, rental := range rentals {
		rental.IsActive = returns.IsActive(rental)
		summaries = append(summaries, domain.OnRentSummary{
			OnRent:   rental,
			UsedDays: returns.OnRentUsedDays(rental.OnRentDate, now),
		})
	}
	return settle(ctx, summaries, nil)
}

func (s *Service) GetOnRent(ctx context.Context, onRentNo string) (*domain.OnRentSummary, error) {
	rental, err := s.backend.GetOnRent(ctx, onRentNo)
	if err != nil {
		return nil, err
	}
	rental.IsActive = returns.IsActive(*rental)
	return settle(ctx, &domain.OnRentSummary{
		OnRent:   *rental,
		UsedDays: returns.OnRentUsedDays(rental.OnRentDate, s.now()),
	}, nil)
}

func (s *Service) CreateOnRent(ctx context.Context, req domain.OnRentRequest) (*domain.OnRent, error) {
	rental, verr := onRentFromRequest(req)
	if err := s.checkStock(ctx, rental, nil, verr); err != nil {
		return nil, err
	}

	created, err := s.backend.CreateOnRent(ctx, rental)
	if err != nil {
		return nil, s.failed(ctx, "on rent", err)
	}
	s.logAudit(ctx, "onrent_create", "onrent", created.OnRentNo, fmt.Sprintf("customer=%s,items=%d", created.CustomerID, len(created.Items)))
	return settle(ctx, created, nil)
}

func (s *Service) UpdateOnRent(ctx context.Context, onRentNo string, req domain.OnRentRequest) (*domain.OnRent, error) {
	existing, err := s.backend.GetOnRent(ctx, onRentNo)
	if err != nil {
		return nil, err
	}
	rental, verr := onRentFromRequest(req)
	if err := s.checkStock(ctx, rental, quantities(existing.Items), verr); err != nil {
		return nil, err
	}

	rental.ID = existing.ID
	rental.OnRentNo = existing.OnRentNo
	rental.IsActive = existing.IsActive
	updated, err := s.backend.UpdateOnRent(ctx, rental)
	if err != nil {
		return nil, s.failed(ctx, "on rent", err)
	}
	s.logAudit(ctx, "onrent_update", "onrent", updated.OnRentNo, fmt.Sprintf("customer=%s,items=%d", updated.CustomerID, len(updated.Items)))
	return settle(ctx, updated, nil)
}

func (s *Service) DeleteOnRent(ctx context.Context, onRentNo string) error {
	if err := s.backend.DeleteOnRent(ctx, onRentNo); err != nil {
		return err
	}
	s.logAudit(ctx, "onrent_delete", "onrent", onRentNo, "")
	return nil
}

func (s *Service) ToggleOnRent(ctx context.Context, id string) (*domain.OnRent, error) {
	rental, err := s.backend.ToggleOnRent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "onrent_toggle", "onrent", rental.OnRentNo, fmt.Sprintf("active=%t", rental.IsActive))
	return settle(ctx, rental, nil)
}

// CheckQuantity replays one quantity edit on a rental form. A refused edit is
// not an error: the response carries the quantity the form keeps.
func (s *Service) CheckQuantity(ctx context.Context, req domain.QuantityCheckRequest) (domain.QuantityCheckResponse, error) {
	if err := domain.Validate(req); err != nil {
		return domain.QuantityCheckResponse{}, err
	}
	items, err := s.backend.ListStock(ctx)
	if err != nil {
		return domain.QuantityCheckResponse{}, err
	}

	ledger := stock.NewLedger(items, map[string]decimal.Decimal{req.ItemID: req.InitialQty})
	ledger.Set(req.ItemID, req.PreviousQty)
	accepted, qty := ledger.Set(req.ItemID, req.Qty)
	return settle(ctx, domain.QuantityCheckResponse{
		ItemID:    req.ItemID,
		Accepted:  accepted,
		Qty:       qty,
		Available: ledger.Available(req.ItemID),
	}, nil)
}

// checkStock adds a field error for every line whose item would be taken below
// zero. initial is what the rental already holds (nil for a new rental).
func (s *Service) checkStock(ctx context.Context, rental domain.OnRent, initial map[string]decimal.Decimal, verr *domain.ValidationError) error {
	if verr.Empty() {
		items, err := s.backend.ListStock(ctx)
		if err != nil {
			return err
		}
		ledger := stock.NewLedger(items, initial)
		short := ledger.Shortfalls(quantities(rental.Items))
		for i, line := range rental.Items {
			if available, ok := short[line.ItemID]; ok {
				verr.Add(itemField(i, "qty_or_weight"), fmt.Sprintf("Only %s available in stock.", decimal.Max(available, decimal.Zero)))
			}
		}
	}
	return verr.Err()
}

// quantities totals the rented quantity per item.
func quantities(items []domain.RentedItem) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		out[item.ItemID] = out[item.ItemID].Add(item.QtyOrWeight)
	}
	return out
}

func onRentFromRequest(req domain.OnRentRequest) (domain.OnRent, *domain.ValidationError) {
	verr := domain.NewValidationError()
	rental := domain.OnRent{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		VehicleDetails: strings.TrimSpace(req.VehicleDetails),
		Items:          make([]domain.RentedItem, 0, len(req.Items)),
		IsActive:       true,
	}

	if date, ok := parseDate(req.OnRentDate); ok {
		rental.OnRentDate = date
	} else {
		verr.Add("on_rent_date", "This field is required.")
	}
	if rental.CustomerID == "" {
		verr.Add("customer_id", "Customer Name is required.")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "Add at least one item.")
	}

	for i, line := range req.Items {
		uom := strings.ToLower(strings.TrimSpace(line.UOM))
		if strings.TrimSpace(line.ItemID) == "" {
			verr.Add(itemField(i, "item_id"), "This field is required.")
		}
		if uom == "" {
			verr.Add(itemField(i, "uom"), "This field is required.")
		}
		if !line.QtyOrWeight.IsPositive() {
			verr.Add(itemField(i, "qty_or_weight"), "Qty must be greater than 0.")
		}
		if !line.PerDayRate.IsPositive() {
			verr.Add(itemField(i, "per_day_rate"), "Per day rate must be greater than 0.")
		}
		rental.Items = append(rental.Items, domain.RentedItem{
			ItemID:       strings.TrimSpace(line.ItemID),
			ItemName:     line.ItemName,
			UOM:          uom,
			QtyOrWeight:  line.QtyOrWeight,
			RemainingQty: line.QtyOrWeight,
			PerDayRate:   line.PerDayRate,
		})
	}
	return rental, verr
}

// customerRentals keys a customer's rentals by on-rent number.
func (s *Service) customerRentals(ctx context.Context, customerID string) ([]domain.OnRent, error) {
	all, err := s.backend.ListOnRents(ctx)
	if err != nil {
		return nil, err
	}
	rentals := make([]domain.OnRent, 0, len(all))
	for _, rental := range all {
		if rental.CustomerID == customerID {
			rentals = append(rentals, rental)
		}
	}
	sort.SliceStable(rentals, func(i, j int) bool {
		return rentals[i].OnRentDate.Before(rentals[j].OnRentDate)
	})
	return rentals, nil
}
