// Package returns caps return quantities and prices returned lines.
package returns

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

var (
	ErrQtyNotPositive = errors.New("Return qty must be greater than 0.")
	ErrQtyExceeds     = errors.New("Return qty exceeds available qty.")
)

// UsedDays is the billable day count on the return form: whole days from the
// rent date to the return date, rounded up. It is not floored, so a return
// dated on the rent date bills zero days.
func UsedDays(onRentDate time.Time, returnDate time.Time) int64 {
	return ceilDiv(returnDate.Sub(onRentDate).Milliseconds(), dayMillis)
}

// OnRentUsedDays is the day count shown for an open rental. It rounds up like
// UsedDays but never drops below one day.
func OnRentUsedDays(onRentDate time.Time, asOf time.Time) int64 {
	return max(UsedDays(onRentDate, asOf), 1)
}

// ElapsedDays counts completed days since the rent date. The customer statement
// prices outstanding quantities with it.
func ElapsedDays(onRentDate time.Time, asOf time.Time) int64 {
	return floorDiv(asOf.Sub(onRentDate).Milliseconds(), dayMillis)
}

func LineAmount(qty decimal.Decimal, perDayRate decimal.Decimal, usedDays int64) decimal.Decimal {
	return qty.Mul(perDayRate).Mul(decimal.NewFromInt(usedDays))
}

// MaxReturnQty is the ceiling for a return line. A new return may take back the
// whole rented quantity. An edited return adds its own earlier quantity back
// onto the backend's remaining figure, which already excludes it.
func MaxReturnQty(item domain.RentedItem, editing bool, previouslyReturned decimal.Decimal) decimal.Decimal {
	if !editing {
		return item.QtyOrWeight
	}
	return item.RemainingQty.Add(previouslyReturned)
}

// CheckQty validates one return line against its ceiling.
func CheckQty(qty decimal.Decimal, maxQty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrQtyNotPositive
	}
	if qty.GreaterThan(maxQty) {
		return ErrQtyExceeds
	}
	return nil
}

// Returnable reports whether a rented line can still be picked on a return form.
func Returnable(item domain.RentedItem) bool {
	return !item.IsCompleted && item.RemainingQty.IsPositive()
}

// Selectable narrows rentals down to those with at least one returnable line,
// keeping only those lines.
func Selectable(rentals []domain.OnRent) []domain.SelectableRental {
	result := make([]domain.SelectableRental, 0, len(rentals))
	for _, rental := range rentals {
		items := make([]domain.RentedItem, 0, len(rental.Items))
		for _, item := range rental.Items {
			if Returnable(item) {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			continue
		}
		result = append(result, domain.SelectableRental{
			OnRentNo:   rental.OnRentNo,
			OnRentDate: rental.OnRentDate,
			Items:      items,
		})
	}
	return result
}

// IsActive is false once every line of the rental has been returned.
func IsActive(rental domain.OnRent) bool {
	if len(rental.Items) == 0 {
		return false
	}
	for _, item := range rental.Items {
		if !item.RemainingQty.IsZero() {
			return true
		}
	}
	return false
}

// Form is a return being entered or edited.
type Form struct {
	ReturnDate time.Time
	Lines      []domain.ReturnItemRequest
	// Previous holds the quantities of the return being edited, keyed by row id.
	// Nil for a new return.
	Previous map[string]decimal.Decimal
}

func (f Form) editing() bool {
	return f.Previous != nil
}

// Evaluate prices every line of the form and collects row errors keyed by row
// id. rentals must be keyed by on-rent number.
func Evaluate(form Form, rentals map[string]domain.OnRent) domain.ReturnPreview {
	preview := domain.ReturnPreview{
		Rows:        make([]domain.ReturnPreviewRow, 0, len(form.Lines)),
		TotalAmount: decimal.Zero,
		Errors:      make(map[string]string),
	}

	// Repeated rows for the same rented line share one cap.
	requested := make(map[string]decimal.Decimal, len(form.Lines))
	for _, line := range form.Lines {
		rowID := domain.RowID(line.ItemID, line.OnRentNo)
		row := domain.ReturnPreviewRow{
			RowID:     rowID,
			OnRentNo:  line.OnRentNo,
			ItemID:    line.ItemID,
			QtyReturn: line.QtyReturn,
			Amount:    decimal.Zero,
		}

		rental, ok := rentals[line.OnRentNo]
		if !ok {
			row.Error = "On rent record not found."
			preview.Errors[rowID] = row.Error
			preview.Rows = append(preview.Rows, row)
			continue
		}
		item, ok := findItem(rental, line.ItemID)
		if !ok {
			row.Error = "Item is not part of this on rent record."
			preview.Errors[rowID] = row.Error
			preview.Rows = append(preview.Rows, row)
			continue
		}

		row.MaxQty = MaxReturnQty(item, form.editing(), form.Previous[rowID])
		err := CheckQty(line.QtyReturn, row.MaxQty)
		if err == nil {
			requested[rowID] = requested[rowID].Add(line.QtyReturn)
			if requested[rowID].GreaterThan(row.MaxQty) {
				err = ErrQtyExceeds
			}
		}
		if err != nil {
			row.Error = err.Error()
			preview.Errors[rowID] = row.Error
		}
		if !form.ReturnDate.IsZero() {
			row.UsedDays = UsedDays(rental.OnRentDate, form.ReturnDate)
			row.Amount = LineAmount(line.QtyReturn, item.PerDayRate, row.UsedDays)
			preview.TotalAmount = preview.TotalAmount.Add(row.Amount)
		}
		preview.Rows = append(preview.Rows, row)
	}

	if len(preview.Errors) == 0 {
		preview.Errors = nil
	}
	return preview
}

// Lines turns an evaluated form into the returned lines sent to the backend.
func Lines(form Form, rentals map[string]domain.OnRent, preview domain.ReturnPreview) []domain.ReturnedItem {
	items := make([]domain.ReturnedItem, 0, len(preview.Rows))
	for i, row := range preview.Rows {
		rental := rentals[row.OnRentNo]
		item, _ := findItem(rental, row.ItemID)
		items = append(items, domain.ReturnedItem{
			OnRentNo:    row.OnRentNo,
			ItemID:      row.ItemID,
			ItemName:    item.ItemName,
			UOM:         item.UOM,
			QtyOrWeight: item.QtyOrWeight,
			QtyReturn:   form.Lines[i].QtyReturn,
			PerDayRate:  item.PerDayRate,
			UsedDays:    row.UsedDays,
			Amount:      row.Amount,
		})
	}
	return items
}

func findItem(rental domain.OnRent, itemID string) (domain.RentedItem, bool) {
	for _, item := range rental.Items {
		if item.ItemID == itemID {
			return item, true
		}
	}
	return domain.RentedItem{}, false
}

func ceilDiv(a int64, b int64) int64 {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

func floorDiv(a int64, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
