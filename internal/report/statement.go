// Package report builds the customer statement and renders it as CSV or PDF.
package report

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/returns"
)

var ErrNoData = errors.New("No data available to generate report")

// Row is one rented line on the statement. Outstanding rows price the
// quantity still out on rent up to the statement date.
type Row struct {
	OnRentNo    string          `json:"on_rent_no"`
	OnRentDate  time.Time       `json:"on_rent_date"`
	ItemName    string          `json:"item_name"`
	UOM         string          `json:"uom"`
	TotalQty    decimal.Decimal `json:"total_qty"`
	ReturnQty   decimal.Decimal `json:"return_qty"`
	BalanceQty  decimal.Decimal `json:"balance_qty"`
	ReturnDate  time.Time       `json:"return_date"`
	PerDayRate  decimal.Decimal `json:"per_day_rate"`
	UsedDays    int64           `json:"used_days"`
	Amount      decimal.Decimal `json:"amount"`
	Outstanding bool            `json:"outstanding"`
}

type PaymentRow struct {
	Date        time.Time       `json:"date"`
	PaymentType string          `json:"payment_type"`
	Amount      decimal.Decimal `json:"amount"`
}

type Statement struct {
	Company       string          `json:"company"`
	Customer      domain.Customer `json:"customer"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Rows          []Row           `json:"rows"`
	Payments      []PaymentRow    `json:"payments"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
}

// BuildStatement collects the customer's rentals and payments as of now.
func BuildStatement(company string, customer domain.Customer, rentals []domain.OnRent, payments []domain.Payment, now time.Time) (*Statement, error) {
	st := &Statement{
		Company:     company,
		Customer:    customer,
		GeneratedAt: now,
		Rows:        make([]Row, 0),
		Payments:    make([]PaymentRow, 0),
		TotalAmount: decimal.Zero,
		PaidAmount:  decimal.Zero,
	}

	for _, rental := range rentals {
		if rental.CustomerID != customer.ID {
			continue
		}
		for _, item := range rental.Items {
			row := Row{
				OnRentNo:   rental.OnRentNo,
				OnRentDate: rental.OnRentDate,
				ItemName:   item.ItemName,
				UOM:        item.UOM,
				TotalQty:   item.QtyOrWeight,
				ReturnQty:  item.QtyReturn,
				BalanceQty: item.RemainingQty,
				ReturnDate: now,
				PerDayRate: item.PerDayRate,
				UsedDays:   item.UsedDays,
				Amount:     item.Amount,
			}
			if item.OnRentReturnDate != nil {
				row.ReturnDate = *item.OnRentReturnDate
			}
			st.Rows = append(st.Rows, row)

			if item.RemainingQty.IsPositive() {
				days := returns.ElapsedDays(rental.OnRentDate, now)
				outstanding := row
				outstanding.ReturnQty = decimal.Zero
				outstanding.ReturnDate = now
				outstanding.UsedDays = days
				outstanding.Amount = returns.LineAmount(item.RemainingQty, item.PerDayRate, days)
				outstanding.Outstanding = true
				st.Rows = append(st.Rows, outstanding)
			}
		}
	}

	for _, payment := range payments {
		if payment.CustomerID != customer.ID {
			continue
		}
		st.Payments = append(st.Payments, PaymentRow{
			Date:        payment.CreatedAt,
			PaymentType: DisplayPaymentType(payment.PaymentType),
			Amount:      payment.PaidAmount,
		})
	}
	slices.SortStableFunc(st.Payments, func(a, b PaymentRow) int {
		return a.Date.Compare(b.Date)
	})

	if len(st.Rows) == 0 && len(st.Payments) == 0 {
		return nil, ErrNoData
	}

	for _, row := range st.Rows {
		st.TotalAmount = st.TotalAmount.Add(row.Amount)
	}
	for _, p := range st.Payments {
		st.PaidAmount = st.PaidAmount.Add(p.Amount)
	}
	st.BalanceAmount = st.TotalAmount.Sub(st.PaidAmount)
	return st, nil
}

var titleCaser = cases.Title(language.English)

// DisplayPaymentType normalizes a stored payment type for display. Missing
// types read as cash.
func DisplayPaymentType(paymentType string) string {
	switch strings.ToLower(strings.TrimSpace(paymentType)) {
	case "":
		return domain.PaymentTypeCash
	case "cash":
		return domain.PaymentTypeCash
	case "cheque":
		return domain.PaymentTypeCheque
	case "upi":
		return domain.PaymentTypeUPI
	default:
		return titleCaser.String(paymentType)
	}
}
