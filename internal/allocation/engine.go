// Package allocation splits one paid amount across a customer's outstanding
// returns. Every operation takes a sheet by value and returns a new one; none
// of them lets a line exceed its balance. The sheet-wide rule that allocations
// add up to the paid amount is only enforced by Check, at submit time.
package allocation

import (
	"errors"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
)

const (
	MsgExceedsBalance = "Paid amount cannot exceed balance amount for any return."
	MsgSumMismatch    = "Total allocated amount must equal paid amount."
	MsgNegative       = "Allocated amount cannot be negative."
)

var ErrUnknownReturn = errors.New("return is not on this payment sheet")

// Tolerance is the largest accepted gap between the allocated total and the paid amount.
var Tolerance = decimal.New(1, -2)

// Manual records a typed amount against one return, clamped to [0, balance].
// A return without a positive balance is settled and left untouched.
func Manual(sheet domain.PaymentSheet, returnID string, value decimal.Decimal) (domain.PaymentSheet, error) {
	out := clone(sheet)
	idx := indexOf(out, returnID)
	if idx < 0 {
		return sheet, ErrUnknownReturn
	}
	line := &out.Lines[idx]
	if settled(*line) {
		return out, nil
	}
	amount := decimal.Max(decimal.Zero, decimal.Min(value, line.BalanceAmount))
	line.AllocatedAmount = amount
	line.IsReturnCompleted = amount.Equal(line.BalanceAmount)
	if amount.IsPositive() {
		line.Selected = true
	}
	return out, nil
}

// PayFull assigns a return its whole balance when the paid amount still covers it
// after every other allocation, and whatever is left of the paid amount otherwise.
func PayFull(sheet domain.PaymentSheet, returnID string) (domain.PaymentSheet, error) {
	out := clone(sheet)
	idx := indexOf(out, returnID)
	if idx < 0 {
		return sheet, ErrUnknownReturn
	}
	line := &out.Lines[idx]
	if settled(*line) {
		return out, nil
	}

	others := decimal.Zero
	for i, other := range out.Lines {
		if i == idx || !other.Selected {
			continue
		}
		others = others.Add(other.AllocatedAmount)
	}

	line.Selected = true
	if others.Add(line.BalanceAmount).LessThanOrEqual(out.PaidAmount) {
		line.AllocatedAmount = line.BalanceAmount
		line.IsReturnCompleted = true
		return out, nil
	}
	left := decimal.Max(decimal.Zero, out.PaidAmount.Sub(others))
	line.AllocatedAmount = left
	line.IsReturnCompleted = left.Equal(line.BalanceAmount)
	return out, nil
}

// DistributeEvenly replaces the allocations of the selected returns with an even
// split of min(paid, outstanding), computed in minor units. A return whose
// balance is below the share is paid in full and the excess carries to the
// next pass. Units left over by integer division go one each to the first
// returns that still have headroom.
func DistributeEvenly(sheet domain.PaymentSheet) domain.PaymentSheet {
	out := clone(sheet)

	var open []int
	var outstanding int64
	for i := range out.Lines {
		if !out.Lines[i].Selected {
			continue
		}
		out.Lines[i].AllocatedAmount = decimal.Zero
		out.Lines[i].IsReturnCompleted = false
		if settled(out.Lines[i]) {
			continue
		}
		open = append(open, i)
		outstanding += toMinor(out.Lines[i].BalanceAmount)
	}
	if len(open) == 0 || !out.PaidAmount.IsPositive() {
		return out
	}

	remaining := toMinor(out.PaidAmount)
	if outstanding < remaining {
		remaining = outstanding
	}

	given := make(map[int]int64, len(open))
	headroom := func(i int) int64 {
		return toMinor(out.Lines[i].BalanceAmount) - given[i]
	}

	for remaining > 0 {
		eligible := open[:0:0]
		for _, i := range open {
			if headroom(i) > 0 {
				eligible = append(eligible, i)
			}
		}
		if len(eligible) == 0 {
			break
		}

		share := remaining / int64(len(eligible))
		if share == 0 {
			for _, i := range eligible {
				if remaining == 0 {
					break
				}
				given[i]++
				remaining--
			}
			continue
		}
		for _, i := range eligible {
			give := min(share, headroom(i))
			given[i] += give
			remaining -= give
		}
	}

	for _, i := range open {
		line := &out.Lines[i]
		line.AllocatedAmount = fromMinor(given[i])
		line.IsReturnCompleted = given[i] >= toMinor(line.BalanceAmount)
	}
	return out
}

// AutoAllocateRemaining walks the selected returns in order and tops each one up
// from the unallocated part of the paid amount. First fit, so the result depends
// on line order.
func AutoAllocateRemaining(sheet domain.PaymentSheet) domain.PaymentSheet {
	out := clone(sheet)
	remaining := Totals(out).Remaining
	if !remaining.IsPositive() {
		return out
	}

	for i := range out.Lines {
		line := &out.Lines[i]
		if !line.Selected || settled(*line) {
			continue
		}
		open := line.BalanceAmount.Sub(line.AllocatedAmount)
		if !open.IsPositive() {
			continue
		}
		add := decimal.Min(open, remaining)
		line.AllocatedAmount = line.AllocatedAmount.Add(add)
		line.IsReturnCompleted = line.AllocatedAmount.GreaterThanOrEqual(line.BalanceAmount)
		remaining = remaining.Sub(add)
		if !remaining.IsPositive() {
			break
		}
	}
	return out
}

// Reset clears every allocation and completion flag. Selection is kept.
func Reset(sheet domain.PaymentSheet) domain.PaymentSheet {
	out := clone(sheet)
	for i := range out.Lines {
		out.Lines[i].AllocatedAmount = decimal.Zero
		out.Lines[i].IsReturnCompleted = false
	}
	return out
}

// SetPaidAmount changes the paid amount, which invalidates every allocation.
func SetPaidAmount(sheet domain.PaymentSheet, paid decimal.Decimal) domain.PaymentSheet {
	out := Reset(sheet)
	out.PaidAmount = paid
	return out
}

// Select marks exactly the given returns as selected. Lines that drop out of the
// selection lose their allocation.
func Select(sheet domain.PaymentSheet, returnIDs []string) domain.PaymentSheet {
	out := clone(sheet)
	want := make(map[string]struct{}, len(returnIDs))
	for _, id := range returnIDs {
		want[id] = struct{}{}
	}
	for i := range out.Lines {
		_, ok := want[out.Lines[i].ReturnID]
		out.Lines[i].Selected = ok
		if !ok {
			out.Lines[i].AllocatedAmount = decimal.Zero
			out.Lines[i].IsReturnCompleted = false
		}
	}
	return out
}

// Totals sums the selected allocations and what is left of the paid amount.
func Totals(sheet domain.PaymentSheet) domain.AllocationTotals {
	allocated := decimal.Zero
	for _, line := range sheet.Lines {
		if line.Selected {
			allocated = allocated.Add(line.AllocatedAmount)
		}
	}
	return domain.AllocationTotals{
		Allocated: allocated,
		Remaining: sheet.PaidAmount.Sub(allocated),
	}
}

// Check returns the banner message for an inconsistent sheet, or "" when it can
// be submitted. The sum is taken over exactly what Allocated submits. A
// negative line comes first, then a sum mismatch, then an exceeded balance.
func Check(sheet domain.PaymentSheet) string {
	msg := ""
	for _, line := range sheet.Lines {
		if line.Selected && line.AllocatedAmount.GreaterThan(line.BalanceAmount) {
			msg = MsgExceedsBalance
			break
		}
	}
	submitted := decimal.Zero
	for _, ret := range Allocated(sheet) {
		submitted = submitted.Add(ret.AllocatedAmount)
	}
	if submitted.Sub(sheet.PaidAmount).Abs().GreaterThan(Tolerance) {
		msg = MsgSumMismatch
	}
	for _, line := range sheet.Lines {
		if line.Selected && line.AllocatedAmount.IsNegative() {
			return MsgNegative
		}
	}
	return msg
}

// Allocated lists the selected returns that received money, in sheet order,
// ready for submission.
func Allocated(sheet domain.PaymentSheet) []domain.AllocatedReturn {
	result := make([]domain.AllocatedReturn, 0, len(sheet.Lines))
	for _, line := range sheet.Lines {
		if !line.Selected || !line.AllocatedAmount.IsPositive() {
			continue
		}
		result = append(result, domain.AllocatedReturn{
			ReturnID:          line.ReturnID,
			ReturnNumber:      line.ReturnNumber,
			AllocatedAmount:   line.AllocatedAmount,
			IsReturnCompleted: line.AllocatedAmount.GreaterThanOrEqual(line.BalanceAmount),
		})
	}
	return result
}

// NewSheet starts a payment sheet from the backend's outstanding returns with
// nothing allocated and nothing selected.
func NewSheet(paid decimal.Decimal, balances []domain.ReturnBalance) domain.PaymentSheet {
	lines := make([]domain.AllocationLine, 0, len(balances))
	for _, b := range balances {
		lines = append(lines, domain.AllocationLine{
			ReturnID:      b.ID,
			ReturnNumber:  b.ReturnNumber,
			TotalAmount:   b.TotalAmount,
			BalanceAmount: b.BalanceAmount,
		})
	}
	return domain.PaymentSheet{PaidAmount: paid, Lines: lines}
}

func settled(line domain.AllocationLine) bool {
	return !line.BalanceAmount.IsPositive()
}

func indexOf(sheet domain.PaymentSheet, returnID string) int {
	for i, line := range sheet.Lines {
		if line.ReturnID == returnID {
			return i
		}
	}
	return -1
}

func clone(sheet domain.PaymentSheet) domain.PaymentSheet {
	lines := make([]domain.AllocationLine, len(sheet.Lines))
	copy(lines, sheet.Lines)
	return domain.PaymentSheet{PaidAmount: sheet.PaidAmount, Lines: lines}
}

// toMinor truncates to whole paise so a converted balance never exceeds the original.
func toMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Floor().IntPart()
}

func fromMinor(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}
