// Package stock bounds the quantities a rental may hold against the stock on hand.
//
// The backend deducts a rental's quantities from stock when the rental is saved,
// so while that rental is being edited only the change from its original
// quantity has to fit in what remains:
//
//	available = total - (current - initial)
package stock

import (
	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
)

// Available is the stock left for an item after the rental moves from initial to current.
func Available(total decimal.Decimal, current decimal.Decimal, initial decimal.Decimal) decimal.Decimal {
	return total.Sub(current.Sub(initial))
}

// Ledger tracks one rental edit session. Items missing from the stock list have
// a total of zero.
type Ledger struct {
	total   map[string]decimal.Decimal
	initial map[string]decimal.Decimal
	current map[string]decimal.Decimal
}

// NewLedger starts a session. initial holds the quantities the rental already
// reserved when editing began (empty for a new rental); they are also the
// starting current quantities.
func NewLedger(items []domain.StockItem, initial map[string]decimal.Decimal) *Ledger {
	l := &Ledger{
		total:   make(map[string]decimal.Decimal, len(items)),
		initial: make(map[string]decimal.Decimal, len(initial)),
		current: make(map[string]decimal.Decimal, len(initial)),
	}
	for _, item := range items {
		l.total[item.ItemID] = item.Qty
	}
	for itemID, qty := range initial {
		l.initial[itemID] = qty
		l.current[itemID] = qty
	}
	return l
}

// Available reports the stock left for itemID at the current quantity.
func (l *Ledger) Available(itemID string) decimal.Decimal {
	return Available(l.total[itemID], l.current[itemID], l.initial[itemID])
}

func (l *Ledger) Qty(itemID string) decimal.Decimal {
	return l.current[itemID]
}

// Set moves itemID to qty unless that would take available stock below zero or
// qty is negative. A refused edit keeps the previous quantity; callers read the
// returned quantity rather than treating the refusal as an error.
func (l *Ledger) Set(itemID string, qty decimal.Decimal) (bool, decimal.Decimal) {
	if qty.IsNegative() {
		return false, l.current[itemID]
	}
	if Available(l.total[itemID], qty, l.initial[itemID]).IsNegative() {
		return false, l.current[itemID]
	}
	l.current[itemID] = qty
	return true, qty
}

// Shortfalls applies every quantity in want and reports the items that could
// not be moved, with the stock that was available for each.
func (l *Ledger) Shortfalls(want map[string]decimal.Decimal) map[string]decimal.Decimal {
	short := make(map[string]decimal.Decimal)
	for itemID, qty := range want {
		if ok, _ := l.Set(itemID, qty); !ok {
			short[itemID] = Available(l.total[itemID], l.current[itemID], l.initial[itemID])
		}
	}
	return short
}
