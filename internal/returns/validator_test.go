package returns

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentaldesk/console/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(value string) time.Time {
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return ts
}

func rental() domain.OnRent {
	return domain.OnRent{
		OnRentNo:   "OR-0001",
		OnRentDate: day("2024-03-01"),
		Items: []domain.RentedItem{
			{ItemID: "item-1", ItemName: "Prop", UOM: "qty", QtyOrWeight: d("20"), QtyReturn: d("5"), RemainingQty: d("15"), PerDayRate: d("2.5")},
			{ItemID: "item-2", ItemName: "Plate", UOM: "weight", QtyOrWeight: d("10"), QtyReturn: d("10"), RemainingQty: d("0"), PerDayRate: d("1"), IsCompleted: true},
		},
	}
}

func TestUsedDaysRoundsUpWithoutFloor(t *testing.T) {
	start := day("2024-03-01")
	assert.Equal(t, int64(0), UsedDays(start, start))
	assert.Equal(t, int64(1), UsedDays(start, start.Add(time.Hour)))
	assert.Equal(t, int64(9), UsedDays(start, day("2024-03-10")))
	assert.Equal(t, int64(-1), UsedDays(start, day("2024-02-29")))
}

func TestOnRentUsedDaysFloorsAtOne(t *testing.T) {
	start := day("2024-03-01")
	assert.Equal(t, int64(1), OnRentUsedDays(start, start))
	assert.Equal(t, int64(1), OnRentUsedDays(start, day("2024-02-20")))
	assert.Equal(t, int64(3), OnRentUsedDays(start, day("2024-03-03").Add(time.Minute)))
}

func TestElapsedDaysTruncates(t *testing.T) {
	start := day("2024-03-01")
	assert.Equal(t, int64(2), ElapsedDays(start, day("2024-03-03").Add(23*time.Hour)))
	assert.Equal(t, int64(-1), ElapsedDays(start, start.Add(-time.Hour)))
}

func TestLineAmount(t *testing.T) {
	assert.Equal(t, "45", LineAmount(d("6"), d("2.5"), 3).String())
}

func TestMaxReturnQty(t *testing.T) {
	item := rental().Items[0]
	assert.True(t, MaxReturnQty(item, false, decimal.Zero).Equal(d("20")))
	assert.True(t, MaxReturnQty(item, true, d("5")).Equal(d("20")))
}

func TestCheckQty(t *testing.T) {
	assert.ErrorIs(t, CheckQty(d("0"), d("20")), ErrQtyNotPositive)
	assert.ErrorIs(t, CheckQty(d("21"), d("20")), ErrQtyExceeds)
	assert.NoError(t, CheckQty(d("20"), d("20")))
	assert.NoError(t, CheckQty(d("18"), d("20")))
}

func TestEvaluateEditReconstructsCeiling(t *testing.T) {
	rentals := map[string]domain.OnRent{"OR-0001": rental()}
	form := Form{
		ReturnDate: day("2024-03-05"),
		Lines:      []domain.ReturnItemRequest{{OnRentNo: "OR-0001", ItemID: "item-1", QtyReturn: d("18")}},
		Previous:   map[string]decimal.Decimal{"item-1_OR-0001": d("5")},
	}

	preview := Evaluate(form, rentals)

	require.Len(t, preview.Rows, 1)
	row := preview.Rows[0]
	assert.Empty(t, row.Error)
	assert.Nil(t, preview.Errors)
	assert.True(t, row.MaxQty.Equal(d("20")))
	assert.Equal(t, int64(4), row.UsedDays)
	assert.True(t, row.Amount.Equal(d("180")))
	assert.True(t, preview.TotalAmount.Equal(d("180")))
}

func TestEvaluateKeysErrorsByRow(t *testing.T) {
	rentals := map[string]domain.OnRent{"OR-0001": rental()}
	form := Form{
		ReturnDate: day("2024-03-02"),
		Lines: []domain.ReturnItemRequest{
			{OnRentNo: "OR-0001", ItemID: "item-1", QtyReturn: d("21")},
			{OnRentNo: "OR-0001", ItemID: "item-2", QtyReturn: d("0")},
			{OnRentNo: "OR-0009", ItemID: "item-1", QtyReturn: d("1")},
		},
	}

	preview := Evaluate(form, rentals)

	assert.Equal(t, "Return qty exceeds available qty.", preview.Errors["item-1_OR-0001"])
	assert.Equal(t, "Return qty must be greater than 0.", preview.Errors["item-2_OR-0001"])
	assert.Contains(t, preview.Errors, "item-1_OR-0009")
}

func TestEvaluateSumsRepeatedRowsAgainstOneCap(t *testing.T) {
	rentals := map[string]domain.OnRent{"OR-0001": rental()}
	form := Form{
		ReturnDate: day("2024-03-02"),
		Lines: []domain.ReturnItemRequest{
			{OnRentNo: "OR-0001", ItemID: "item-1", QtyReturn: d("15")},
			{OnRentNo: "OR-0001", ItemID: "item-1", QtyReturn: d("15")},
		},
	}

	preview := Evaluate(form, rentals)

	require.Len(t, preview.Rows, 2)
	assert.Empty(t, preview.Rows[0].Error)
	assert.Equal(t, "Return qty exceeds available qty.", preview.Rows[1].Error)
	assert.Equal(t, "Return qty exceeds available qty.", preview.Errors["item-1_OR-0001"])
}

func TestSelectableKeepsOnlyReturnableLines(t *testing.T) {
	done := rental()
	done.OnRentNo = "OR-0002"
	done.Items = done.Items[1:]

	got := Selectable([]domain.OnRent{rental(), done})

	require.Len(t, got, 1)
	assert.Equal(t, "OR-0001", got[0].OnRentNo)
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, "item-1", got[0].Items[0].ItemID)
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(rental()))

	closed := rental()
	closed.Items = closed.Items[1:]
	assert.False(t, IsActive(closed))
	assert.False(t, IsActive(domain.OnRent{}))
}

func TestLinesCarriesRentalDetails(t *testing.T) {
	rentals := map[string]domain.OnRent{"OR-0001": rental()}
	form := Form{
		ReturnDate: day("2024-03-03"),
		Lines:      []domain.ReturnItemRequest{{OnRentNo: "OR-0001", ItemID: "item-1", QtyReturn: d("4")}},
	}
	items := Lines(form, rentals, Evaluate(form, rentals))

	require.Len(t, items, 1)
	assert.Equal(t, "Prop", items[0].ItemName)
	assert.Equal(t, int64(2), items[0].UsedDays)
	assert.True(t, items[0].Amount.Equal(d("20")))
}
