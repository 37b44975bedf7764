package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentaldesk/console/internal/domain"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var (
	rentDay  = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	today    = time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)
	customer = domain.Customer{ID: "cust-1", CustomerName: "Acme Builders"}
)

func fixtures() ([]domain.OnRent, []domain.Payment) {
	returned := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	rentals := []domain.OnRent{
		{
			OnRentNo: "OR-0001", OnRentDate: rentDay, CustomerID: "cust-1",
			Items: []domain.RentedItem{
				{ItemName: "Steel Prop", UOM: "qty", QtyOrWeight: dec("20"), QtyReturn: dec("5"), RemainingQty: dec("15"), PerDayRate: dec("2"), UsedDays: 4, Amount: dec("40"), OnRentReturnDate: &returned},
				{ItemName: "Base Jack", UOM: "qty", QtyOrWeight: dec("4"), QtyReturn: dec("4"), RemainingQty: dec("0"), PerDayRate: dec("1"), UsedDays: 4, Amount: dec("16"), OnRentReturnDate: &returned, IsCompleted: true},
			},
		},
		{OnRentNo: "OR-0002", CustomerID: "cust-2", Items: []domain.RentedItem{{ItemName: "Other", RemainingQty: dec("1")}}},
	}
	payments := []domain.Payment{
		{CustomerID: "cust-1", PaidAmount: dec("50"), PaymentType: "", CreatedAt: rentDay.AddDate(0, 0, 6)},
		{CustomerID: "cust-2", PaidAmount: dec("99")},
	}
	return rentals, payments
}

func TestBuildStatementAddsOutstandingRow(t *testing.T) {
	rentals, payments := fixtures()

	st, err := BuildStatement("RentalDesk", customer, rentals, payments, today)

	require.NoError(t, err)
	require.Len(t, st.Rows, 3)
	assert.False(t, st.Rows[0].Outstanding)
	assert.True(t, st.Rows[0].Amount.Equal(dec("40")))

	outstanding := st.Rows[1]
	assert.True(t, outstanding.Outstanding)
	assert.True(t, outstanding.ReturnQty.IsZero())
	assert.Equal(t, int64(10), outstanding.UsedDays)
	assert.True(t, outstanding.Amount.Equal(dec("300")))
	assert.Equal(t, today, outstanding.ReturnDate)

	require.Len(t, st.Payments, 1)
	assert.Equal(t, "Cash", st.Payments[0].PaymentType)
	assert.True(t, st.TotalAmount.Equal(dec("356")))
	assert.True(t, st.PaidAmount.Equal(dec("50")))
	assert.True(t, st.BalanceAmount.Equal(dec("306")))
}

func TestBuildStatementRefusesEmptyReport(t *testing.T) {
	_, err := BuildStatement("RentalDesk", domain.Customer{ID: "nobody"}, nil, nil, today)

	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, "No data available to generate report", err.Error())
}

func TestDisplayPaymentType(t *testing.T) {
	assert.Equal(t, "Cash", DisplayPaymentType(""))
	assert.Equal(t, "Cheque", DisplayPaymentType("cheque"))
	assert.Equal(t, "UPI", DisplayPaymentType("upi"))
	assert.Equal(t, "Bank Transfer", DisplayPaymentType("bank transfer"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1,234.50", FormatAmount(dec("1234.5")))
	assert.Equal(t, "0.00", FormatAmount(decimal.Zero))
}

func TestRenderCSV(t *testing.T) {
	rentals, payments := fixtures()
	st, err := BuildStatement("RentalDesk", customer, rentals, payments, today)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, st))

	reader := csv.NewReader(strings.NewReader(buf.String()))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer Name", "Acme Builders"}, records[0])
	assert.Equal(t, rowHeader, records[1])
	assert.Equal(t, "300.00", records[3][10])
	assert.Equal(t, []string{"Balance Amount", "306.00"}, records[len(records)-1])
}

func TestRenderPDF(t *testing.T) {
	rentals, payments := fixtures()
	st, err := BuildStatement("RentalDesk", customer, rentals, payments, today)
	require.NoError(t, err)

	pdf, err := RenderPDF(st)

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "statements/cust-1/20240311T150000Z.pdf", ArchiveKey("cust-1", today))
}

func TestS3ArchivePutsObject(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	archive, err := NewS3Archive(context.Background(), S3Config{
		Bucket:    "reports",
		Endpoint:  srv.URL,
		Region:    "auto",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	require.NoError(t, archive.Store(context.Background(), "statements/cust-1/x.pdf", []byte("%PDF-1.3")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/reports/statements/cust-1/x.pdf", path)
	assert.Equal(t, "application/pdf", ctype)
}

func TestNewS3ArchiveNeedsBucket(t *testing.T) {
	_, err := NewS3Archive(context.Background(), S3Config{AccessKey: "k", SecretKey: "s"})
	assert.Error(t, err)
}
