package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const dateLayout = "02-Jan-2006"

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a money value with thousands separators and two
// decimals, e.g. 1,234.50.
func FormatAmount(d decimal.Decimal) string {
	return amountPrinter.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

var rowHeader = []string{
	"OnRent No", "OnRent Date", "Item Name", "UOM", "Total Qty", "Return Qty",
	"Balance Qty", "OnRentReturn Date", "Per Day Rate", "Used Days", "Amount",
}

func rowCells(row Row) []string {
	return []string{
		row.OnRentNo,
		row.OnRentDate.Format(dateLayout),
		row.ItemName,
		row.UOM,
		row.TotalQty.String(),
		row.ReturnQty.String(),
		row.BalanceQty.String(),
		row.ReturnDate.Format(dateLayout),
		row.PerDayRate.String(),
		strconv.FormatInt(row.UsedDays, 10),
		row.Amount.StringFixed(2),
	}
}

// RenderCSV writes the statement as three CSV sections separated by blank
// lines: on-rent rows, payments, summary.
func RenderCSV(w io.Writer, st *Statement) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"Customer Name", st.Customer.CustomerName},
		{},
		rowHeader,
	}
	for _, row := range st.Rows {
		records = append(records, rowCells(row))
	}
	records = append(records, []string{}, []string{"Payment Date", "Payment Type", "Paid Amount"})
	for _, p := range st.Payments {
		records = append(records, []string{p.Date.Format(dateLayout), p.PaymentType, p.Amount.StringFixed(2)})
	}
	records = append(records,
		[]string{},
		[]string{"Total Amount", st.TotalAmount.StringFixed(2)},
		[]string{"Total Paid Amount", st.PaidAmount.StringFixed(2)},
		[]string{"Balance Amount", st.BalanceAmount.StringFixed(2)},
	)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write statement csv: %w", err)
	}
	return nil
}

var rowWidths = []float64{19, 20, 24, 12, 14, 14, 14, 22, 15, 12, 24}

// RenderPDF lays the statement out on A4 portrait pages.
func RenderPDF(st *Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(5, 10, 5)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(200, 10, "Customer Report", "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 11)
	pdf.SetXY(5, 10)
	pdf.CellFormat(200, 10, st.Company, "", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(200, 6, fmt.Sprintf("Customer Name : %s", st.Customer.CustomerName), "", 1, "L", false, 0, "")
	pdf.CellFormat(200, 6, fmt.Sprintf("Generated: %s", st.GeneratedAt.Format("02-Jan-2006 03:04 PM")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(st.Rows) > 0 {
		sectionTitle(pdf, "On Rent Details")
		pdf.SetFont("Arial", "B", 7)
		pdf.SetFillColor(200, 200, 200)
		for i, title := range rowHeader {
			pdf.CellFormat(rowWidths[i], 7, title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 7)
		for _, row := range st.Rows {
			if row.Outstanding {
				pdf.SetFillColor(255, 235, 205)
			}
			for i, cell := range rowCells(row) {
				align := "C"
				if i == 2 {
					align = "L"
				}
				pdf.CellFormat(rowWidths[i], 6, cell, "1", 0, align, row.Outstanding, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(sum(rowWidths[:len(rowWidths)-1]), 7, "Total", "1", 0, "R", false, 0, "")
		pdf.CellFormat(rowWidths[len(rowWidths)-1], 7, FormatAmount(st.TotalAmount), "1", 1, "C", false, 0, "")
		pdf.Ln(6)
	}

	if len(st.Payments) > 0 {
		sectionTitle(pdf, "Payment Details")
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(60, 7, "Payment Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(60, 7, "Payment Type", "1", 0, "C", true, 0, "")
		pdf.CellFormat(80, 7, "Paid Amount", "1", 1, "C", true, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, p := range st.Payments {
			pdf.CellFormat(60, 6, p.Date.Format(dateLayout), "1", 0, "C", false, 0, "")
			pdf.CellFormat(60, 6, p.PaymentType, "1", 0, "C", false, 0, "")
			pdf.CellFormat(80, 6, FormatAmount(p.Amount), "1", 1, "R", false, 0, "")
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(120, 7, "Total", "1", 0, "R", false, 0, "")
		pdf.CellFormat(80, 7, FormatAmount(st.PaidAmount), "1", 1, "R", false, 0, "")
		pdf.Ln(6)
	}

	sectionTitle(pdf, "Summary")
	pdf.SetFont("Arial", "", 10)
	for _, line := range [][2]string{
		{"Total Amount", FormatAmount(st.TotalAmount)},
		{"Total Paid Amount", FormatAmount(st.PaidAmount)},
		{"Balance Amount", FormatAmount(st.BalanceAmount)},
	} {
		pdf.CellFormat(100, 7, line[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(100, 7, line[1], "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(200, 8, title, "1", 1, "L", true, 0, "")
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
