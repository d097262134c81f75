package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/ledger"
)

// Format is a report file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a requested format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, FormatPDF:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: unsupported report format %q", apperrors.ErrValidation, s)
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

var columns = []string{"Transaction", "Date", "Listing", "Buyer", "Seller", "Quantity (t)", "Unit price", "Total value", "Status"}

func row(t ledger.Transaction) []string {
	return []string{
		t.ID,
		t.CreatedAt.Format(time.DateTime),
		t.ListingID,
		t.BuyerID,
		t.SellerID,
		t.Quantity.StringFixed(2),
		t.UnitPrice.StringFixed(2),
		t.TotalValue.StringFixed(2),
		string(t.Status),
	}
}

func totalsRow(r TransactionReport) []string {
	return []string{"TOTAL", strconv.Itoa(r.Totals.Total) + " transactions", "", "", "",
		r.Totals.TotalCredits.StringFixed(2), "", r.Totals.TotalVolume.StringFixed(2), ""}
}

// Write renders the report in the given format.
func Write(w io.Writer, f Format, r TransactionReport) error {
	switch f {
	case FormatXLSX:
		return writeXLSX(w, r)
	case FormatPDF:
		return writePDF(w, r)
	default:
		return writeCSV(w, r)
	}
}

func writeCSV(w io.Writer, r TransactionReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, t := range r.Transactions {
		if err := cw.Write(row(t)); err != nil {
			return err
		}
	}
	if err := cw.Write(totalsRow(r)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Transactions"

func writeXLSX(w io.Writer, r TransactionReport) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2E7D32"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, header); err != nil {
		return err
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for i, t := range r.Transactions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		quantity, _ := t.Quantity.Float64()
		price, _ := t.UnitPrice.Float64()
		total, _ := t.TotalValue.Float64()
		values := []any{t.ID, t.CreatedAt, t.ListingID, t.BuyerID, t.SellerID, quantity, price, total, string(t.Status)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	cell, _ := excelize.CoordinatesToCellName(1, len(r.Transactions)+2)
	totals := totalsRow(r)
	values := make([]any, len(totals))
	for i, v := range totals {
		values[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", "E", 38); err != nil {
		return err
	}
	return f.Write(w)
}

func writePDF(w io.Writer, r TransactionReport) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Carbon credit transactions", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Period: "+period(r), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Generated: "+r.GeneratedAt.Format(time.DateTime)+" UTC", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	widths := []float64{30, 30, 30, 30, 30, 25, 25, 30, 27}
	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(46, 125, 50)
	pdf.SetTextColor(255, 255, 255)
	for i, col := range columns {
		pdf.CellFormat(widths[i], 7, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(242, 242, 242)
	for i, t := range r.Transactions {
		cells := row(t)
		for j := range cells {
			if j == 0 || (j >= 2 && j <= 4) {
				cells[j] = shortID(cells[j])
			}
		}
		writePDFRow(pdf, widths, cells, i%2 == 1)
	}
	pdf.SetFont("Arial", "B", 7)
	writePDFRow(pdf, widths, totalsRow(r), false)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func writePDFRow(pdf *gofpdf.Fpdf, widths []float64, cells []string, fill bool) {
	for i, v := range cells {
		align := "L"
		if i >= 5 && i <= 7 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 6, v, "1", 0, align, fill, 0, "")
	}
	pdf.Ln(-1)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func period(r TransactionReport) string {
	from, to := "beginning", "now"
	if !r.From.IsZero() {
		from = r.From.Format(time.DateOnly)
	}
	if !r.To.IsZero() {
		to = r.To.Format(time.DateOnly)
	}
	return from + " to " + to
}
