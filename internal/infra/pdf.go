package infra

// pdf.go: caja session report using go-pdf/fpdf.
// A4 portrait with:
//   - Scope, session id and window
//   - Opening, expected and counted balances
//   - Variance (amount, percentage, class)
//   - Payment and refund breakdown by method
//   - Closing notes

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"blendpos-ledger/internal/dto"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// GenerateSessionReportPDF writes the report to storagePath/caja_{id}.pdf
// (directory created if needed) and returns the file path.
func GenerateSessionReportPDF(report dto.SessionReportResponse, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	filePath := filepath.Join(storagePath, fmt.Sprintf("caja_%s.pdf", report.Session.ID))
	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("pdf: create file: %w", err)
	}
	defer f.Close()

	if err := WriteSessionReportPDF(f, report); err != nil {
		return "", err
	}
	return filePath, nil
}

// WriteSessionReportPDF renders the report into w.
func WriteSessionReportPDF(w io.Writer, report dto.SessionReportResponse) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30
	labelW := contentW * 0.45
	valueW := contentW - labelW

	s := report.Session

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, "Caja session report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Scope %s - Session %s", s.Scope, s.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Window %s to %s", report.WindowStart, report.WindowEnd), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	row := func(label, value string) {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(labelW, 6, label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 6, value, "B", 1, "R", false, 0, "")
	}

	// ── Balances ─────────────────────────────────────────────────────────────
	section(pdf, contentW, "Balances")
	row("Status", s.Status)
	row("Opened by", s.OpenedBy)
	row("Opening balance", money(s.OpeningBalance))
	row("Expected cash", money(report.ExpectedCash))
	if s.ClosingBalanceCounted != nil {
		row("Counted cash", money(*s.ClosingBalanceCounted))
	}
	if s.Variance != nil {
		row("Variance", fmt.Sprintf("%s (%s%%)", money(s.Variance.Amount), s.Variance.Percentage.StringFixed(2)))
		row("Classification", s.Variance.Classification)
	}
	pdf.Ln(4)

	// ── Breakdown ────────────────────────────────────────────────────────────
	breakdown := func(title string, rows []dto.MethodBreakdown, total decimal.Decimal) {
		section(pdf, contentW, title)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(contentW*0.5, 6, "Method", "B", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.2, 6, "Count", "B", 0, "R", false, 0, "")
		pdf.CellFormat(contentW*0.3, 6, "Total", "B", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, r := range rows {
			pdf.CellFormat(contentW*0.5, 6, r.Method, "", 0, "L", false, 0, "")
			pdf.CellFormat(contentW*0.2, 6, fmt.Sprintf("%d", r.Count), "", 0, "R", false, 0, "")
			pdf.CellFormat(contentW*0.3, 6, money(r.Total), "", 1, "R", false, 0, "")
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(contentW*0.7, 6, "Total", "T", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.3, 6, money(total), "T", 1, "R", false, 0, "")
		pdf.Ln(4)
	}
	breakdown("Payments", report.Payments, report.TotalPayments)
	breakdown("Refunds", report.Refunds, report.TotalRefunds)

	if s.Notes != nil {
		section(pdf, contentW, "Notes")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(contentW, 5, *s.Notes, "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf: render: %w", err)
	}
	return nil
}

func section(pdf *fpdf.Fpdf, w float64, title string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(w, 7, title, "", 1, "L", false, 0, "")
}

func money(d decimal.Decimal) string {
	return "$ " + d.StringFixed(2)
}
