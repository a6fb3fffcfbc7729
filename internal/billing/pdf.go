package billing

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pdfContentType = "application/pdf"
	dateLayout     = "January 2, 2006"
)

// RenderPDF renders inv as an A4 PDF. inv must carry its client, organization
// and time entries.
func RenderPDF(inv *Invoice) ([]byte, error) {
	totals := Amount(inv)
	org := inv.Client.Organization

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Invoice "+inv.Number, true)
	pdf.SetAuthor(org.Name, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	// Header: issuer on the left, invoice facts on the right.
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(110, 8, tr(org.Name), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, tr("INVOICE "+inv.Number), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, line := range nonEmpty(org.Address, org.Email, org.Phone) {
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.CellFormat(110, 5, tr("Issued: "+inv.CreatedAt.Format(dateLayout)), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr("Due: "+inv.DueDate.Format(dateLayout)), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range nonEmpty(inv.Client.Name, inv.Client.Address, inv.Client.Email) {
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Line items.
	widths := []float64{35, 75, 20, 25, 25}
	headers := []string{"Date", "Description", "Hours", "Rate", "Amount"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range headers {
		align := "L"
		if i >= 2 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 7, h, "B", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range totals.Items {
		pdf.CellFormat(widths[0], 6, item.Entry.StartTime.Format(dateLayout), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, tr(truncate(item.Entry.Description, 60)), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, strconv.FormatFloat(item.Hours, 'f', 2, 64), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, formatAmount(item.Rate), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, formatAmount(item.Amount), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// Totals. Tax and discount rows only appear when they apply.
	summary := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(widths[0]+widths[1]+widths[2]+widths[3], 6, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, value, "", 1, "R", false, 0, "")
	}
	summary("Subtotal", formatAmount(totals.Subtotal), false)
	if totals.TaxAmount > 0 {
		summary("Tax", formatAmount(totals.TaxAmount), false)
	}
	if totals.Discount > 0 {
		summary("Discount", "-"+formatAmount(totals.Discount), false)
	}
	summary("Total", formatAmount(totals.Total), true)

	if inv.Notes != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, tr(inv.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.ID, err)
	}
	return buf.Bytes(), nil
}

// documentFor wraps a rendering as the stored document of inv.
func documentFor(inv *Invoice, content []byte, regenerated bool) *InvoiceDocument {
	return &InvoiceDocument{
		InvoiceID:   inv.ID,
		Filename:    inv.ID + ".pdf",
		ContentType: pdfContentType,
		Content:     content,
		Regenerated: regenerated,
		UpdatedAt:   time.Now().UTC(),
	}
}

// formatAmount formats f with two decimals and thousands separators.
func formatAmount(f float64) string {
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if f < 0 && s != "0.00" {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
