// Package pdf renders invoices to PDF files using gofpdf.
//
// One renderer serves the three template types (hourly, tuition, project).
// Hourly invoices get a per-day hours table; tuition and project invoices
// get itemized line-item tables. Per-client personal-name branding comes
// from configuration (lowercased client-name key → display name), so no
// client is special-cased in code.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/lshimizu/invoice-chat-backend/internal/config"
	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

// Renderer writes invoice PDFs into a fixed output directory.
type Renderer struct {
	outDir   string
	company  config.CompanyConfig
	branding map[string]string // lowercased client-name key -> personal name
}

// NewRenderer builds a Renderer from configuration and ensures the output
// directory exists.
func NewRenderer(cfg *config.Config) (*Renderer, error) {
	if err := os.MkdirAll(cfg.PDFDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pdf dir: %w", err)
	}
	return &Renderer{
		outDir:   cfg.PDFDir,
		company:  cfg.Company,
		branding: cfg.BrandingOverrides,
	}, nil
}

// Render generates the PDF for an invoice and returns the file path. The
// invoice must carry its hours entries / line items; the client supplies
// billing details and the template type is taken from the invoice's client
// unless the caller passes one explicitly via inv semantics upstream.
func (r *Renderer) Render(templateType domain.TemplateType, inv *domain.Invoice, client *domain.Client) (string, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()

	switch templateType {
	case domain.TemplateHourly:
		r.renderHourly(doc, inv, client)
	case domain.TemplateTuition:
		r.renderItemized(doc, inv, client, "Tuition Invoice")
	case domain.TemplateProject:
		r.renderItemized(doc, inv, client, "Project Invoice")
	default:
		return "", fmt.Errorf("unknown template type %q", templateType)
	}

	path := filepath.Join(r.outDir, safeFileName(inv.InvoiceNumber)+".pdf")
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

// personalName looks up a branding override for the client. The longest
// key contained in the lowercased client name wins, mirroring the email
// template lookup.
func (r *Renderer) personalName(clientName string) string {
	lower := strings.ToLower(clientName)
	best := ""
	name := ""
	for key, val := range r.branding {
		if key == "" {
			continue
		}
		if strings.Contains(lower, key) && len(key) > len(best) {
			best = key
			name = val
		}
	}
	return name
}

func (r *Renderer) renderHeader(doc *gofpdf.Fpdf, inv *domain.Invoice, client *domain.Client, title string) {
	if pn := r.personalName(client.Name); pn != "" {
		doc.SetFont("Arial", "B", 14)
		doc.Cell(0, 8, pn)
		doc.Ln(8)
	}
	doc.SetFont("Arial", "B", 16)
	doc.Cell(0, 10, title)
	doc.Ln(12)

	doc.SetFont("Arial", "", 11)
	doc.Cell(0, 6, r.company.Name)
	doc.Ln(6)
	if r.company.Email != "" {
		doc.Cell(0, 6, r.company.Email)
		doc.Ln(6)
	}
	if r.company.Address != "" {
		doc.Cell(0, 6, r.company.Address)
		doc.Ln(6)
	}
	if r.company.Phone != "" {
		doc.Cell(0, 6, r.company.Phone)
		doc.Ln(6)
	}
	doc.Ln(4)

	doc.SetFont("Arial", "B", 12)
	doc.Cell(0, 8, "Bill To:")
	doc.Ln(8)
	doc.SetFont("Arial", "", 11)
	doc.Cell(0, 6, client.Name)
	doc.Ln(6)
	if client.Email != "" {
		doc.Cell(0, 6, client.Email)
		doc.Ln(6)
	}
	if client.Address != "" {
		doc.Cell(0, 6, client.Address)
		doc.Ln(6)
	}
	doc.Ln(4)

	doc.SetFont("Arial", "", 11)
	doc.Cell(0, 6, fmt.Sprintf("Invoice #: %s", inv.InvoiceNumber))
	doc.Ln(6)
	doc.Cell(0, 6, fmt.Sprintf("Date: %s", inv.Date.Format("Jan 02, 2006")))
	doc.Ln(6)
	if inv.ServicePeriodStart != nil && inv.ServicePeriodEnd != nil {
		doc.Cell(0, 6, fmt.Sprintf("Service Period: %s to %s",
			inv.ServicePeriodStart.Format("Jan 02, 2006"),
			inv.ServicePeriodEnd.Format("Jan 02, 2006")))
		doc.Ln(6)
	}
	if client.PaymentTerms != "" {
		doc.Cell(0, 6, fmt.Sprintf("Payment Terms: %s", client.PaymentTerms))
		doc.Ln(6)
	}
	doc.Ln(6)
}

func (r *Renderer) renderHourly(doc *gofpdf.Fpdf, inv *domain.Invoice, client *domain.Client) {
	r.renderHeader(doc, inv, client, "Invoice - Hourly Services")

	doc.SetFont("Arial", "B", 9)
	doc.CellFormat(28, 8, "Date", "1", 0, "C", false, 0, "")
	doc.CellFormat(18, 8, "Hours", "1", 0, "C", false, 0, "")
	doc.CellFormat(22, 8, "Rate", "1", 0, "C", false, 0, "")
	doc.CellFormat(24, 8, "Ticket", "1", 0, "C", false, 0, "")
	doc.CellFormat(72, 8, "Description", "1", 0, "C", false, 0, "")
	doc.CellFormat(26, 8, "Amount", "1", 1, "C", false, 0, "")

	doc.SetFont("Arial", "", 8)
	totalHours := decimal.Zero
	for _, e := range inv.HoursEntries {
		totalHours = totalHours.Add(e.Hours)
		doc.CellFormat(28, 7, e.Date.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		doc.CellFormat(18, 7, e.Hours.String(), "1", 0, "R", false, 0, "")
		doc.CellFormat(22, 7, "$"+e.Rate.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(24, 7, e.Ticket, "1", 0, "L", false, 0, "")
		doc.CellFormat(72, 7, truncate(e.Description, 55), "1", 0, "L", false, 0, "")
		doc.CellFormat(26, 7, "$"+e.Amount().StringFixed(2), "1", 1, "R", false, 0, "")
	}

	doc.Ln(4)
	doc.SetFont("Arial", "B", 11)
	doc.Cell(0, 7, fmt.Sprintf("Total Hours: %s", totalHours.String()))
	doc.Ln(7)
	doc.Cell(0, 7, fmt.Sprintf("Total Due: $%s", inv.TotalAmount.StringFixed(2)))
	doc.Ln(10)

	r.renderNotes(doc, inv)
}

func (r *Renderer) renderItemized(doc *gofpdf.Fpdf, inv *domain.Invoice, client *domain.Client, title string) {
	r.renderHeader(doc, inv, client, title)

	doc.SetFont("Arial", "B", 9)
	doc.CellFormat(100, 8, "Description", "1", 0, "C", false, 0, "")
	doc.CellFormat(22, 8, "Qty", "1", 0, "C", false, 0, "")
	doc.CellFormat(34, 8, "Rate", "1", 0, "C", false, 0, "")
	doc.CellFormat(34, 8, "Amount", "1", 1, "C", false, 0, "")

	doc.SetFont("Arial", "", 9)
	for _, it := range inv.LineItems {
		doc.CellFormat(100, 7, truncate(it.Description, 70), "1", 0, "L", false, 0, "")
		doc.CellFormat(22, 7, it.Quantity.String(), "1", 0, "R", false, 0, "")
		doc.CellFormat(34, 7, "$"+it.Rate.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(34, 7, "$"+it.Amount.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	doc.Ln(4)
	doc.SetFont("Arial", "B", 11)
	doc.Cell(0, 7, fmt.Sprintf("Total Due: $%s", inv.TotalAmount.StringFixed(2)))
	doc.Ln(10)

	r.renderNotes(doc, inv)
}

func (r *Renderer) renderNotes(doc *gofpdf.Fpdf, inv *domain.Invoice) {
	if inv.Notes == "" {
		return
	}
	doc.SetFont("Arial", "B", 10)
	doc.Cell(0, 6, "Notes")
	doc.Ln(6)
	doc.SetFont("Arial", "", 9)
	doc.MultiCell(0, 5, inv.Notes, "", "L", false)
}

// safeFileName keeps the invoice number usable as a file name.
func safeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
