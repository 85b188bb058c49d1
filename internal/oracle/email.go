package oracle

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EmailInput carries the invoice facts an email body is built from.
type EmailInput struct {
	ClientName    string
	InvoiceNumber string
	PeriodStart   string // YYYY-MM-DD
	PeriodEnd     string // YYYY-MM-DD
	TotalHours    decimal.Decimal
	Rate          decimal.Decimal
	TotalAmount   decimal.Decimal
	CompanyName   string
}

// defaultEmailTemplate is used when no per-client template is configured.
// Placeholders: {client_name} {invoice_number} {period} {hours_info}
// {total} {company_name}.
const defaultEmailTemplate = `Hi {client_name} Team,

Please find attached Invoice {invoice_number} for the period {period}.

Total Due: ${total}

Please let me know if you have any questions.

Best regards,
{company_name}`

// EmailSubject builds the standard invoice email subject line.
func EmailSubject(invoiceNumber, clientName string) string {
	return "Invoice " + invoiceNumber + " - " + clientName
}

// EmailBody renders an email body for the invoice. templates maps a
// lowercased client key to a template; the longest key contained in the
// client name wins, the empty key overrides the built-in default. This keeps
// per-client wording in configuration instead of code branches.
func EmailBody(in EmailInput, templates map[string]string) string {
	tpl := templates[""]
	if tpl == "" {
		tpl = defaultEmailTemplate
	}
	nameLower := strings.ToLower(in.ClientName)
	bestLen := 0
	for key, t := range templates {
		if key == "" || t == "" {
			continue
		}
		if strings.Contains(nameLower, key) && len(key) > bestLen {
			tpl, bestLen = t, len(key)
		}
	}

	hoursInfo := ""
	if in.TotalHours.IsPositive() && in.Rate.IsPositive() {
		hoursInfo = in.TotalHours.String() + " hours at $" + in.Rate.StringFixed(2) + "/hr"
	}

	r := strings.NewReplacer(
		"{client_name}", in.ClientName,
		"{invoice_number}", in.InvoiceNumber,
		"{period}", formatPeriod(in.PeriodStart, in.PeriodEnd),
		"{hours_info}", hoursInfo,
		"{total}", in.TotalAmount.StringFixed(2),
		"{company_name}", in.CompanyName,
	)
	return r.Replace(tpl)
}

// formatPeriod renders "Jul 01, 2025 – Jul 15, 2025", falling back to the
// raw strings when either bound fails to parse.
func formatPeriod(start, end string) string {
	s, errS := time.Parse("2006-01-02", start)
	e, errE := time.Parse("2006-01-02", end)
	if errS != nil || errE != nil {
		return start + " – " + end
	}
	return s.Format("Jan 02, 2006") + " – " + e.Format("Jan 02, 2006")
}
