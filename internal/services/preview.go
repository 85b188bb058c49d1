// Package services – preview builder
//
// buildPreview turns an oracle draft into a complete, self-contained
// InvoicePreview. It is pure with respect to invoice writes: nothing is
// persisted, no counters move, and the same draft always yields the same
// preview (given the same roster state). Sequence numbers are only consumed
// when the preview is committed.
package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/oracle"
)

// parseFlexibleDate accepts YYYY-MM-DD or MM/DD/YYYY; anything else is a
// zero time with ok=false.
func parseFlexibleDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse("01/02/2006", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// buildPreview assembles a preview from an extracted draft and the resolved
// client. existingNumbers is the client's current invoice numbers, used for
// auto-sequencing; now supplies "today" for date defaulting.
//
// Date handling: an unparseable invoice date falls back to today; bad
// period bounds are simply absent. The draft's own invoice number is kept
// when present, otherwise one is generated (without consuming the client's
// manual counter).
func buildPreview(draft *oracle.InvoiceDraft, client *domain.Client, existingNumbers []string, now time.Time) *domain.InvoicePreview {
	invoiceType := domain.TemplateType(draft.InvoiceType)
	if !invoiceType.Valid() {
		invoiceType = client.TemplateType
	}

	invoiceDate, ok := parseFlexibleDate(draft.Date)
	if !ok {
		invoiceDate = now
	}

	p := &domain.InvoicePreview{
		Version:       domain.PreviewVersion,
		ClientID:      client.ID,
		ClientName:    client.Name,
		InvoiceType:   invoiceType,
		Date:          invoiceDate.Format("2006-01-02"),
		Notes:         draft.Notes,
		InvoiceNumber: draft.InvoiceNumber,
	}
	if p.InvoiceNumber == "" {
		p.InvoiceNumber = nextInvoiceNumber(client, invoiceDate, existingNumbers)
	}
	if t, ok := parseFlexibleDate(draft.ServicePeriodStart); ok {
		p.ServicePeriodStart = t.Format("2006-01-02")
	}
	if t, ok := parseFlexibleDate(draft.ServicePeriodEnd); ok {
		p.ServicePeriodEnd = t.Format("2006-01-02")
	}

	total := decimal.Zero
	if invoiceType == domain.TemplateHourly {
		for _, e := range draft.HoursEntries {
			entryDate, ok := parseFlexibleDate(e.Date)
			if !ok {
				entryDate = invoiceDate
			}
			rate := client.DefaultRate
			if e.Rate != nil {
				rate = *e.Rate
			}
			amount := e.Hours.Mul(rate)
			total = total.Add(amount)
			p.HoursEntries = append(p.HoursEntries, domain.PreviewHoursEntry{
				Date:        entryDate.Format("2006-01-02"),
				Hours:       e.Hours,
				Rate:        rate,
				Amount:      amount,
				Ticket:      e.Ticket,
				Description: e.Description,
			})
		}
	} else {
		for _, it := range draft.LineItems {
			qty := decimal.NewFromInt(1)
			if it.Quantity != nil {
				qty = *it.Quantity
			}
			amount := qty.Mul(it.Rate)
			total = total.Add(amount)
			p.LineItems = append(p.LineItems, domain.PreviewLineItem{
				Description: it.Description,
				Quantity:    qty,
				Rate:        it.Rate,
				Amount:      amount,
			})
		}
	}
	p.TotalAmount = total
	return p
}
