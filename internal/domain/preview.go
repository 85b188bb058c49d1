// Package domain – InvoicePreview
//
// The invoice preview is the editable draft an extraction produces before
// the user confirms it. It is persisted as opaque JSON on the session (the
// "current" preview) and frozen onto individual assistant messages for
// version rollback, but always handled in code through this typed form.
package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PreviewVersion is the current serialization version of InvoicePreview.
// Unmarshaled previews with a missing version are treated as version 1.
const PreviewVersion = 1

// PreviewHoursEntry is one draft hours row inside a preview.
type PreviewHoursEntry struct {
	Date        string          `json:"date"` // YYYY-MM-DD
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	Ticket      string          `json:"ticket,omitempty"`
	Description string          `json:"description,omitempty"`
}

// PreviewLineItem is one draft itemized charge inside a preview.
type PreviewLineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoicePreview is a complete, self-contained draft invoice. It is built
// by the preview builder, replaced wholesale on further chat turns, and
// sealed (InvoiceID/PDFURL set) exactly once when committed. A sealed
// preview must never be re-committed; confirming it again returns the
// existing invoice reference.
type InvoicePreview struct {
	Version            int                 `json:"version"`
	ClientID           string              `json:"client_id"`
	ClientName         string              `json:"client_name"`
	InvoiceNumber      string              `json:"invoice_number"`
	InvoiceType        TemplateType        `json:"invoice_type"`
	Date               string              `json:"date"` // YYYY-MM-DD
	ServicePeriodStart string              `json:"service_period_start,omitempty"`
	ServicePeriodEnd   string              `json:"service_period_end,omitempty"`
	HoursEntries       []PreviewHoursEntry `json:"hours_entries,omitempty"`
	LineItems          []PreviewLineItem   `json:"line_items,omitempty"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	Notes              string              `json:"notes,omitempty"`

	// Set once on commit ("sealed" preview).
	InvoiceID    string `json:"invoice_id,omitempty"`
	PDFURL       string `json:"pdf_url,omitempty"`
	EmailSubject string `json:"email_subject,omitempty"`
	EmailBody    string `json:"email_body,omitempty"`
}

// Sealed reports whether this preview has already been committed to a real
// invoice.
func (p *InvoicePreview) Sealed() bool { return p != nil && p.InvoiceID != "" }

// MarshalPreview serializes a preview for storage on a session or message.
func MarshalPreview(p *InvoicePreview) (string, error) {
	if p.Version == 0 {
		p.Version = PreviewVersion
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalPreview parses a stored preview. It returns (nil, err) for
// malformed JSON; callers treat that as "no valid preview" rather than a
// hard failure.
func UnmarshalPreview(raw string) (*InvoicePreview, error) {
	if raw == "" {
		return nil, nil
	}
	var p InvoicePreview
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	if p.Version == 0 {
		p.Version = PreviewVersion
	}
	return &p, nil
}
