// Package oracle talks to the extraction oracle: the external LLM that turns
// chat messages (and attached images) into structured invoice drafts.
//
// The package exposes a narrow Extractor interface so the service layer can
// be tested against fakes, plus the draft value types the preview builder
// consumes. The concrete implementation targets the OpenRouter
// chat-completions API (OpenAI wire format).
package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExtractionStatus tags the outcome of one oracle round-trip.
type ExtractionStatus string

// Extraction outcomes.
const (
	StatusReady         ExtractionStatus = "ready"
	StatusClarification ExtractionStatus = "clarification_needed"
)

// DraftHoursEntry is one extracted hours row. Rate is optional; when absent
// the preview builder falls back to the client's default rate.
type DraftHoursEntry struct {
	Date        string           `json:"date"`
	Hours       decimal.Decimal  `json:"hours"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	Ticket      string           `json:"ticket,omitempty"`
	Description string           `json:"description,omitempty"`
}

// DraftLineItem is one extracted itemized charge. Quantity defaults to 1
// when absent.
type DraftLineItem struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Rate        decimal.Decimal  `json:"rate"`
}

// InvoiceDraft is the structured invoice data the oracle extracted. All
// dates are strings as emitted by the model; the preview builder parses and
// defaults them.
type InvoiceDraft struct {
	ClientName         string            `json:"client_name"`
	InvoiceType        string            `json:"invoice_type"`
	InvoiceNumber      string            `json:"invoice_number,omitempty"`
	Date               string            `json:"date,omitempty"`
	ServicePeriodStart string            `json:"service_period_start,omitempty"`
	ServicePeriodEnd   string            `json:"service_period_end,omitempty"`
	HoursEntries       []DraftHoursEntry `json:"hours_entries,omitempty"`
	LineItems          []DraftLineItem   `json:"line_items,omitempty"`
	Notes              string            `json:"notes,omitempty"`
}

// Extraction is the tagged result of one oracle call: either a Ready draft
// or a clarification question for the user.
type Extraction struct {
	Status   ExtractionStatus
	Question string
	Context  string
	Draft    *InvoiceDraft
}

// HistoryMessage is one prior conversation turn, carried to the oracle with
// its preview and image annotations.
type HistoryMessage struct {
	Role        string
	Content     string
	PreviewJSON string
	ImageURLs   []string
}

// InvoiceSummary describes an invoice already committed in this session so
// the oracle can resolve references like "the invoice we just made".
type InvoiceSummary struct {
	InvoiceNumber string
	TotalAmount   decimal.Decimal
	Status        string
	CreatedAt     time.Time
}

// Request bundles everything the oracle needs for one extraction turn.
type Request struct {
	Message            string
	ClientContext      string
	History            []HistoryMessage
	ImageURLs          []string
	CurrentPreviewJSON string
	SessionInvoices    []InvoiceSummary
}

// Extractor is the oracle contract the chat service depends on.
type Extractor interface {
	// Extract runs one extraction turn. A non-nil error means the oracle
	// was unreachable or misbehaved at the transport level; malformed model
	// output does NOT error and instead degrades to a clarification result
	// carrying the raw text.
	Extract(ctx context.Context, req Request) (*Extraction, error)
}
