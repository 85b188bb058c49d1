// Package services – QuickInvoiceService
//
// QuickInvoiceService is the one-shot hourly invoice flow: read hours from a
// timesheet screenshot (or pasted text), pick a rate, and produce a committed
// invoice with its PDF and optional email in a single request. Unlike the
// chat flow there is no preview round-trip; the caller already has the hours
// in hand.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/oracle"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QuickHoursEntry is one day of work in the quick flow.
type QuickHoursEntry struct {
	Date  time.Time
	Hours decimal.Decimal
}

// QuickInvoiceService builds hourly invoices without the conversational
// preview cycle.
type QuickInvoiceService struct {
	DB       *gorm.DB
	Hours    oracle.HoursExtractor
	Invoices *InvoiceService

	// EmailTemplates maps lowercased client-name keys to body templates.
	EmailTemplates map[string]string
	// CompanyName appears in generated email bodies.
	CompanyName string

	now func() time.Time
}

// NewQuickInvoiceService constructs a QuickInvoiceService.
func NewQuickInvoiceService(db *gorm.DB, hours oracle.HoursExtractor, invoices *InvoiceService, emailTemplates map[string]string, companyName string) *QuickInvoiceService {
	return &QuickInvoiceService{
		DB:             db,
		Hours:          hours,
		Invoices:       invoices,
		EmailTemplates: emailTemplates,
		CompanyName:    companyName,
		now:            time.Now,
	}
}

// ExtractHoursImage reads per-day hours out of a timesheet screenshot via the
// vision oracle. Errors pass through untouched so handlers can tell a model
// verdict (*oracle.HoursFailure) from a transport failure.
func (s *QuickInvoiceService) ExtractHoursImage(ctx context.Context, req oracle.HoursRequest) (*oracle.HoursExtraction, error) {
	tr := otel.Tracer("services/QuickInvoiceService")
	ctx, span := tr.Start(ctx, "ExtractHoursImage")
	defer span.End()

	return s.Hours.ExtractHours(ctx, req)
}

// hoursTokenRE pulls the numeric tokens out of pasted hour lists such as
// "5, 5, 0, 0, 7", "5 5 0 0 7", or "Mon: 5, Tue: 5".
var hoursTokenRE = regexp.MustCompile(`[\d.]+`)

// ParseHoursText maps pasted hour values onto consecutive days starting at
// start. Values beyond the period end are dropped; a shorter list simply
// covers fewer days. Returns the entries and their total.
func ParseHoursText(text string, start, end time.Time) ([]QuickHoursEntry, decimal.Decimal, error) {
	tokens := hoursTokenRE.FindAllString(text, -1)

	entries := make([]QuickHoursEntry, 0, len(tokens))
	total := decimal.Zero
	day := start
	for _, tok := range tokens {
		if day.After(end) {
			break
		}
		h, err := decimal.NewFromString(tok)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("parse hours %q: %w", tok, err)
		}
		entries = append(entries, QuickHoursEntry{Date: day, Hours: h})
		total = total.Add(h)
		day = day.AddDate(0, 0, 1)
	}
	return entries, total, nil
}

// QuickEmailInput carries the invoice facts an ad-hoc email is built from.
type QuickEmailInput struct {
	ClientName    string
	InvoiceNumber string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalHours    decimal.Decimal
	Rate          decimal.Decimal
	TotalAmount   decimal.Decimal
}

// GenerateEmail renders the standard invoice email subject and body for the
// given facts, honoring per-client template overrides.
func (s *QuickInvoiceService) GenerateEmail(in QuickEmailInput) (subject, body string) {
	subject = oracle.EmailSubject(in.InvoiceNumber, in.ClientName)
	body = oracle.EmailBody(oracle.EmailInput{
		ClientName:    in.ClientName,
		InvoiceNumber: in.InvoiceNumber,
		PeriodStart:   in.PeriodStart.Format("2006-01-02"),
		PeriodEnd:     in.PeriodEnd.Format("2006-01-02"),
		TotalHours:    in.TotalHours,
		Rate:          in.Rate,
		TotalAmount:   in.TotalAmount,
		CompanyName:   s.CompanyName,
	}, s.EmailTemplates)
	return subject, body
}

// QuickCreateInput is one quick-invoice creation request. A nil Rate falls
// back to the client's default rate; every entry bills at the same rate.
type QuickCreateInput struct {
	ClientID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Entries     []QuickHoursEntry
	Rate        *decimal.Decimal
	Notes       string
	WithEmail   bool
}

// QuickCreateResult is the outcome of one quick-invoice creation.
type QuickCreateResult struct {
	Invoice      *domain.Invoice
	TotalHours   decimal.Decimal
	PDFURL       string
	EmailSubject string
	EmailBody    string
}

// Create commits a quick invoice in one transaction: month-based number
// (suffixed on collision), uniform-rate hours entries, derived total. The PDF
// renders immediately afterwards; a render failure is logged and left for the
// download path to retry, never failing the creation.
func (s *QuickInvoiceService) Create(ctx context.Context, in QuickCreateInput) (*QuickCreateResult, error) {
	tr := otel.Tracer("services/QuickInvoiceService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("client.id", in.ClientID)))
	defer span.End()

	client, err := repo.GetClient(ctx, s.DB, in.ClientID)
	if err != nil {
		return nil, err
	}

	rate := client.DefaultRate
	if in.Rate != nil {
		rate = *in.Rate
	}
	totalHours := decimal.Zero
	for _, e := range in.Entries {
		totalHours = totalHours.Add(e.Hours)
	}

	invoiceDate := in.PeriodEnd
	if invoiceDate.IsZero() {
		invoiceDate = s.now().UTC()
	}

	inv := &domain.Invoice{
		ClientID:    client.ID,
		Date:        invoiceDate,
		TotalAmount: rate.Mul(totalHours),
		Status:      domain.StatusDraft,
		Notes:       in.Notes,
	}
	if !in.PeriodStart.IsZero() {
		start := in.PeriodStart
		inv.ServicePeriodStart = &start
	}
	if !in.PeriodEnd.IsZero() {
		end := in.PeriodEnd
		inv.ServicePeriodEnd = &end
	}
	for _, e := range in.Entries {
		inv.HoursEntries = append(inv.HoursEntries, domain.HoursEntry{
			Date:  e.Date,
			Hours: e.Hours,
			Rate:  rate,
		})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := uniqueInvoiceNumber(ctx, tx, monthlyInvoiceNumber(client.Name, invoiceDate))
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		_, err = repo.CreateInvoice(ctx, tx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}

	created, err := repo.GetInvoice(ctx, s.DB, inv.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Invoices.RenderCommitted(ctx, created); err != nil {
		log.Warn().Err(err).Str("invoice_id", created.ID).Msg("pdf render after quick create")
	}

	res := &QuickCreateResult{
		Invoice:    created,
		TotalHours: totalHours,
		PDFURL:     invoicePDFURL(created.ID),
	}
	if in.WithEmail {
		res.EmailSubject, res.EmailBody = s.GenerateEmail(QuickEmailInput{
			ClientName:    client.Name,
			InvoiceNumber: created.InvoiceNumber,
			PeriodStart:   in.PeriodStart,
			PeriodEnd:     in.PeriodEnd,
			TotalHours:    totalHours,
			Rate:          rate,
			TotalAmount:   created.TotalAmount,
		})
	}
	return res, nil
}

// monthlyInvoiceNumber is the quick flow's numbering scheme: the client name
// uppercased, spaces removed, truncated to ten characters, plus the invoice
// month ("SPECTRIO-2026-07"). One quick invoice per client per month is the
// common case; collisions get the standard letter suffix at commit time.
func monthlyInvoiceNumber(clientName string, invoiceDate time.Time) string {
	name := []rune(strings.ToUpper(strings.ReplaceAll(clientName, " ", "")))
	if len(name) > 10 {
		name = name[:10]
	}
	return fmt.Sprintf("%s-%s", string(name), invoiceDate.Format("2006-01"))
}
