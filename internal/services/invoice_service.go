// Package services – InvoiceService
//
// InvoiceService owns the invoice lifecycle: direct CRUD through the API,
// committing a chat preview into a real invoice, render-on-demand PDFs, and
// archive/restore. Totals are always recomputed server-side from the child
// rows; client-supplied totals are never trusted.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"
	"github.com/lshimizu/invoice-chat-backend/internal/sysutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Renderer produces an invoice PDF and returns its file path.
type Renderer interface {
	Render(templateType domain.TemplateType, inv *domain.Invoice, client *domain.Client) (string, error)
}

// InvoiceService provides invoice operations over the repository layer.
type InvoiceService struct {
	DB       *gorm.DB
	Renderer Renderer
}

// NewInvoiceService constructs an InvoiceService.
func NewInvoiceService(db *gorm.DB, r Renderer) *InvoiceService {
	return &InvoiceService{DB: db, Renderer: r}
}

// HoursEntryInput is one hours row on a create/add request.
type HoursEntryInput struct {
	Date        time.Time
	Hours       decimal.Decimal
	Rate        decimal.Decimal
	Ticket      string
	Description string
}

// LineItemInput is one itemized charge on a create/add request. A nil
// Quantity defaults to 1.
type LineItemInput struct {
	Description string
	Quantity    *decimal.Decimal
	Rate        decimal.Decimal
}

// CreateInvoiceInput is a direct (non-chat) invoice creation request.
type CreateInvoiceInput struct {
	ClientID           string
	InvoiceNumber      string
	Date               time.Time
	ServicePeriodStart *time.Time
	ServicePeriodEnd   *time.Time
	Notes              string
	HoursEntries       []HoursEntryInput
	LineItems          []LineItemInput
}

// UpdateInvoiceInput carries optional field updates; nil means unchanged.
type UpdateInvoiceInput struct {
	InvoiceNumber      *string
	Date               *time.Time
	ServicePeriodStart *time.Time
	ServicePeriodEnd   *time.Time
	Status             *domain.InvoiceStatus
	Notes              *string
}

// ListInvoicesInput narrows and paginates the invoice list.
type ListInvoicesInput struct {
	ClientID        string
	Status          string
	DateFrom        *time.Time
	DateTo          *time.Time
	IncludeArchived bool
	Offset          int
	Limit           int
}

// Create inserts an invoice with its entries/items in one transaction. The
// total is computed from the children; line item amounts are quantity×rate.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput) (*domain.Invoice, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("invoice.number", in.InvoiceNumber)))
	defer span.End()

	if _, err := repo.GetClient(ctx, s.DB, in.ClientID); err != nil {
		return nil, err
	}
	taken, err := repo.InvoiceNumberExists(ctx, s.DB, in.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrInvoiceNumberTaken
	}

	inv := &domain.Invoice{
		ClientID:           in.ClientID,
		InvoiceNumber:      in.InvoiceNumber,
		Date:               in.Date,
		ServicePeriodStart: in.ServicePeriodStart,
		ServicePeriodEnd:   in.ServicePeriodEnd,
		Status:             domain.StatusDraft,
		Notes:              in.Notes,
	}
	total := decimal.Zero
	for _, e := range in.HoursEntries {
		inv.HoursEntries = append(inv.HoursEntries, domain.HoursEntry{
			Date:        e.Date,
			Hours:       e.Hours,
			Rate:        e.Rate,
			Ticket:      e.Ticket,
			Description: e.Description,
		})
		total = total.Add(e.Hours.Mul(e.Rate))
	}
	for _, it := range in.LineItems {
		qty := decimal.NewFromInt(1)
		if it.Quantity != nil {
			qty = *it.Quantity
		}
		amount := qty.Mul(it.Rate)
		inv.LineItems = append(inv.LineItems, domain.LineItem{
			Description: it.Description,
			Quantity:    qty,
			Rate:        it.Rate,
			Amount:      amount,
		})
		total = total.Add(amount)
	}
	inv.TotalAmount = total

	var created *domain.Invoice
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = repo.CreateInvoice(ctx, tx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repo.GetInvoice(ctx, s.DB, created.ID)
}

// Get fetches one invoice with its client and children.
func (s *InvoiceService) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := repo.GetInvoice(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	return inv, err
}

// List returns a page of invoices plus the total count for the filter.
func (s *InvoiceService) List(ctx context.Context, in ListInvoicesInput) ([]domain.Invoice, int64, error) {
	if in.Status != "" && !domain.InvoiceStatus(in.Status).Valid() {
		return nil, 0, ErrInvalidStatus
	}
	f := repo.InvoiceFilter{
		ClientID:        in.ClientID,
		Status:          domain.InvoiceStatus(in.Status),
		DateFrom:        in.DateFrom,
		DateTo:          in.DateTo,
		IncludeArchived: in.IncludeArchived,
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	total, err := repo.CountInvoices(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListInvoicesPage(ctx, s.DB, f, in.Offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update applies partial changes. Changing the invoice number re-checks
// global uniqueness; an unknown status is rejected.
func (s *InvoiceService) Update(ctx context.Context, id string, in UpdateInvoiceInput) (*domain.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.InvoiceNumber != nil && *in.InvoiceNumber != inv.InvoiceNumber {
		taken, err := repo.InvoiceNumberExists(ctx, s.DB, *in.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrInvoiceNumberTaken
		}
		fields["invoice_number"] = *in.InvoiceNumber
	}
	if in.Date != nil {
		fields["date"] = *in.Date
	}
	if in.ServicePeriodStart != nil {
		fields["service_period_start"] = *in.ServicePeriodStart
	}
	if in.ServicePeriodEnd != nil {
		fields["service_period_end"] = *in.ServicePeriodEnd
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		fields["status"] = *in.Status
	}
	if in.Notes != nil {
		fields["notes"] = *in.Notes
	}

	if len(fields) > 0 {
		if err := repo.UpdateInvoice(ctx, s.DB, id, fields); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete removes an invoice and its children.
func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	err := repo.DeleteInvoice(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvoiceNotFound
	}
	return err
}

// SetArchived flips the archived flag (archive/restore).
func (s *InvoiceService) SetArchived(ctx context.Context, id string, archived bool) error {
	err := repo.UpdateInvoice(ctx, s.DB, id, map[string]any{"archived": archived})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvoiceNotFound
	}
	return err
}

// PDF returns the path of the invoice's PDF, rendering it on first access.
// A successful first render moves a draft invoice to generated and records
// the file path, so repeated calls reuse the same file.
func (s *InvoiceService) PDF(ctx context.Context, id string) (string, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "PDF",
		trace.WithAttributes(attribute.String("invoice.id", id)))
	defer span.End()

	inv, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if inv.PDFPath != "" && sysutil.FileExists(inv.PDFPath) {
		return inv.PDFPath, nil
	}

	path, err := s.Renderer.Render(inv.Client.TemplateType, inv, &inv.Client)
	if err != nil {
		return "", errors.Join(ErrRenderFailure, err)
	}
	fields := map[string]any{"pdf_path": path}
	if inv.Status == domain.StatusDraft {
		fields["status"] = domain.StatusGenerated
	}
	if err := repo.UpdateInvoice(ctx, s.DB, id, fields); err != nil {
		return "", err
	}
	return path, nil
}

// AddHoursEntry appends an hours row and recomputes the invoice total.
func (s *InvoiceService) AddHoursEntry(ctx context.Context, invoiceID string, in HoursEntryInput) (*domain.Invoice, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	_, err := repo.CreateHoursEntry(ctx, s.DB, &domain.HoursEntry{
		InvoiceID:   invoiceID,
		Date:        in.Date,
		Hours:       in.Hours,
		Rate:        in.Rate,
		Ticket:      in.Ticket,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	return s.recomputeTotal(ctx, invoiceID)
}

// RemoveHoursEntry deletes an hours row and recomputes the invoice total.
func (s *InvoiceService) RemoveHoursEntry(ctx context.Context, invoiceID, entryID string) (*domain.Invoice, error) {
	if err := repo.DeleteHoursEntry(ctx, s.DB, invoiceID, entryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return s.recomputeTotal(ctx, invoiceID)
}

// AddLineItem appends an itemized charge and recomputes the invoice total.
// The persisted amount is quantity × rate; a nil quantity defaults to 1.
func (s *InvoiceService) AddLineItem(ctx context.Context, invoiceID string, in LineItemInput) (*domain.Invoice, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	qty := decimal.NewFromInt(1)
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	_, err := repo.CreateLineItem(ctx, s.DB, &domain.LineItem{
		InvoiceID:   invoiceID,
		Description: in.Description,
		Quantity:    qty,
		Rate:        in.Rate,
		Amount:      qty.Mul(in.Rate),
	})
	if err != nil {
		return nil, err
	}
	return s.recomputeTotal(ctx, invoiceID)
}

// RemoveLineItem deletes an itemized charge and recomputes the total.
func (s *InvoiceService) RemoveLineItem(ctx context.Context, invoiceID, itemID string) (*domain.Invoice, error) {
	if err := repo.DeleteLineItem(ctx, s.DB, invoiceID, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return s.recomputeTotal(ctx, invoiceID)
}

// recomputeTotal rereads the children and persists the derived total.
func (s *InvoiceService) recomputeTotal(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, e := range inv.HoursEntries {
		total = total.Add(e.Amount())
	}
	for _, it := range inv.LineItems {
		total = total.Add(it.Amount)
	}
	if !total.Equal(inv.TotalAmount) {
		if err := repo.UpdateInvoice(ctx, s.DB, invoiceID, map[string]any{"total_amount": total}); err != nil {
			return nil, err
		}
		inv.TotalAmount = total
	}
	return inv, nil
}

// CommitPreview turns a confirmed preview into a persisted invoice. Inside
// one transaction it re-checks the invoice number for collisions (suffixing
// when taken), inserts the invoice with its children, links the session, and
// advances the client's manual counter when one is set. The preview itself
// is not mutated; sealing is the chat layer's job.
//
// PDF rendering happens afterwards via RenderCommitted so a render failure
// never rolls back the committed invoice.
func (s *InvoiceService) CommitPreview(ctx context.Context, p *domain.InvoicePreview, sessionID *string) (*domain.Invoice, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "CommitPreview",
		trace.WithAttributes(attribute.String("client.id", p.ClientID)))
	defer span.End()

	if p == nil || p.ClientID == "" || len(p.HoursEntries)+len(p.LineItems) == 0 {
		return nil, ErrInvalidPreview
	}
	client, err := repo.GetClient(ctx, s.DB, p.ClientID)
	if err != nil {
		return nil, err
	}
	invoiceDate, ok := parseFlexibleDate(p.Date)
	if !ok {
		invoiceDate = time.Now().UTC()
	}

	inv := &domain.Invoice{
		ClientID:    client.ID,
		SessionID:   sessionID,
		Date:        invoiceDate,
		TotalAmount: p.TotalAmount,
		Status:      domain.StatusDraft,
		Notes:       p.Notes,
	}
	if t, ok := parseFlexibleDate(p.ServicePeriodStart); ok {
		inv.ServicePeriodStart = &t
	}
	if t, ok := parseFlexibleDate(p.ServicePeriodEnd); ok {
		inv.ServicePeriodEnd = &t
	}
	for _, e := range p.HoursEntries {
		d, ok := parseFlexibleDate(e.Date)
		if !ok {
			d = invoiceDate
		}
		inv.HoursEntries = append(inv.HoursEntries, domain.HoursEntry{
			Date:        d,
			Hours:       e.Hours,
			Rate:        e.Rate,
			Ticket:      e.Ticket,
			Description: e.Description,
		})
	}
	for _, it := range p.LineItems {
		inv.LineItems = append(inv.LineItems, domain.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Amount:      it.Amount,
		})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := uniqueInvoiceNumber(ctx, tx, p.InvoiceNumber)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		if _, err := repo.CreateInvoice(ctx, tx, inv); err != nil {
			return err
		}
		if client.NextInvoiceNumber != nil {
			next := *client.NextInvoiceNumber + 1
			if err := repo.UpdateClient(ctx, tx, client.ID, map[string]any{"next_invoice_number": next}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo.GetInvoice(ctx, s.DB, inv.ID)
}

// RenderCommitted renders the PDF for a freshly committed invoice and
// records its path, moving the status to generated. Called outside the
// commit transaction; a failure leaves the invoice in place.
func (s *InvoiceService) RenderCommitted(ctx context.Context, inv *domain.Invoice) (string, error) {
	path, err := s.Renderer.Render(inv.Client.TemplateType, inv, &inv.Client)
	if err != nil {
		return "", errors.Join(ErrRenderFailure, err)
	}
	fields := map[string]any{"pdf_path": path, "status": domain.StatusGenerated}
	if err := repo.UpdateInvoice(ctx, s.DB, inv.ID, fields); err != nil {
		return "", err
	}
	inv.PDFPath = path
	inv.Status = domain.StatusGenerated
	return path, nil
}
