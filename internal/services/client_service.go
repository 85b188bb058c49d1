// Package services – ClientService
//
// This file implements the ClientService, which manages the client roster.
// It enforces case-insensitive name uniqueness on top of the DB unique
// index, validates template types, and coordinates repository operations.
//
// Service-level errors (e.g., ErrClientNameTaken) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClientInput carries the writable fields of a client. Pointer fields
// distinguish "absent" from "set to zero" on updates.
type ClientInput struct {
	Name              string
	Email             *string
	Address           *string
	DefaultRate       *decimal.Decimal
	TemplateType      *domain.TemplateType
	PaymentTerms      *string
	InvoicePrefix     *string
	CompanyContext    *string
	NextInvoiceNumber *int
}

// ClientService provides CRUD over the client roster.
type ClientService struct {
	DB *gorm.DB
}

// NewClientService constructs a ClientService.
func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{DB: db}
}

// Create inserts a new client. The name must be unique case-insensitively;
// the template type defaults to hourly and the prefix to "INV".
func (s *ClientService) Create(ctx context.Context, in ClientInput) (*domain.Client, error) {
	tr := otel.Tracer("services/ClientService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("client.name", in.Name)))
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("client name must not be empty")
	}
	if _, err := repo.GetClientByNameCI(ctx, s.DB, name); err == nil {
		return nil, ErrClientNameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := &domain.Client{
		Name:          name,
		TemplateType:  domain.TemplateHourly,
		InvoicePrefix: "INV",
	}
	if in.TemplateType != nil {
		if !in.TemplateType.Valid() {
			return nil, ErrInvalidTemplateType
		}
		c.TemplateType = *in.TemplateType
	}
	if in.DefaultRate != nil {
		c.DefaultRate = *in.DefaultRate
	}
	if in.Email != nil {
		c.Email = *in.Email
	}
	if in.Address != nil {
		c.Address = *in.Address
	}
	if in.PaymentTerms != nil {
		c.PaymentTerms = *in.PaymentTerms
	}
	if in.InvoicePrefix != nil && strings.TrimSpace(*in.InvoicePrefix) != "" {
		c.InvoicePrefix = strings.TrimSpace(*in.InvoicePrefix)
	}
	if in.CompanyContext != nil {
		c.CompanyContext = *in.CompanyContext
	}
	c.NextInvoiceNumber = in.NextInvoiceNumber

	return repo.CreateClient(ctx, s.DB, c)
}

// List returns the full roster ordered by name.
func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return repo.ListClients(ctx, s.DB)
}

// Get fetches one client or gorm.ErrRecordNotFound.
func (s *ClientService) Get(ctx context.Context, id string) (*domain.Client, error) {
	return repo.GetClient(ctx, s.DB, id)
}

// Update applies the provided fields. Renames re-check case-insensitive
// uniqueness against other clients.
func (s *ClientService) Update(ctx context.Context, id string, in ClientInput) (*domain.Client, error) {
	tr := otel.Tracer("services/ClientService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("client.id", id)))
	defer span.End()

	existing, err := repo.GetClient(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if name := strings.TrimSpace(in.Name); name != "" && !strings.EqualFold(name, existing.Name) {
		if other, err := repo.GetClientByNameCI(ctx, s.DB, name); err == nil && other.ID != id {
			return nil, ErrClientNameTaken
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		fields["name"] = name
	} else if name != "" {
		fields["name"] = name // case-only rename of the same client
	}
	if in.TemplateType != nil {
		if !in.TemplateType.Valid() {
			return nil, ErrInvalidTemplateType
		}
		fields["template_type"] = *in.TemplateType
	}
	if in.DefaultRate != nil {
		fields["default_rate"] = *in.DefaultRate
	}
	if in.Email != nil {
		fields["email"] = *in.Email
	}
	if in.Address != nil {
		fields["address"] = *in.Address
	}
	if in.PaymentTerms != nil {
		fields["payment_terms"] = *in.PaymentTerms
	}
	if in.InvoicePrefix != nil && strings.TrimSpace(*in.InvoicePrefix) != "" {
		fields["invoice_prefix"] = strings.TrimSpace(*in.InvoicePrefix)
	}
	if in.CompanyContext != nil {
		fields["company_context"] = *in.CompanyContext
	}
	if in.NextInvoiceNumber != nil {
		fields["next_invoice_number"] = *in.NextInvoiceNumber
	}

	if len(fields) > 0 {
		if err := repo.UpdateClient(ctx, s.DB, id, fields); err != nil {
			return nil, err
		}
	}
	return repo.GetClient(ctx, s.DB, id)
}

// Delete removes a client; its invoices cascade at the DB level.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	return repo.DeleteClient(ctx, s.DB, id)
}

// RosterContext renders the roster as the oracle's client context block.
func (s *ClientService) RosterContext(ctx context.Context) (string, error) {
	clients, err := repo.ListClients(ctx, s.DB)
	if err != nil {
		return "", err
	}
	return rosterContext(clients), nil
}

// rosterContext formats clients for the extraction prompt. Empty roster
// yields an explicit sentence so the oracle knows no clients exist yet.
func rosterContext(clients []domain.Client) string {
	if len(clients) == 0 {
		return "No clients registered yet."
	}
	var b strings.Builder
	for i, c := range clients {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + c.Name + ":\n")
		b.WriteString("  rate=$" + c.DefaultRate.String() + "/hr\n")
		b.WriteString("  type=" + string(c.TemplateType) + "\n")
		b.WriteString("  invoice_prefix=" + c.InvoicePrefix)
		if c.Email != "" {
			b.WriteString("\n  email=" + c.Email)
		}
		if c.CompanyContext != "" {
			b.WriteString("\n  notes: " + c.CompanyContext)
		}
	}
	return b.String()
}
