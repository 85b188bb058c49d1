// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Invoice
// model and its child rows (hours entries and line items).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

// CreateInvoice inserts an invoice row together with any attached hours
// entries and line items (GORM persists the associations in one pass).
// The caller is expected to run this inside a transaction when other writes
// must succeed or fail with it.
func CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) (*domain.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	for i := range inv.HoursEntries {
		if inv.HoursEntries[i].ID == "" {
			inv.HoursEntries[i].ID = uuid.NewString()
		}
		inv.HoursEntries[i].InvoiceID = inv.ID
		inv.HoursEntries[i].CreatedAt = now
	}
	for i := range inv.LineItems {
		if inv.LineItems[i].ID == "" {
			inv.LineItems[i].ID = uuid.NewString()
		}
		inv.LineItems[i].InvoiceID = inv.ID
		inv.LineItems[i].CreatedAt = now
	}
	if err := db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice fetches an invoice by ID with its client, hours entries, and
// line items preloaded. Returns ErrNotFound when missing.
func GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Preload("Client").
		Preload("HoursEntries", func(q *gorm.DB) *gorm.DB { return q.Order("date asc, id asc") }).
		Preload("LineItems", func(q *gorm.DB) *gorm.DB { return q.Order("created_at asc, id asc") }).
		Where("id = ?", id).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvoiceFilter narrows ListInvoices / CountInvoices. Zero values mean
// "no constraint"; Archived defaults to excluding archived invoices unless
// IncludeArchived is set.
type InvoiceFilter struct {
	ClientID        string
	Status          domain.InvoiceStatus
	DateFrom        *time.Time
	DateTo          *time.Time
	IncludeArchived bool
}

func applyInvoiceFilter(q *gorm.DB, f InvoiceFilter) *gorm.DB {
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DateFrom != nil {
		q = q.Where("date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("date <= ?", *f.DateTo)
	}
	if !f.IncludeArchived {
		q = q.Where("archived = ?", false)
	}
	return q
}

// ListInvoicesPage returns a paginated slice of invoices matching the filter,
// newest first, with clients preloaded for list rendering.
func ListInvoicesPage(ctx context.Context, db *gorm.DB, f InvoiceFilter, offset, limit int) ([]domain.Invoice, error) {
	var out []domain.Invoice
	q := applyInvoiceFilter(db.WithContext(ctx), f)
	err := q.
		Preload("Client").
		Order("date desc, created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountInvoices returns the total number of invoices matching the filter.
func CountInvoices(ctx context.Context, db *gorm.DB, f InvoiceFilter) (int64, error) {
	var total int64
	err := applyInvoiceFilter(db.WithContext(ctx).Model(&domain.Invoice{}), f).
		Count(&total).Error
	return total, err
}

// UpdateInvoice persists changed fields on an invoice row. Returns
// ErrNotFound when the invoice does not exist.
func UpdateInvoice(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteInvoice removes an invoice; hours entries and line items cascade.
// Returns ErrNotFound when the invoice does not exist.
func DeleteInvoice(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Invoice{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListSessionInvoices returns the invoices committed from a chat session,
// oldest first, for enriching the oracle's context.
func ListSessionInvoices(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListInvoiceNumbers returns every invoice number recorded for a client,
// used by the numbering service to find the highest existing sequence.
func ListInvoiceNumbers(ctx context.Context, db *gorm.DB, clientID string) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("client_id = ?", clientID).
		Pluck("invoice_number", &out).Error
	return out, err
}

// InvoiceNumberExists reports whether any invoice (for any client) already
// carries the given number. The number column is globally unique.
func InvoiceNumberExists(ctx context.Context, db *gorm.DB, number string) (bool, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("invoice_number = ?", number).
		Count(&total).Error
	return total > 0, err
}

// CreateHoursEntry inserts a single hours entry for an existing invoice.
func CreateHoursEntry(ctx context.Context, db *gorm.DB, e *domain.HoursEntry) (*domain.HoursEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteHoursEntry removes one hours entry, enforcing invoice ownership.
// Returns ErrNotFound when no such entry exists on that invoice.
func DeleteHoursEntry(ctx context.Context, db *gorm.DB, invoiceID, entryID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND invoice_id = ?", entryID, invoiceID).
		Delete(&domain.HoursEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateLineItem inserts a single line item for an existing invoice.
func CreateLineItem(ctx context.Context, db *gorm.DB, it *domain.LineItem) (*domain.LineItem, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(it).Error; err != nil {
		return nil, err
	}
	return it, nil
}

// DeleteLineItem removes one line item, enforcing invoice ownership.
// Returns ErrNotFound when no such item exists on that invoice.
func DeleteLineItem(ctx context.Context, db *gorm.DB, invoiceID, itemID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND invoice_id = ?", itemID, invoiceID).
		Delete(&domain.LineItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
