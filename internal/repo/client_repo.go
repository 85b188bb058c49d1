// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Client model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Fuzzy name resolution lives in the
// service layer; this file only offers the exact and LIKE-based lookups it
// composes.
//
// Error semantics:
//   - When a client is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateClient inserts a new client row. The caller provides all billing
// fields; the ID is a randomly generated UUID and timestamps are UTC.
func CreateClient(ctx context.Context, db *gorm.DB, c *domain.Client) (*domain.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListClients returns all clients ordered by name ascending. It returns an
// empty slice when no clients exist.
func ListClients(ctx context.Context, db *gorm.DB) ([]domain.Client, error) {
	var out []domain.Client
	err := db.WithContext(ctx).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// GetClient fetches a single client by ID, or ErrNotFound if missing.
func GetClient(ctx context.Context, db *gorm.DB, id string) (*domain.Client, error) {
	var c domain.Client
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClientByNameCI fetches a client whose name equals name case-insensitively.
// Returns ErrNotFound when no such client exists.
func GetClientByNameCI(ctx context.Context, db *gorm.DB, name string) (*domain.Client, error) {
	var c domain.Client
	err := db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateClient persists changed fields on an existing client row. It returns
// ErrNotFound when the client does not exist.
func UpdateClient(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Client{}).
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

// DeleteClient removes a client row; its invoices cascade at the DB level.
// Returns ErrNotFound when the client does not exist.
func DeleteClient(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Client{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
