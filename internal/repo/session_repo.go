// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatSession
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateSession(ctx, db, clientID, title) -> *domain.ChatSession, error
//     Inserts a new session row with UUID primary key and UTC timestamps.
//
//   - CountSessions(ctx, db, includeArchived) -> (int64, error)
//     Returns the number of sessions, optionally counting archived ones.
//
//   - ListSessionsPage(ctx, db, includeArchived, offset, limit) -> []domain.ChatSession, error
//     Returns a paginated slice of sessions, most recently updated first.
//
//   - GetSession(ctx, db, id) -> *domain.ChatSession, error
//     Fetches a single session by ID, or ErrNotFound if missing.
//
//   - UpdateSession(ctx, db, id, fields) -> error
//     Applies a field map to a session (title, client_id, archived,
//     invoice_preview_json). Returns ErrNotFound if the session is missing.
//
//   - TouchSession(ctx, db, id) -> error
//     Bumps updated_at so the session sorts to the top of listings.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ChatService) which enforces business rules and preview
// lifecycle semantics.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

// CreateSession inserts a new chat session, optionally linked to a client.
// The session ID is a randomly generated UUID and timestamps are UTC.
func CreateSession(ctx context.Context, db *gorm.DB, clientID *string, title string) (*domain.ChatSession, error) {
	if title == "" {
		title = "New Chat"
	}
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// CountSessions returns the number of sessions; archived sessions are
// excluded unless includeArchived is set.
func CountSessions(ctx context.Context, db *gorm.DB, includeArchived bool) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.ChatSession{})
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListSessionsPage returns a paginated slice of sessions ordered by most
// recent activity (updated_at descending). Use CountSessions to obtain the
// total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListSessionsPage(ctx context.Context, db *gorm.DB, includeArchived bool, offset, limit int) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	q := db.WithContext(ctx)
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	err := q.
		Order("updated_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetSession fetches a single session by its ID. If the record does not
// exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSession applies a field map to a session row. If no rows are
// affected (session missing), it returns ErrNotFound.
func UpdateSession(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
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

// TouchSession bumps a session's updated_at so it sorts first in listings.
func TouchSession(ctx context.Context, db *gorm.DB, id string) error {
	return UpdateSession(ctx, db, id, map[string]any{})
}

// DeleteSession removes a session; its messages cascade at the DB level.
// Returns ErrNotFound when the session does not exist.
func DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.ChatSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
