// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatMessage
// model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(db *gorm.DB, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	return m, db.Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(db *gorm.DB, sessionID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.Where("session_id = ?", sessionID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, sessionID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// LastMessage returns the most recent message in a session, or ErrNotFound
// when the session has none. Used for listing summaries.
func LastMessage(db *gorm.DB, sessionID string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := db.
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
