// Chat HTTP handlers.
//
// This file exposes the conversational invoice flow:
//   - POST   /chat                              (process a message)
//   - POST   /chat/confirm                      (commit the current preview)
//   - POST   /chat/create-client                (register a client mid-chat)
//   - GET    /chat/sessions                     (list, paginated)
//   - POST   /chat/sessions                     (create)
//   - GET    /chat/sessions/{id}                (session + messages + preview)
//   - DELETE /chat/sessions/{id}                (remove)
//   - POST   /chat/sessions/{id}/archive|restore
//   - POST   /chat/sessions/{id}/event          (record a UI event message)
//   - POST   /chat/sessions/{id}/preview        (promote a message's preview)
//
// Confirm supports safe retries via the Idempotency-Key header: the same key
// on the same session replays the recorded invoice result.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/http/middleware"
	"github.com/lshimizu/invoice-chat-backend/internal/services"
)

//
// DTOs
//

// ChatRequest is one incoming chat message.
type ChatRequest struct {
	// SessionID continues an existing conversation; absent starts a new one.
	SessionID *string `json:"session_id,omitempty" format:"uuid"`
	// ClientID pre-links a new session to a client.
	ClientID *string `json:"client_id,omitempty" format:"uuid"`
	// Message is the user's text; may be empty when images are attached.
	Message string `json:"message" example:"Invoice Spectrio for 8 hours on the migration"`
	// ImageURLs reference previously uploaded timesheet or receipt images.
	ImageURLs []string `json:"image_urls,omitempty"`
}

// ChatTurnResponse is the outcome of one chat operation.
type ChatTurnResponse struct {
	Status          services.ChatStatus       `json:"status" example:"preview"`
	Message         string                    `json:"message"`
	SessionID       string                    `json:"session_id"`
	Preview         *domain.InvoicePreview    `json:"preview,omitempty"`
	SuggestedClient *services.SuggestedClient `json:"suggested_client,omitempty"`
	InvoiceID       string                    `json:"invoice_id,omitempty"`
	PDFURL          string                    `json:"pdf_url,omitempty"`
	EmailSubject    string                    `json:"email_subject,omitempty"`
	EmailBody       string                    `json:"email_body,omitempty"`
}

// chatTurn converts a service result to the wire shape.
func chatTurn(r *services.ChatResult) ChatTurnResponse {
	return ChatTurnResponse{
		Status:          r.Status,
		Message:         r.Message,
		SessionID:       r.SessionID,
		Preview:         r.Preview,
		SuggestedClient: r.SuggestedClient,
		InvoiceID:       r.InvoiceID,
		PDFURL:          r.PDFURL,
		EmailSubject:    r.EmailSubject,
		EmailBody:       r.EmailBody,
	}
}

// ConfirmRequest commits the session's current preview.
type ConfirmRequest struct {
	SessionID string `json:"session_id" format:"uuid"`
}

// CreateClientFromChatRequest registers a client after a resolution miss.
type CreateClientFromChatRequest struct {
	SessionID    string              `json:"session_id" format:"uuid"`
	Name         string              `json:"name" example:"Acme Corp"`
	Email        string              `json:"email,omitempty"`
	DefaultRate  decimal.Decimal     `json:"default_rate,omitempty" swaggertype:"number" example:"100"`
	TemplateType domain.TemplateType `json:"template_type,omitempty" example:"project"`
}

// CreateSessionRequest starts a conversation.
type CreateSessionRequest struct {
	ClientID *string `json:"client_id,omitempty" format:"uuid"`
	Title    string  `json:"title,omitempty" example:"July invoices"`
}

// SessionEventRequest records a UI-originated assistant message.
type SessionEventRequest struct {
	Content string `json:"content" example:"Invoice INV-2026-003 was emailed to the client."`
}

// PromotePreviewRequest restores a message's frozen preview as current.
type PromotePreviewRequest struct {
	MessageID string `json:"message_id" format:"uuid"`
}

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.ChatSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

// SessionResponse is a session with its messages and current preview.
type SessionResponse struct {
	Session  *domain.ChatSession    `json:"session"`
	Messages []domain.ChatMessage   `json:"messages"`
	Preview  *domain.InvoicePreview `json:"preview,omitempty"`
}

// failChat maps chat service errors to HTTP responses.
func failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidPreview):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrClientNameTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeChatFailed, err.Error())
	}
}

//
// Handlers
//

// PostChat godoc
// @ID          postChat
// @Summary     Send a chat message
// @Description Processes one chat turn: extracts an invoice draft, builds a preview, asks a clarifying question, or reports a client miss. Bare confirmation words commit the current preview.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ChatRequest  true  "Chat message"
//
// @Success     200  {object}  handlers.ChatTurnResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Chat failed"
// @Router      /chat [post]
func (h *Handlers) PostChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.chat.Process(c.Request.Context(), services.ProcessInput{
		SessionID: req.SessionID,
		ClientID:  req.ClientID,
		Content:   req.Message,
		ImageURLs: req.ImageURLs,
	})
	if err != nil {
		failChat(c, err)
		return
	}
	ok(c, http.StatusOK, chatTurn(res))
}

// ConfirmInvoice godoc
// @ID          confirmInvoice
// @Summary     Confirm the current invoice preview
// @Description Commits the session's preview to a real invoice and renders its PDF. Re-confirming a committed preview returns the existing invoice. Supply an Idempotency-Key header for safe retries.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                   false  "Idempotency key for safe retries"
// @Param       body             body    handlers.ConfirmRequest  true   "Session to confirm"
//
// @Success     200  {object}  handlers.ChatTurnResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No valid preview"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Chat failed"
// @Router      /chat/confirm [post]
func (h *Handlers) ConfirmInvoice(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	res, err := h.chat.Confirm(c.Request.Context(), req.SessionID, key)
	if err != nil {
		failChat(c, err)
		return
	}
	ok(c, http.StatusOK, chatTurn(res))
}

// CreateClientFromChat godoc
// @ID          createClientFromChat
// @Summary     Register a client mid-conversation
// @Description Creates the client suggested after a resolution miss and links the session to it.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateClientFromChatRequest  true  "Client payload"
//
// @Success     200  {object}  handlers.ChatTurnResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Name already taken"
// @Router      /chat/create-client [post]
func (h *Handlers) CreateClientFromChat(c *gin.Context) {
	var req CreateClientFromChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	res, err := h.chat.CreateClientFromChat(c.Request.Context(), h.clients, services.CreateClientFromChatInput{
		SessionID:    req.SessionID,
		Name:         req.Name,
		Email:        req.Email,
		DefaultRate:  req.DefaultRate,
		TemplateType: req.TemplateType,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidTemplateType) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		failChat(c, err)
		return
	}
	ok(c, http.StatusOK, chatTurn(res))
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions (paginated)
// @Description Returns sessions newest first. Archived sessions are hidden unless include_archived=true.
// @Tags        Chat
// @Produce     json
//
// @Param       include_archived  query  bool  false "Include archived sessions"
// @Param       page              query  int   false "Page number"     minimum(1) default(1)
// @Param       page_size         query  int   false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSessionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	page, pageSize := clampPagination(c)
	includeArchived := c.Query("include_archived") == "true"

	items, total, err := h.chat.ListSessions(c.Request.Context(), includeArchived, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// CreateSession godoc
// @ID          createSession
// @Summary     Start a chat session
// @Description Creates a session, optionally pre-linked to a client. Explicit titles are normalized.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateSessionRequest  true  "Session payload"
//
// @Success     201  {object}  domain.ChatSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	session, err := h.chat.CreateSession(c.Request.Context(), req.ClientID, req.Title)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, session)
}

// GetSession godoc
// @ID          getSession
// @Summary     Fetch a session with its messages
// @Description Returns the session, its full message history, and the current invoice preview if one exists.
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	session, messages, err := h.chat.GetSession(c.Request.Context(), id)
	if err != nil {
		failChat(c, err)
		return
	}
	preview, err := h.chat.CurrentPreview(c.Request.Context(), id)
	if err != nil {
		failChat(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: session, Messages: messages, Preview: preview})
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session
// @Description Removes the session and its messages. Committed invoices stay in place.
// @Tags        Chat
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	if err := h.chat.DeleteSession(c.Request.Context(), id); err != nil {
		failChat(c, err)
		return
	}
	noContent(c)
}

// ArchiveSession godoc
// @ID          archiveSession
// @Summary     Archive a session
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id}/archive [post]
func (h *Handlers) ArchiveSession(c *gin.Context) { h.setSessionArchived(c, true) }

// RestoreSession godoc
// @ID          restoreSession
// @Summary     Restore an archived session
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id}/restore [post]
func (h *Handlers) RestoreSession(c *gin.Context) { h.setSessionArchived(c, false) }

func (h *Handlers) setSessionArchived(c *gin.Context, archived bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	if err := h.chat.SetSessionArchived(c.Request.Context(), id, archived); err != nil {
		failChat(c, err)
		return
	}
	noContent(c)
}

// PostSessionEvent godoc
// @ID          postSessionEvent
// @Summary     Record a UI event in the conversation
// @Description Appends an assistant message describing an out-of-band event (e.g. an invoice email was sent) so the history stays complete.
// @Tags        Chat
// @Accept      json
//
// @Param       id    path  string                        true  "Session ID (UUID)"  format(uuid)
// @Param       body  body  handlers.SessionEventRequest  true  "Event content"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id}/event [post]
func (h *Handlers) PostSessionEvent(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req SessionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	if err := h.chat.SaveEvent(c.Request.Context(), id, req.Content); err != nil {
		failChat(c, err)
		return
	}
	noContent(c)
}

// PromotePreview godoc
// @ID          promotePreview
// @Summary     Restore a message's preview as current
// @Description Copies the frozen preview attached to an earlier assistant message back onto the session, so it can be confirmed.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                          true  "Session ID (UUID)"  format(uuid)
// @Param       body  body  handlers.PromotePreviewRequest  true  "Message to promote"
//
// @Success     200  {object}  domain.InvoicePreview
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session or preview not found"
// @Router      /chat/sessions/{id}/preview [post]
func (h *Handlers) PromotePreview(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req PromotePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_id required")
		return
	}

	preview, err := h.chat.PromoteMessagePreview(c.Request.Context(), id, req.MessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message preview not found")
			return
		}
		failChat(c, err)
		return
	}
	ok(c, http.StatusOK, preview)
}
