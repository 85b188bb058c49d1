// Package services – ChatService
//
// ChatService drives the conversational invoice flow. A session moves
// through three states: idle (no preview), previewing (current preview
// stored on the session), and committed (preview sealed with an invoice
// reference). Each chat turn persists the user message, consults the
// oracle, and persists the assistant's reply — including failures, so the
// conversation history always reflects what the user saw.
//
// Service-level errors (e.g., ErrSessionNotFound, ErrInvalidPreview) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// ChatStatus classifies a chat turn's outcome for the API response.
type ChatStatus string

// Chat turn outcomes.
const (
	ChatMessage        ChatStatus = "message"
	ChatPreview        ChatStatus = "preview"
	ChatClarification  ChatStatus = "clarification_needed"
	ChatClientNotFound ChatStatus = "client_not_found"
	ChatInvoiceCreated ChatStatus = "invoice_created"
	ChatError          ChatStatus = "error"
)

// confirmPhrases are bare messages treated as confirmation of the current
// preview rather than new extraction input.
var confirmPhrases = map[string]struct{}{
	"confirm":  {},
	"yes":      {},
	"ok":       {},
	"create":   {},
	"generate": {},
}

// SuggestedClient prefills the create-client flow after a resolution miss.
type SuggestedClient struct {
	Name         string              `json:"name"`
	TemplateType domain.TemplateType `json:"template_type"`
}

// ChatResult is the outcome of one chat operation.
type ChatResult struct {
	Status          ChatStatus
	Message         string
	SessionID       string
	Preview         *domain.InvoicePreview
	SuggestedClient *SuggestedClient
	InvoiceID       string
	PDFURL          string
	EmailSubject    string
	EmailBody       string
}

// ProcessInput is one incoming chat message.
type ProcessInput struct {
	SessionID *string
	ClientID  *string
	Content   string
	ImageURLs []string
}

// ChatService coordinates sessions, messages, the oracle, and invoice
// commits.
type ChatService struct {
	DB       *gorm.DB
	Oracle   oracle.Extractor
	Invoices *InvoiceService

	// EmailTemplates maps lowercased client-name keys to body templates.
	EmailTemplates map[string]string
	// IdempotencyTTL bounds how long a confirm idempotency key is honored.
	IdempotencyTTL time.Duration
	// HistoryLimit caps how many prior messages are sent to the oracle.
	HistoryLimit int
	// CompanyName appears in generated email bodies.
	CompanyName string

	now func() time.Time
}

// NewChatService constructs a ChatService with sane defaults.
func NewChatService(db *gorm.DB, ext oracle.Extractor, invoices *InvoiceService, emailTemplates map[string]string, companyName string, idemTTL time.Duration) *ChatService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &ChatService{
		DB:             db,
		Oracle:         ext,
		Invoices:       invoices,
		EmailTemplates: emailTemplates,
		IdempotencyTTL: idemTTL,
		HistoryLimit:   20,
		CompanyName:    companyName,
		now:            time.Now,
	}
}

// Process handles one chat turn: persist the user message, route bare
// confirmation phrases, otherwise run extraction and react to the result.
func (s *ChatService) Process(ctx context.Context, in ProcessInput) (*ChatResult, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Process")
	defer span.End()

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.ImageURLs) == 0 {
		return nil, ErrEmptyMessage
	}

	session, err := s.getOrCreateSession(ctx, in.SessionID, in.ClientID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", session.ID))

	if err := s.saveUserMessage(ctx, session.ID, content, in.ImageURLs); err != nil {
		return nil, err
	}

	if _, ok := confirmPhrases[strings.ToLower(content)]; ok {
		preview, perr := domain.UnmarshalPreview(session.InvoicePreviewJSON)
		if perr != nil {
			// The session carries preview JSON that no longer parses. That is
			// a real fault, not an idle session: tell the user and surface
			// ErrInvalidPreview so the handler reports it.
			msg := "No valid invoice preview found. Describe the invoice again and I'll rebuild it."
			if err := s.saveAssistantMessage(ctx, session.ID, msg, nil); err != nil {
				return nil, err
			}
			return nil, ErrInvalidPreview
		}
		if preview != nil {
			return s.confirm(ctx, session, preview)
		}
		msg := "Nothing to confirm. Tell me about the invoice you want to create."
		if err := s.saveAssistantMessage(ctx, session.ID, msg, nil); err != nil {
			return nil, err
		}
		return &ChatResult{Status: ChatMessage, Message: msg, SessionID: session.ID}, nil
	}

	return s.extract(ctx, session, content, in.ImageURLs)
}

// Confirm commits the session's current preview. A previously-seen
// idempotency key, or an already-sealed preview, returns the existing
// invoice reference instead of creating a second one.
func (s *ChatService) Confirm(ctx context.Context, sessionID, idempotencyKey string) (*ChatResult, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if rec, err := repo.GetIdempotency(ctx, s.DB, sessionID, idempotencyKey, s.now()); err == nil {
			return &ChatResult{
				Status:    ChatInvoiceCreated,
				Message:   "Invoice was already created. You can download it below.",
				SessionID: sessionID,
				InvoiceID: rec.InvoiceID,
				PDFURL:    invoicePDFURL(rec.InvoiceID),
			}, nil
		}
	}

	preview, err := domain.UnmarshalPreview(session.InvoicePreviewJSON)
	if err != nil || preview == nil {
		return nil, ErrInvalidPreview
	}
	res, err := s.confirm(ctx, session, preview)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" && res.InvoiceID != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, sessionID, idempotencyKey, res.InvoiceID, 200, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("record idempotency key")
		}
	}
	return res, nil
}

// confirm seals the current preview into a real invoice. Sealed previews
// short-circuit idempotently; a PDF render failure after the commit leaves
// the invoice in place and is reported in the assistant message.
func (s *ChatService) confirm(ctx context.Context, session *domain.ChatSession, preview *domain.InvoicePreview) (*ChatResult, error) {
	if preview.Sealed() {
		return &ChatResult{
			Status:       ChatInvoiceCreated,
			Message:      "Invoice was already created. You can download it below.",
			SessionID:    session.ID,
			InvoiceID:    preview.InvoiceID,
			PDFURL:       preview.PDFURL,
			EmailSubject: preview.EmailSubject,
			EmailBody:    preview.EmailBody,
		}, nil
	}

	if err := s.saveUserMessage(ctx, session.ID, "Generate PDF", nil); err != nil {
		return nil, err
	}

	inv, err := s.Invoices.CommitPreview(ctx, preview, &session.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidPreview) {
			return nil, err
		}
		msg := fmt.Sprintf("Failed to create invoice: %v", err)
		if serr := s.saveAssistantMessage(ctx, session.ID, msg, nil); serr != nil {
			return nil, serr
		}
		return &ChatResult{Status: ChatError, Message: msg, SessionID: session.ID}, nil
	}

	msg := fmt.Sprintf("Invoice %s created successfully! PDF is ready for download.", inv.InvoiceNumber)
	if _, err := s.Invoices.RenderCommitted(ctx, inv); err != nil {
		log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("pdf render after commit")
		msg = fmt.Sprintf("Invoice %s created, but PDF rendering failed. It will be retried on download.", inv.InvoiceNumber)
	}

	subject := oracle.EmailSubject(inv.InvoiceNumber, inv.Client.Name)
	body := s.emailBody(preview, inv)

	preview.InvoiceID = inv.ID
	preview.PDFURL = invoicePDFURL(inv.ID)
	preview.EmailSubject = subject
	preview.EmailBody = body
	if err := s.storePreview(ctx, session.ID, preview); err != nil {
		return nil, err
	}
	if err := s.saveAssistantMessage(ctx, session.ID, msg, nil); err != nil {
		return nil, err
	}

	return &ChatResult{
		Status:       ChatInvoiceCreated,
		Message:      msg,
		SessionID:    session.ID,
		Preview:      preview,
		InvoiceID:    inv.ID,
		PDFURL:       preview.PDFURL,
		EmailSubject: subject,
		EmailBody:    body,
	}, nil
}

// extract runs the oracle on the message and converts the extraction into
// a preview, clarification, or client-not-found outcome.
func (s *ChatService) extract(ctx context.Context, session *domain.ChatSession, content string, imageURLs []string) (*ChatResult, error) {
	roster, err := repo.ListClients(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	history, err := s.history(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.sessionInvoiceSummaries(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	ext, err := s.Oracle.Extract(ctx, oracle.Request{
		Message:            content,
		ClientContext:      rosterContext(roster),
		History:            history,
		ImageURLs:          imageURLs,
		CurrentPreviewJSON: session.InvoicePreviewJSON,
		SessionInvoices:    summaries,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("oracle extraction")
		msg := "Could not process your request. Please try again."
		if serr := s.saveAssistantMessage(ctx, session.ID, msg, nil); serr != nil {
			return nil, serr
		}
		return &ChatResult{Status: ChatError, Message: msg, SessionID: session.ID}, nil
	}

	if ext.Status == oracle.StatusClarification {
		msg := ext.Question
		if err := s.saveAssistantMessage(ctx, session.ID, msg, nil); err != nil {
			return nil, err
		}
		return &ChatResult{Status: ChatClarification, Message: msg, SessionID: session.ID}, nil
	}

	suggested := domain.TemplateType(ext.Draft.InvoiceType)
	client, err := resolveClient(roster, ext.Draft.ClientName, suggested)
	if err != nil {
		cnf, _ := AsClientNotFound(err)
		msg := fmt.Sprintf("Client '%s' not found. Would you like to create a new client?", cnf.Name)
		if serr := s.saveAssistantMessage(ctx, session.ID, msg, nil); serr != nil {
			return nil, serr
		}
		sc := &SuggestedClient{Name: cnf.Name, TemplateType: cnf.SuggestedType}
		if !sc.TemplateType.Valid() {
			sc.TemplateType = domain.TemplateHourly
		}
		return &ChatResult{Status: ChatClientNotFound, Message: msg, SessionID: session.ID, SuggestedClient: sc}, nil
	}

	numbers, err := repo.ListInvoiceNumbers(ctx, s.DB, client.ID)
	if err != nil {
		return nil, err
	}
	preview := buildPreview(ext.Draft, client, numbers, s.now())

	if err := s.storePreview(ctx, session.ID, preview); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if session.Title == "New Chat" {
		fields["title"] = "Invoice: " + client.Name
	}
	if session.ClientID == nil {
		fields["client_id"] = client.ID
	}
	if len(fields) > 0 {
		if err := repo.UpdateSession(ctx, s.DB, session.ID, fields); err != nil {
			return nil, err
		}
	}

	msg := "Here's your invoice preview. Say 'confirm' to generate the PDF."
	if err := s.saveAssistantMessage(ctx, session.ID, msg, preview); err != nil {
		return nil, err
	}
	return &ChatResult{Status: ChatPreview, Message: msg, SessionID: session.ID, Preview: preview}, nil
}

// CreateClientFromChatInput creates a roster entry mid-conversation after
// a client-not-found turn.
type CreateClientFromChatInput struct {
	SessionID    string
	Name         string
	Email        string
	DefaultRate  decimal.Decimal
	TemplateType domain.TemplateType
}

// CreateClientFromChat registers the client, links the session to it, and
// records the assistant's acknowledgment in the history.
func (s *ChatService) CreateClientFromChat(ctx context.Context, clients *ClientService, in CreateClientFromChatInput) (*ChatResult, error) {
	session, err := s.session(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	tt := in.TemplateType
	if tt == "" {
		tt = domain.TemplateHourly
	}
	client, err := clients.Create(ctx, ClientInput{
		Name:         in.Name,
		Email:        &in.Email,
		DefaultRate:  &in.DefaultRate,
		TemplateType: &tt,
	})
	if err != nil {
		return nil, err
	}

	if err := repo.UpdateSession(ctx, s.DB, session.ID, map[string]any{
		"client_id": client.ID,
		"title":     "Chat with " + client.Name,
	}); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Client '%s' created! Now tell me about the invoice you want to create.", client.Name)
	if err := s.saveAssistantMessage(ctx, session.ID, msg, nil); err != nil {
		return nil, err
	}
	return &ChatResult{Status: ChatMessage, Message: msg, SessionID: session.ID}, nil
}

// CreateSession starts a conversation, optionally pre-linked to a client.
// Explicit titles are normalized; an absent title falls back to
// "Chat with {client}" when a client is given, else the repo default.
func (s *ChatService) CreateSession(ctx context.Context, clientID *string, title string) (*domain.ChatSession, error) {
	title = normalizeTitle(title)
	if clientID != nil && title == "" {
		if client, err := repo.GetClient(ctx, s.DB, *clientID); err == nil {
			title = "Chat with " + client.Name
		}
	}
	return repo.CreateSession(ctx, s.DB, clientID, title)
}

// ListSessions returns a page of sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, includeArchived bool, page, pageSize int) ([]domain.ChatSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountSessions(ctx, s.DB, includeArchived)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, includeArchived, (page-1)*pageSize, pageSize)
	return items, total, err
}

// GetSession returns a session with its full message history loaded.
func (s *ChatService) GetSession(ctx context.Context, id string) (*domain.ChatSession, []domain.ChatMessage, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := repo.ListMessages(s.DB.WithContext(ctx), id, 0)
	if err != nil {
		return nil, nil, err
	}
	return session, msgs, nil
}

// CurrentPreview returns the session's current preview, or nil when idle.
// A malformed stored preview is treated as absent.
func (s *ChatService) CurrentPreview(ctx context.Context, sessionID string) (*domain.InvoicePreview, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, err := domain.UnmarshalPreview(session.InvoicePreviewJSON)
	if err != nil {
		return nil, nil
	}
	return p, nil
}

// DeleteSession removes a session and its messages.
func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	err := repo.DeleteSession(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// SetSessionArchived flips the archived flag (archive/restore).
func (s *ChatService) SetSessionArchived(ctx context.Context, id string, archived bool) error {
	err := repo.UpdateSession(ctx, s.DB, id, map[string]any{"archived": archived})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// SaveEvent records an out-of-band event (e.g. "invoice marked as sent") as
// an assistant message so the oracle sees it in later turns.
func (s *ChatService) SaveEvent(ctx context.Context, sessionID, content string) error {
	if _, err := s.session(ctx, sessionID); err != nil {
		return err
	}
	return s.saveAssistantMessage(ctx, sessionID, content, nil)
}

// PromoteMessagePreview makes an older assistant message's frozen preview
// the session's current one ("use this version").
func (s *ChatService) PromoteMessagePreview(ctx context.Context, sessionID, messageID string) (*domain.InvoicePreview, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	msg, err := repo.GetMessage(s.DB.WithContext(ctx), messageID)
	if err != nil || msg.SessionID != sessionID || !msg.HasPreview || msg.PreviewJSON == "" {
		return nil, gorm.ErrRecordNotFound
	}
	preview, err := domain.UnmarshalPreview(msg.PreviewJSON)
	if err != nil || preview == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if err := repo.UpdateSession(ctx, s.DB, sessionID, map[string]any{"invoice_preview_json": msg.PreviewJSON}); err != nil {
		return nil, err
	}
	return preview, nil
}

func (s *ChatService) session(ctx context.Context, id string) (*domain.ChatSession, error) {
	session, err := repo.GetSession(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (s *ChatService) getOrCreateSession(ctx context.Context, sessionID, clientID *string) (*domain.ChatSession, error) {
	if sessionID != nil && *sessionID != "" {
		session, err := repo.GetSession(ctx, s.DB, *sessionID)
		if err == nil {
			_ = repo.TouchSession(ctx, s.DB, session.ID)
			return session, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return s.CreateSession(ctx, clientID, "")
}

func (s *ChatService) saveUserMessage(ctx context.Context, sessionID, content string, imageURLs []string) error {
	m := &domain.ChatMessage{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
	}
	if len(imageURLs) > 0 {
		m.ImageURL = imageURLs[0]
		b, err := json.Marshal(imageURLs)
		if err != nil {
			return err
		}
		m.ImageURLsJSON = string(b)
	}
	_, err := repo.CreateMessage(s.DB.WithContext(ctx), m)
	return err
}

func (s *ChatService) saveAssistantMessage(ctx context.Context, sessionID, content string, preview *domain.InvoicePreview) error {
	m := &domain.ChatMessage{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   content,
	}
	if preview != nil {
		raw, err := domain.MarshalPreview(preview)
		if err != nil {
			return err
		}
		m.HasPreview = true
		m.PreviewJSON = raw
	}
	_, err := repo.CreateMessage(s.DB.WithContext(ctx), m)
	return err
}

func (s *ChatService) storePreview(ctx context.Context, sessionID string, preview *domain.InvoicePreview) error {
	raw, err := domain.MarshalPreview(preview)
	if err != nil {
		return err
	}
	return repo.UpdateSession(ctx, s.DB, sessionID, map[string]any{"invoice_preview_json": raw})
}

// history converts the most recent stored messages into oracle history,
// excluding the just-persisted user turn (it is sent as the live message).
func (s *ChatService) history(ctx context.Context, sessionID string) ([]oracle.HistoryMessage, error) {
	msgs, err := repo.ListMessages(s.DB.WithContext(ctx), sessionID, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	if s.HistoryLimit > 0 && len(msgs) > s.HistoryLimit {
		msgs = msgs[len(msgs)-s.HistoryLimit:]
	}
	out := make([]oracle.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		h := oracle.HistoryMessage{Role: string(m.Role), Content: m.Content}
		if m.HasPreview {
			h.PreviewJSON = m.PreviewJSON
		}
		switch {
		case m.ImageURLsJSON != "":
			var urls []string
			if err := json.Unmarshal([]byte(m.ImageURLsJSON), &urls); err == nil {
				h.ImageURLs = urls
			}
		case m.ImageURL != "":
			h.ImageURLs = []string{m.ImageURL}
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *ChatService) sessionInvoiceSummaries(ctx context.Context, sessionID string) ([]oracle.InvoiceSummary, error) {
	invs, err := repo.ListSessionInvoices(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]oracle.InvoiceSummary, 0, len(invs))
	for _, inv := range invs {
		out = append(out, oracle.InvoiceSummary{
			InvoiceNumber: inv.InvoiceNumber,
			TotalAmount:   inv.TotalAmount,
			Status:        string(inv.Status),
			CreatedAt:     inv.CreatedAt,
		})
	}
	return out, nil
}

// emailBody assembles the oracle email input from the committed invoice and
// the preview it came from.
func (s *ChatService) emailBody(preview *domain.InvoicePreview, inv *domain.Invoice) string {
	in := oracle.EmailInput{
		ClientName:    inv.Client.Name,
		InvoiceNumber: inv.InvoiceNumber,
		PeriodStart:   preview.ServicePeriodStart,
		PeriodEnd:     preview.ServicePeriodEnd,
		TotalAmount:   inv.TotalAmount,
		CompanyName:   s.CompanyName,
	}
	if in.PeriodStart == "" {
		in.PeriodStart = preview.Date
	}
	if in.PeriodEnd == "" {
		in.PeriodEnd = preview.Date
	}
	totalHours := decimal.Zero
	for _, e := range preview.HoursEntries {
		totalHours = totalHours.Add(e.Hours)
	}
	if len(preview.HoursEntries) > 0 {
		in.TotalHours = totalHours
		in.Rate = preview.HoursEntries[0].Rate
	}
	return oracle.EmailBody(in, s.EmailTemplates)
}

func invoicePDFURL(invoiceID string) string {
	return "/api/v1/invoices/" + invoiceID + "/pdf"
}
