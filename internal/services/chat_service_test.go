package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/oracle"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"
)

// fakeExtractor returns a scripted extraction (or error) and records the
// last request it saw.
type fakeExtractor struct {
	ext     *oracle.Extraction
	err     error
	lastReq oracle.Request
	calls   int
}

func (f *fakeExtractor) Extract(_ context.Context, req oracle.Request) (*oracle.Extraction, error) {
	f.lastReq = req
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ext, nil
}

// fakeRenderer pretends to write a PDF; it can be told to fail.
type fakeRenderer struct {
	dir   string
	fail  bool
	calls int
}

func (f *fakeRenderer) Render(_ domain.TemplateType, inv *domain.Invoice, _ *domain.Client) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("render boom")
	}
	return filepath.Join(f.dir, inv.InvoiceNumber+".pdf"), nil
}

func newChatDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat_test.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newChatService(t *testing.T, db *gorm.DB, fe *fakeExtractor) (*ChatService, *fakeRenderer) {
	t.Helper()
	fr := &fakeRenderer{dir: t.TempDir()}
	inv := NewInvoiceService(db, fr)
	cs := NewChatService(db, fe, inv, nil, "Jane Doe Consulting", time.Hour)
	cs.now = func() time.Time { return time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC) }
	return cs, fr
}

func seedChatClient(t *testing.T, db *gorm.DB, name string, manualCounter *int) *domain.Client {
	t.Helper()
	c, err := repo.CreateClient(context.Background(), db, &domain.Client{
		Name:              name,
		DefaultRate:       decimal.NewFromInt(100),
		TemplateType:      domain.TemplateHourly,
		InvoicePrefix:     strings.ToUpper(name),
		NextInvoiceNumber: manualCounter,
	})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func readyDraft(clientName string) *oracle.Extraction {
	return &oracle.Extraction{
		Status: oracle.StatusReady,
		Draft: &oracle.InvoiceDraft{
			ClientName:  clientName,
			InvoiceType: "hourly",
			Date:        "2026-07-14",
			HoursEntries: []oracle.DraftHoursEntry{
				{Date: "2026-07-13", Hours: decimal.NewFromInt(8)},
				{Date: "2026-07-14", Hours: decimal.NewFromInt(4)},
			},
		},
	}
}

func TestProcess_EmptyMessage(t *testing.T) {
	cs, _ := newChatService(t, newChatDB(t), &fakeExtractor{})
	if _, err := cs.Process(context.Background(), ProcessInput{Content: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestProcess_ConfirmationWithoutPreviewIsNoOp(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	fe := &fakeExtractor{}
	cs, _ := newChatService(t, db, fe)

	res, err := cs.Process(ctx, ProcessInput{Content: "Confirm"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ChatMessage || !strings.Contains(res.Message, "Nothing to confirm") {
		t.Fatalf("unexpected result: %+v", res)
	}
	if fe.calls != 0 {
		t.Fatal("oracle must not be consulted for bare confirmation phrases")
	}

	// both the user turn and the assistant no-op are persisted
	_, msgs, err := cs.GetSession(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("expected persisted turn pair, got %+v", msgs)
	}
}

func TestProcess_ConfirmationWithMalformedPreviewErrors(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	fe := &fakeExtractor{}
	cs, _ := newChatService(t, db, fe)

	sess, err := cs.CreateSession(ctx, nil, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	// Plant preview JSON that no longer parses (e.g. written by an older,
	// incompatible build).
	if err := repo.UpdateSession(ctx, db, sess.ID, map[string]any{"invoice_preview_json": "{not json"}); err != nil {
		t.Fatalf("plant preview: %v", err)
	}

	_, err = cs.Process(ctx, ProcessInput{SessionID: &sess.ID, Content: "confirm"})
	if !errors.Is(err, ErrInvalidPreview) {
		t.Fatalf("expected ErrInvalidPreview, got %v", err)
	}
	if fe.calls != 0 {
		t.Fatal("oracle must not be consulted for bare confirmation phrases")
	}

	// the failure is explained in the conversation, not swallowed
	_, msgs, err := cs.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatal("expected persisted messages")
	}
	last := msgs[len(msgs)-1]
	if last.Role != domain.RoleAssistant || !strings.Contains(last.Content, "No valid invoice preview") {
		t.Fatalf("unexpected assistant reply: %+v", last)
	}
}

func TestProcess_ReadyExtractionProducesPreview(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	client := seedChatClient(t, db, "Spectrio", nil)
	fe := &fakeExtractor{ext: readyDraft("spectrio llc")}
	cs, _ := newChatService(t, db, fe)

	res, err := cs.Process(ctx, ProcessInput{Content: "invoice spectrio for this week"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ChatPreview || res.Preview == nil {
		t.Fatalf("expected preview, got %+v", res)
	}
	if res.Preview.ClientID != client.ID || !res.Preview.TotalAmount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("preview wrong: %+v", res.Preview)
	}
	if res.Preview.InvoiceNumber != "SPECTRIO-2026-001" {
		t.Fatalf("unexpected number %q", res.Preview.InvoiceNumber)
	}

	// session: preview stored, auto-titled, linked to client
	session, msgs, err := cs.GetSession(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Title != "Invoice: Spectrio" {
		t.Fatalf("title not auto-derived: %q", session.Title)
	}
	if session.ClientID == nil || *session.ClientID != client.ID {
		t.Fatalf("session not linked to client: %+v", session.ClientID)
	}
	if session.InvoicePreviewJSON == "" {
		t.Fatal("preview not stored on session")
	}
	last := msgs[len(msgs)-1]
	if !last.HasPreview || last.PreviewJSON == "" {
		t.Fatalf("assistant message missing frozen preview: %+v", last)
	}
	if fe.lastReq.ClientContext == "" || !strings.Contains(fe.lastReq.ClientContext, "Spectrio") {
		t.Fatalf("roster context not passed to oracle: %q", fe.lastReq.ClientContext)
	}
}

func TestProcess_NewExtractionReplacesPreviewWholesale(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	seedChatClient(t, db, "Spectrio", nil)
	fe := &fakeExtractor{ext: readyDraft("Spectrio")}
	cs, _ := newChatService(t, db, fe)

	first, err := cs.Process(ctx, ProcessInput{Content: "8 and 4 hours"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	fe.ext = &oracle.Extraction{
		Status: oracle.StatusReady,
		Draft: &oracle.InvoiceDraft{
			ClientName:  "Spectrio",
			InvoiceType: "hourly",
			Date:        "2026-07-14",
			HoursEntries: []oracle.DraftHoursEntry{
				{Date: "2026-07-14", Hours: decimal.NewFromInt(2)},
			},
		},
	}
	sid := first.SessionID
	second, err := cs.Process(ctx, ProcessInput{SessionID: &sid, Content: "actually just 2 hours"})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if !second.Preview.TotalAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("preview not replaced: %+v", second.Preview)
	}
	if len(second.Preview.HoursEntries) != 1 {
		t.Fatal("old entries leaked into new preview")
	}
	// oracle saw the prior preview for modification context
	if fe.lastReq.CurrentPreviewJSON == "" {
		t.Fatal("current preview not passed to oracle")
	}
}

func TestProcess_ClientNotFound(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	seedChatClient(t, db, "Spectrio", nil)
	fe := &fakeExtractor{ext: &oracle.Extraction{
		Status: oracle.StatusReady,
		Draft:  &oracle.InvoiceDraft{ClientName: "Acme", InvoiceType: "project"},
	}}
	cs, _ := newChatService(t, db, fe)

	res, err := cs.Process(ctx, ProcessInput{Content: "invoice Acme $500"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ChatClientNotFound {
		t.Fatalf("expected client_not_found, got %+v", res)
	}
	if res.SuggestedClient == nil || res.SuggestedClient.Name != "Acme" || res.SuggestedClient.TemplateType != domain.TemplateProject {
		t.Fatalf("suggested client wrong: %+v", res.SuggestedClient)
	}
	if !strings.Contains(res.Message, "'Acme' not found") {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestProcess_ClarificationAndOracleFailurePersisted(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	fe := &fakeExtractor{ext: &oracle.Extraction{
		Status:   oracle.StatusClarification,
		Question: "Which dates did you work?",
	}}
	cs, _ := newChatService(t, db, fe)

	res, err := cs.Process(ctx, ProcessInput{Content: "invoice please"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ChatClarification || res.Message != "Which dates did you work?" {
		t.Fatalf("unexpected: %+v", res)
	}

	fe.err = errors.New("upstream down")
	sid := res.SessionID
	res2, err := cs.Process(ctx, ProcessInput{SessionID: &sid, Content: "monday and tuesday"})
	if err != nil {
		t.Fatalf("oracle failure must not error the turn: %v", err)
	}
	if res2.Status != ChatError {
		t.Fatalf("expected error status, got %+v", res2)
	}
	_, msgs, _ := cs.GetSession(ctx, sid)
	last := msgs[len(msgs)-1]
	if last.Role != domain.RoleAssistant || !strings.Contains(last.Content, "Could not process") {
		t.Fatalf("failure not persisted as assistant message: %+v", last)
	}
}

func TestConfirm_CommitsSealsAndAdvancesCounter(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	counter := 7
	client := seedChatClient(t, db, "Spectrio", &counter)
	fe := &fakeExtractor{ext: readyDraft("Spectrio")}
	cs, fr := newChatService(t, db, fe)

	turn, err := cs.Process(ctx, ProcessInput{Content: "8 and 4 hours this week"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if turn.Preview.InvoiceNumber != "SPECTRIO-2026-007" {
		t.Fatalf("manual counter not used at preview: %q", turn.Preview.InvoiceNumber)
	}

	res, err := cs.Confirm(ctx, turn.SessionID, "")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Status != ChatInvoiceCreated || res.InvoiceID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.EmailSubject != "Invoice SPECTRIO-2026-007 - Spectrio" {
		t.Fatalf("email subject wrong: %q", res.EmailSubject)
	}
	if !strings.Contains(res.EmailBody, "Total Due: $1200.00") || !strings.Contains(res.EmailBody, "Jane Doe Consulting") {
		t.Fatalf("email body wrong: %q", res.EmailBody)
	}
	if fr.calls != 1 {
		t.Fatalf("expected one render, got %d", fr.calls)
	}

	inv, err := repo.GetInvoice(ctx, db, res.InvoiceID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Status != domain.StatusGenerated || inv.PDFPath == "" {
		t.Fatalf("invoice not generated: %+v", inv)
	}
	if !inv.TotalAmount.Equal(decimal.NewFromInt(1200)) || len(inv.HoursEntries) != 2 {
		t.Fatalf("children not committed: %+v", inv)
	}
	if inv.SessionID == nil || *inv.SessionID != turn.SessionID {
		t.Fatal("invoice not linked to session")
	}

	// counter advanced exactly once, at commit
	got, _ := repo.GetClient(ctx, db, client.ID)
	if got.NextInvoiceNumber == nil || *got.NextInvoiceNumber != 8 {
		t.Fatalf("counter not advanced: %+v", got.NextInvoiceNumber)
	}

	// preview sealed on the session
	sealed, err := cs.CurrentPreview(ctx, turn.SessionID)
	if err != nil || !sealed.Sealed() || sealed.InvoiceID != res.InvoiceID {
		t.Fatalf("preview not sealed: %+v, %v", sealed, err)
	}

	// second confirm short-circuits without a new invoice or render
	again, err := cs.Confirm(ctx, turn.SessionID, "")
	if err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if again.InvoiceID != res.InvoiceID || fr.calls != 1 {
		t.Fatalf("re-confirm created new work: %+v renders=%d", again, fr.calls)
	}
	total, _ := repo.CountInvoices(ctx, db, repo.InvoiceFilter{IncludeArchived: true})
	if total != 1 {
		t.Fatalf("expected 1 invoice, got %d", total)
	}
}

func TestConfirm_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	seedChatClient(t, db, "Spectrio", nil)
	fe := &fakeExtractor{ext: readyDraft("Spectrio")}
	cs, _ := newChatService(t, db, fe)

	turn, err := cs.Process(ctx, ProcessInput{Content: "8 and 4 hours"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	first, err := cs.Confirm(ctx, turn.SessionID, "key-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	replay, err := cs.Confirm(ctx, turn.SessionID, "key-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.InvoiceID != first.InvoiceID || replay.Status != ChatInvoiceCreated {
		t.Fatalf("replay diverged: %+v vs %+v", replay, first)
	}
}

func TestConfirm_NoPreview(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	cs, _ := newChatService(t, db, &fakeExtractor{})

	session, err := cs.CreateSession(ctx, nil, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := cs.Confirm(ctx, session.ID, ""); !errors.Is(err, ErrInvalidPreview) {
		t.Fatalf("expected ErrInvalidPreview, got %v", err)
	}
	if _, err := cs.Confirm(ctx, "missing", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConfirm_RenderFailureKeepsInvoice(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	seedChatClient(t, db, "Spectrio", nil)
	fe := &fakeExtractor{ext: readyDraft("Spectrio")}
	cs, fr := newChatService(t, db, fe)
	fr.fail = true

	turn, err := cs.Process(ctx, ProcessInput{Content: "8 and 4 hours"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	res, err := cs.Confirm(ctx, turn.SessionID, "")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Status != ChatInvoiceCreated || res.InvoiceID == "" {
		t.Fatalf("render failure must not roll back commit: %+v", res)
	}
	if !strings.Contains(res.Message, "PDF rendering failed") {
		t.Fatalf("render failure not reported: %q", res.Message)
	}
	inv, _ := repo.GetInvoice(ctx, db, res.InvoiceID)
	if inv == nil || inv.Status != domain.StatusDraft {
		t.Fatalf("invoice should remain a draft: %+v", inv)
	}
}

func TestCreateClientFromChat(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	cs, _ := newChatService(t, db, &fakeExtractor{})
	clients := NewClientService(db)

	session, _ := cs.CreateSession(ctx, nil, "")
	res, err := cs.CreateClientFromChat(ctx, clients, CreateClientFromChatInput{
		SessionID:    session.ID,
		Name:         "Acme",
		DefaultRate:  decimal.NewFromInt(85),
		TemplateType: domain.TemplateProject,
	})
	if err != nil {
		t.Fatalf("CreateClientFromChat: %v", err)
	}
	if res.Status != ChatMessage || !strings.Contains(res.Message, "'Acme' created") {
		t.Fatalf("unexpected: %+v", res)
	}
	got, err := repo.GetClientByNameCI(ctx, db, "acme")
	if err != nil || got.TemplateType != domain.TemplateProject {
		t.Fatalf("client not created: %+v, %v", got, err)
	}
	updated, _ := repo.GetSession(ctx, db, session.ID)
	if updated.ClientID == nil || *updated.ClientID != got.ID || updated.Title != "Chat with Acme" {
		t.Fatalf("session not linked: %+v", updated)
	}
}

func TestPromoteMessagePreview(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	seedChatClient(t, db, "Spectrio", nil)
	fe := &fakeExtractor{ext: readyDraft("Spectrio")}
	cs, _ := newChatService(t, db, fe)

	first, err := cs.Process(ctx, ProcessInput{Content: "8 and 4 hours"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	fe.ext = &oracle.Extraction{
		Status: oracle.StatusReady,
		Draft: &oracle.InvoiceDraft{
			ClientName: "Spectrio", InvoiceType: "hourly", Date: "2026-07-14",
			HoursEntries: []oracle.DraftHoursEntry{{Date: "2026-07-14", Hours: decimal.NewFromInt(1)}},
		},
	}
	sid := first.SessionID
	if _, err := cs.Process(ctx, ProcessInput{SessionID: &sid, Content: "just 1 hour"}); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	// find the first preview-bearing assistant message and promote it back
	_, msgs, _ := cs.GetSession(ctx, sid)
	var firstPreviewMsg *domain.ChatMessage
	for i := range msgs {
		if msgs[i].HasPreview {
			firstPreviewMsg = &msgs[i]
			break
		}
	}
	if firstPreviewMsg == nil {
		t.Fatal("no preview message found")
	}
	restored, err := cs.PromoteMessagePreview(ctx, sid, firstPreviewMsg.ID)
	if err != nil {
		t.Fatalf("PromoteMessagePreview: %v", err)
	}
	if !restored.TotalAmount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("wrong version restored: %+v", restored)
	}
	current, _ := cs.CurrentPreview(ctx, sid)
	if !current.TotalAmount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("session preview not replaced: %+v", current)
	}

	// a message without a preview cannot be promoted
	if _, err := cs.PromoteMessagePreview(ctx, sid, msgs[0].ID); err == nil {
		t.Fatal("expected error promoting non-preview message")
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newChatDB(t)
	cs, _ := newChatService(t, db, &fakeExtractor{})

	a, _ := cs.CreateSession(ctx, nil, "")
	if a.Title != "New Chat" {
		t.Fatalf("default title wrong: %q", a.Title)
	}
	b, _ := cs.CreateSession(ctx, nil, "Manual title")

	if err := cs.SaveEvent(ctx, b.ID, "Invoice marked as sent"); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	_, msgs, _ := cs.GetSession(ctx, b.ID)
	if len(msgs) != 1 || msgs[0].Role != domain.RoleAssistant {
		t.Fatalf("event not persisted: %+v", msgs)
	}

	if err := cs.SetSessionArchived(ctx, a.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	visible, total, _ := cs.ListSessions(ctx, false, 1, 10)
	if total != 1 || visible[0].ID != b.ID {
		t.Fatalf("archived session leaked: total=%d", total)
	}
	all, totalAll, _ := cs.ListSessions(ctx, true, 1, 10)
	if totalAll != 2 || len(all) != 2 {
		t.Fatalf("include_archived broken: %d %d", totalAll, len(all))
	}
	if err := cs.SetSessionArchived(ctx, a.ID, false); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if err := cs.DeleteSession(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cs.DeleteSession(ctx, a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
