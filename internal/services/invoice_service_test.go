package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"
)

func newInvSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "invsvc_test.db")),
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

func newInvoiceService(t *testing.T, db *gorm.DB) (*InvoiceService, *fakeRenderer) {
	t.Helper()
	fr := &fakeRenderer{dir: t.TempDir()}
	return NewInvoiceService(db, fr), fr
}

func seedInvClient(t *testing.T, db *gorm.DB) *domain.Client {
	t.Helper()
	c, err := repo.CreateClient(context.Background(), db, &domain.Client{
		Name:          "Spectrio",
		DefaultRate:   decimal.NewFromInt(100),
		TemplateType:  domain.TemplateHourly,
		InvoicePrefix: "SPECTRIO",
	})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func invDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestInvoiceCreate_ServerSideTotals(t *testing.T) {
	ctx := context.Background()
	db := newInvSvcDB(t)
	svc, _ := newInvoiceService(t, db)
	client := seedInvClient(t, db)

	qty := decimal.NewFromInt(2)
	inv, err := svc.Create(ctx, CreateInvoiceInput{
		ClientID:      client.ID,
		InvoiceNumber: "SPECTRIO-2026-001",
		Date:          invDate(t, "2026-07-15"),
		HoursEntries: []HoursEntryInput{
			{Date: invDate(t, "2026-07-14"), Hours: decimal.NewFromFloat(2.5), Rate: decimal.NewFromInt(100)},
		},
		LineItems: []LineItemInput{
			{Description: "Setup", Quantity: &qty, Rate: decimal.NewFromInt(50)},
			{Description: "Review", Rate: decimal.NewFromFloat(25.25)}, // qty defaults to 1
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// 2.5*100 + 2*50 + 25.25 = 375.25
	if !inv.TotalAmount.Equal(decimal.RequireFromString("375.25")) {
		t.Fatalf("total = %s, want 375.25", inv.TotalAmount)
	}
	if inv.Status != domain.StatusDraft {
		t.Fatalf("new invoices start as drafts, got %q", inv.Status)
	}
	if len(inv.HoursEntries) != 1 || len(inv.LineItems) != 2 {
		t.Fatalf("children missing: %+v", inv)
	}
	if !inv.LineItems[1].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("default quantity not applied: %+v", inv.LineItems[1])
	}

	// duplicate number rejected
	_, err = svc.Create(ctx, CreateInvoiceInput{
		ClientID:      client.ID,
		InvoiceNumber: "SPECTRIO-2026-001",
		Date:          invDate(t, "2026-07-16"),
		LineItems:     []LineItemInput{{Description: "x", Rate: decimal.NewFromInt(1)}},
	})
	if !errors.Is(err, ErrInvoiceNumberTaken) {
		t.Fatalf("expected ErrInvoiceNumberTaken, got %v", err)
	}
}

func TestInvoiceUpdate_NumberUniquenessRecheck(t *testing.T) {
	ctx := context.Background()
	db := newInvSvcDB(t)
	svc, _ := newInvoiceService(t, db)
	client := seedInvClient(t, db)

	mk := func(num string) *domain.Invoice {
		inv, err := svc.Create(ctx, CreateInvoiceInput{
			ClientID: client.ID, InvoiceNumber: num, Date: invDate(t, "2026-07-01"),
			LineItems: []LineItemInput{{Description: "x", Rate: decimal.NewFromInt(10)}},
		})
		if err != nil {
			t.Fatalf("create %s: %v", num, err)
		}
		return inv
	}
	a := mk("SPECTRIO-2026-001")
	b := mk("SPECTRIO-2026-002")

	taken := a.InvoiceNumber
	if _, err := svc.Update(ctx, b.ID, UpdateInvoiceInput{InvoiceNumber: &taken}); !errors.Is(err, ErrInvoiceNumberTaken) {
		t.Fatalf("expected ErrInvoiceNumberTaken, got %v", err)
	}

	fresh := "SPECTRIO-2026-010"
	sent := domain.StatusSent
	updated, err := svc.Update(ctx, b.ID, UpdateInvoiceInput{InvoiceNumber: &fresh, Status: &sent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.InvoiceNumber != fresh || updated.Status != domain.StatusSent {
		t.Fatalf("update not applied: %+v", updated)
	}

	bad := domain.InvoiceStatus("shredded")
	if _, err := svc.Update(ctx, b.ID, UpdateInvoiceInput{Status: &bad}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestInvoiceList_FiltersAndArchive(t *testing.T) {
	ctx := context.Background()
	db := newInvSvcDB(t)
	svc, _ := newInvoiceService(t, db)
	client := seedInvClient(t, db)

	for i, num := range []string{"SPECTRIO-2026-001", "SPECTRIO-2026-002", "SPECTRIO-2026-003"} {
		if _, err := svc.Create(ctx, CreateInvoiceInput{
			ClientID: client.ID, InvoiceNumber: num,
			Date:      invDate(t, "2026-07-01").AddDate(0, 0, i),
			LineItems: []LineItemInput{{Description: "x", Rate: decimal.NewFromInt(10)}},
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, total, err := svc.List(ctx, ListInvoicesInput{ClientID: client.ID})
	if err != nil || total != 3 {
		t.Fatalf("list: total=%d err=%v", total, err)
	}
	// newest first
	if items[0].InvoiceNumber != "SPECTRIO-2026-003" {
		t.Fatalf("order wrong: %q", items[0].InvoiceNumber)
	}

	from := invDate(t, "2026-07-02")
	_, total, _ = svc.List(ctx, ListInvoicesInput{DateFrom: &from})
	if total != 2 {
		t.Fatalf("date filter: got %d", total)
	}

	if err := svc.SetArchived(ctx, items[0].ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, total, _ = svc.List(ctx, ListInvoicesInput{})
	if total != 2 {
		t.Fatalf("archived invoice still listed: %d", total)
	}
	_, total, _ = svc.List(ctx, ListInvoicesInput{IncludeArchived: true})
	if total != 3 {
		t.Fatalf("include_archived broken: %d", total)
	}
	if err := svc.SetArchived(ctx, items[0].ID, false); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if _, _, err := svc.List(ctx, ListInvoicesInput{Status: "bogus"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestInvoicePDF_RenderOnDemandIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newInvSvcDB(t)
	svc, fr := newInvoiceService(t, db)
	client := seedInvClient(t, db)

	inv, err := svc.Create(ctx, CreateInvoiceInput{
		ClientID: client.ID, InvoiceNumber: "SPECTRIO-2026-001", Date: invDate(t, "2026-07-15"),
		HoursEntries: []HoursEntryInput{{Date: invDate(t, "2026-07-14"), Hours: decimal.NewFromInt(8), Rate: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	path, err := svc.PDF(ctx, inv.ID)
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if fr.calls != 1 {
		t.Fatalf("expected 1 render, got %d", fr.calls)
	}
	got, _ := svc.Get(ctx, inv.ID)
	if got.Status != domain.StatusGenerated || got.PDFPath != path {
		t.Fatalf("first render must mark generated: %+v", got)
	}

	// stored path is stale (fake renderer writes nothing) so a second call
	// renders again but must not regress the status
	if _, err := svc.PDF(ctx, inv.ID); err != nil {
		t.Fatalf("second PDF: %v", err)
	}
	got, _ = svc.Get(ctx, inv.ID)
	if got.Status != domain.StatusGenerated {
		t.Fatalf("status regressed: %q", got.Status)
	}

	fr.fail = true
	if _, err := svc.PDF(ctx, inv.ID); !errors.Is(err, ErrRenderFailure) {
		t.Fatalf("expected ErrRenderFailure, got %v", err)
	}
}

func TestInvoiceChildMutations_RecomputeTotals(t *testing.T) {
	ctx := context.Background()
	db := newInvSvcDB(t)
	svc, _ := newInvoiceService(t, db)
	client := seedInvClient(t, db)

	inv, err := svc.Create(ctx, CreateInvoiceInput{
		ClientID: client.ID, InvoiceNumber: "SPECTRIO-2026-001", Date: invDate(t, "2026-07-15"),
		HoursEntries: []HoursEntryInput{{Date: invDate(t, "2026-07-14"), Hours: decimal.NewFromInt(8), Rate: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inv, err = svc.AddHoursEntry(ctx, inv.ID, HoursEntryInput{
		Date: invDate(t, "2026-07-15"), Hours: decimal.NewFromInt(4), Rate: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("AddHoursEntry: %v", err)
	}
	if !inv.TotalAmount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("total after add = %s, want 1200", inv.TotalAmount)
	}

	inv, err = svc.AddLineItem(ctx, inv.ID, LineItemInput{Description: "Materials", Rate: decimal.NewFromFloat(25.50)})
	if err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}
	if !inv.TotalAmount.Equal(decimal.RequireFromString("1225.50")) {
		t.Fatalf("total after item = %s", inv.TotalAmount)
	}

	inv, err = svc.RemoveLineItem(ctx, inv.ID, inv.LineItems[0].ID)
	if err != nil {
		t.Fatalf("RemoveLineItem: %v", err)
	}
	inv, err = svc.RemoveHoursEntry(ctx, inv.ID, inv.HoursEntries[0].ID)
	if err != nil {
		t.Fatalf("RemoveHoursEntry: %v", err)
	}
	if !inv.TotalAmount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("total after removals = %s, want 400", inv.TotalAmount)
	}

	if _, err := svc.RemoveHoursEntry(ctx, inv.ID, "nope"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound for foreign entry, got %v", err)
	}
}

func TestCommitPreview_CollisionSuffixAndValidation(t *testing.T) {
	ctx := context.Background()
	db := newInvSvcDB(t)
	svc, _ := newInvoiceService(t, db)
	client := seedInvClient(t, db)

	// occupy the base number
	if _, err := svc.Create(ctx, CreateInvoiceInput{
		ClientID: client.ID, InvoiceNumber: "SPECTRIO-2026-001", Date: invDate(t, "2026-07-01"),
		LineItems: []LineItemInput{{Description: "x", Rate: decimal.NewFromInt(10)}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p := &domain.InvoicePreview{
		ClientID:      client.ID,
		ClientName:    client.Name,
		InvoiceNumber: "SPECTRIO-2026-001",
		InvoiceType:   domain.TemplateHourly,
		Date:          "2026-07-15",
		HoursEntries: []domain.PreviewHoursEntry{
			{Date: "2026-07-14", Hours: decimal.NewFromInt(8), Rate: decimal.NewFromInt(100), Amount: decimal.NewFromInt(800)},
		},
		TotalAmount: decimal.NewFromInt(800),
	}
	inv, err := svc.CommitPreview(ctx, p, nil)
	if err != nil {
		t.Fatalf("CommitPreview: %v", err)
	}
	if inv.InvoiceNumber != "SPECTRIO-2026-001a" {
		t.Fatalf("collision not suffixed: %q", inv.InvoiceNumber)
	}

	if _, err := svc.CommitPreview(ctx, &domain.InvoicePreview{ClientID: client.ID}, nil); !errors.Is(err, ErrInvalidPreview) {
		t.Fatalf("empty preview must be invalid, got %v", err)
	}
}
