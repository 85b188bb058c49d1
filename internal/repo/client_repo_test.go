package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

func newClientRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("client_repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedClient(t *testing.T, db *gorm.DB, name string) *domain.Client {
	t.Helper()
	c, err := CreateClient(context.Background(), db, &domain.Client{
		Name:          name,
		DefaultRate:   decimal.NewFromInt(85),
		TemplateType:  domain.TemplateHourly,
		InvoicePrefix: "INV",
	})
	if err != nil {
		t.Fatalf("seed client %q: %v", name, err)
	}
	return c
}

func TestCreateClient_AssignsIDAndTimestamps(t *testing.T) {
	db := newClientRepoDB(t, &domain.Client{})

	c := seedClient(t, db, "Acme LLC")
	if c.ID == "" {
		t.Fatalf("expected generated UUID, got empty ID")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", c)
	}

	got, err := GetClient(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.Name != "Acme LLC" || !got.DefaultRate.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestCreateClient_DuplicateNameRejected(t *testing.T) {
	db := newClientRepoDB(t, &domain.Client{})

	seedClient(t, db, "Acme LLC")
	_, err := CreateClient(context.Background(), db, &domain.Client{
		Name:         "Acme LLC",
		DefaultRate:  decimal.NewFromInt(90),
		TemplateType: domain.TemplateHourly,
	})
	if err == nil {
		t.Fatalf("expected unique constraint violation on duplicate name")
	}
}

func TestListClients_OrderedByName(t *testing.T) {
	db := newClientRepoDB(t, &domain.Client{})

	seedClient(t, db, "Zeta Corp")
	seedClient(t, db, "Acme LLC")
	seedClient(t, db, "Midway Inc")

	out, err := ListClients(context.Background(), db)
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(out) != 3 || out[0].Name != "Acme LLC" || out[1].Name != "Midway Inc" || out[2].Name != "Zeta Corp" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestGetClientByNameCI(t *testing.T) {
	db := newClientRepoDB(t, &domain.Client{})
	ctx := context.Background()

	seedClient(t, db, "Acme LLC")

	got, err := GetClientByNameCI(ctx, db, "acme llc")
	if err != nil {
		t.Fatalf("GetClientByNameCI: %v", err)
	}
	if got.Name != "Acme LLC" {
		t.Fatalf("unexpected client: %+v", got)
	}

	if _, err := GetClientByNameCI(ctx, db, "nobody"); err == nil {
		t.Fatalf("expected gorm.ErrRecordNotFound")
	}
}

func TestUpdateClient_FieldsAndNotFound(t *testing.T) {
	db := newClientRepoDB(t, &domain.Client{})
	ctx := context.Background()

	c := seedClient(t, db, "Acme LLC")
	if err := UpdateClient(ctx, db, c.ID, map[string]any{
		"email":               "billing@acme.test",
		"next_invoice_number": 42,
	}); err != nil {
		t.Fatalf("UpdateClient: %v", err)
	}

	got, err := GetClient(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.Email != "billing@acme.test" || got.NextInvoiceNumber == nil || *got.NextInvoiceNumber != 42 {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := UpdateClient(ctx, db, "missing", map[string]any{"email": "x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteClient_RemovesRow(t *testing.T) {
	db := newClientRepoDB(t, &domain.Client{})
	ctx := context.Background()

	c := seedClient(t, db, "Acme LLC")
	if err := DeleteClient(ctx, db, c.ID); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if _, err := GetClient(ctx, db, c.ID); err == nil {
		t.Fatalf("expected client to be gone")
	}
	if err := DeleteClient(ctx, db, c.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
