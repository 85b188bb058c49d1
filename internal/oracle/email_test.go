package oracle

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEmailSubject(t *testing.T) {
	got := EmailSubject("SPECTRIO-2025-001", "Spectrio")
	if got != "Invoice SPECTRIO-2025-001 - Spectrio" {
		t.Fatalf("unexpected subject: %q", got)
	}
}

func TestEmailBody_DefaultTemplate(t *testing.T) {
	body := EmailBody(EmailInput{
		ClientName:    "Spectrio",
		InvoiceNumber: "SPECTRIO-2025-001",
		PeriodStart:   "2025-07-01",
		PeriodEnd:     "2025-07-15",
		TotalHours:    decimal.NewFromInt(12),
		Rate:          decimal.NewFromInt(100),
		TotalAmount:   decimal.NewFromInt(1200),
		CompanyName:   "Jane Doe Consulting",
	}, nil)

	for _, want := range []string{
		"Hi Spectrio Team,",
		"Invoice SPECTRIO-2025-001",
		"Jul 01, 2025 – Jul 15, 2025",
		"Total Due: $1200.00",
		"Jane Doe Consulting",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestEmailBody_ClientTemplateBySubstring_LongestKeyWins(t *testing.T) {
	templates := map[string]string{
		"acme":         "short match for {client_name}",
		"acme holding": "long match: {invoice_number}, {hours_info}",
	}
	body := EmailBody(EmailInput{
		ClientName:    "Acme Holdings LLC",
		InvoiceNumber: "ACME-2025-002",
		TotalHours:    decimal.NewFromFloat(7.5),
		Rate:          decimal.NewFromInt(80),
		TotalAmount:   decimal.NewFromInt(600),
	}, templates)

	if !strings.Contains(body, "long match: ACME-2025-002") {
		t.Fatalf("longest matching key should win: %q", body)
	}
	if !strings.Contains(body, "7.5 hours at $80.00/hr") {
		t.Fatalf("hours_info not rendered: %q", body)
	}
}

func TestEmailBody_EmptyKeyOverridesDefault(t *testing.T) {
	body := EmailBody(EmailInput{ClientName: "Nobody", TotalAmount: decimal.NewFromInt(5)},
		map[string]string{"": "custom default {total}"})
	if body != "custom default 5.00" {
		t.Fatalf("empty-key template should replace the default: %q", body)
	}
}

func TestFormatPeriod_FallbackOnBadDates(t *testing.T) {
	if got := formatPeriod("July 1", "2025-07-15"); got != "July 1 – 2025-07-15" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}
