package oracle

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseExtraction_DirectReady(t *testing.T) {
	raw := `{"status":"ready","invoice_data":{"client_name":"Spectrio","invoice_type":"hourly","date":"2025-07-15","hours_entries":[{"date":"2025-07-14","hours":8,"rate":100.50}]}}`

	ext := ParseExtraction(raw)
	if ext.Status != StatusReady {
		t.Fatalf("expected ready, got %q", ext.Status)
	}
	if ext.Draft == nil || ext.Draft.ClientName != "Spectrio" || ext.Draft.InvoiceType != "hourly" {
		t.Fatalf("unexpected draft: %+v", ext.Draft)
	}
	if len(ext.Draft.HoursEntries) != 1 {
		t.Fatalf("expected 1 hours entry, got %+v", ext.Draft.HoursEntries)
	}
	e := ext.Draft.HoursEntries[0]
	if !e.Hours.Equal(decimal.NewFromInt(8)) || e.Rate == nil || !e.Rate.Equal(decimal.NewFromFloat(100.50)) {
		t.Fatalf("decimal fields wrong: %+v", e)
	}
}

func TestParseExtraction_Clarification(t *testing.T) {
	raw := `{"status":"clarification_needed","question":"Which dates did you work?","context":"hourly invoice for Spectrio"}`

	ext := ParseExtraction(raw)
	if ext.Status != StatusClarification || ext.Question != "Which dates did you work?" || ext.Context != "hourly invoice for Spectrio" {
		t.Fatalf("unexpected extraction: %+v", ext)
	}
}

func TestParseExtraction_SalvagesEmbeddedJSON(t *testing.T) {
	raw := "Sure! Here's the structured data you asked for:\n```json\n" +
		`{"status":"ready","invoice_data":{"client_name":"Acme","invoice_type":"project","line_items":[{"description":"Phase 1","rate":500}]}}` +
		"\n```\nLet me know if you need changes."

	ext := ParseExtraction(raw)
	if ext.Status != StatusReady || ext.Draft == nil || ext.Draft.ClientName != "Acme" {
		t.Fatalf("salvage failed: %+v", ext)
	}
	if len(ext.Draft.LineItems) != 1 || ext.Draft.LineItems[0].Quantity != nil {
		t.Fatalf("line items wrong (quantity should be absent): %+v", ext.Draft.LineItems)
	}
}

func TestParseExtraction_ProseDegradesToClarification(t *testing.T) {
	raw := "I'd be happy to help! Could you tell me which client this is for?"

	ext := ParseExtraction(raw)
	if ext.Status != StatusClarification {
		t.Fatalf("expected clarification, got %+v", ext)
	}
	if ext.Question != raw || ext.Context != "Could not parse structured response" {
		t.Fatalf("raw text should be carried as the question: %+v", ext)
	}
}

func TestParseExtraction_UnknownStatusDegrades(t *testing.T) {
	raw := `{"status":"error","message":"boom"}`

	ext := ParseExtraction(raw)
	if ext.Status != StatusClarification || !strings.Contains(ext.Question, "status") {
		t.Fatalf("unknown status should degrade to clarification carrying the raw text: %+v", ext)
	}
}

func TestParseExtraction_ClarificationDefaultQuestion(t *testing.T) {
	ext := ParseExtraction(`{"status":"clarification_needed"}`)
	if ext.Question != "Could you provide more details?" {
		t.Fatalf("expected default question, got %q", ext.Question)
	}
}
