package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"":                        "",
		"   ":                     "",
		"july   invoices":         "July Invoices",
		"ACME billing follow-up":  "ACME Billing Follow-Up",
		"  spaced\tout\ntitle  ":  "Spaced Out Title",
		"Invoice: Spectrio":       "Invoice: Spectrio",
	}
	for in, want := range cases {
		if got := normalizeTitle(in); got != want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTitle_Clips(t *testing.T) {
	long := strings.Repeat("word ", 40)
	got := normalizeTitle(long)
	if utf8.RuneCountInString(got) > sessionTitleMaxLen {
		t.Fatalf("title not clipped: %d runes", utf8.RuneCountInString(got))
	}
}
