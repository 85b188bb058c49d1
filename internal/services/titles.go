package services

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// sessionTitleMaxLen caps stored session titles by rune length.
const sessionTitleMaxLen = 80

// titleCaser uppercases word-initial letters without lowering the rest, so
// acronyms in client or project names survive ("ACME invoices" stays "ACME
// Invoices").
var titleCaser = cases.Title(language.Und, cases.NoLower)

// normalizeTitle collapses whitespace, clips to sessionTitleMaxLen runes, and
// title-cases the result. Applied to user-supplied session titles only;
// derived titles ("Invoice: X", "Chat with X") are stored verbatim.
func normalizeTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if utf8.RuneCountInString(s) > sessionTitleMaxLen {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:sessionTitleMaxLen]))
	}
	return titleCaser.String(s)
}
