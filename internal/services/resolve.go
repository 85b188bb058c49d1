// Package services – client resolution
//
// Extracted client names rarely match the roster verbatim ("spectrio llc"
// vs "Spectrio"). resolveClient layers three passes over the roster, from
// strict to fuzzy, and returns the first hit:
//
//  1. exact match, case-insensitive
//  2. substring containment in either direction, first roster hit in
//     storage order (ambiguity intentionally resolves to the first hit)
//  3. legal-suffix-normalized comparison: both sides are stripped of
//     trailing business suffixes (LLC, Inc, Corp, ...) and compared with
//     passes 1–2 again
//
// A miss is not a plain sentinel: it yields a *ClientNotFoundError carrying
// the raw name and the extraction's suggested template type so the chat
// layer can offer to create the client.
package services

import (
	"regexp"
	"strings"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

// legalSuffixREs strip one trailing business suffix per pass, with an
// optional trailing dot. Applied repeatedly until the name stops changing
// ("Acme Holdings Co. LLC" → "Acme Holdings").
var legalSuffixREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+LLC\.?$`),
	regexp.MustCompile(`(?i)\s+Inc\.?$`),
	regexp.MustCompile(`(?i)\s+Corp\.?$`),
	regexp.MustCompile(`(?i)\s+Corporation$`),
	regexp.MustCompile(`(?i)\s+Ltd\.?$`),
	regexp.MustCompile(`(?i)\s+Limited$`),
	regexp.MustCompile(`(?i)\s+Co\.?$`),
	regexp.MustCompile(`(?i)\s+Company$`),
	regexp.MustCompile(`(?i)\s+LP$`),
	regexp.MustCompile(`(?i)\s+LLP$`),
	regexp.MustCompile(`(?i)\s+PC$`),
	regexp.MustCompile(`(?i)\s+PLLC$`),
}

// normalizeClientName trims whitespace and strips trailing legal suffixes.
func normalizeClientName(name string) string {
	out := strings.TrimSpace(name)
	for {
		before := out
		for _, re := range legalSuffixREs {
			out = re.ReplaceAllString(out, "")
		}
		out = strings.TrimSpace(out)
		if out == before {
			return out
		}
	}
}

// resolveClient matches name against the roster. The roster slice must be in
// storage order; ties on the substring pass go to the first element.
func resolveClient(roster []domain.Client, name string, suggestedType domain.TemplateType) (*domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ClientNotFoundError{Name: name, SuggestedType: suggestedType}
	}
	lower := strings.ToLower(name)

	// 1. exact, case-insensitive
	for i := range roster {
		if strings.ToLower(roster[i].Name) == lower {
			return &roster[i], nil
		}
	}

	// 2. substring either direction, first hit wins
	for i := range roster {
		rl := strings.ToLower(roster[i].Name)
		if strings.Contains(rl, lower) || strings.Contains(lower, rl) {
			return &roster[i], nil
		}
	}

	// 3. suffix-normalized exact, then substring
	normInput := strings.ToLower(normalizeClientName(name))
	if normInput != "" {
		for i := range roster {
			if strings.ToLower(normalizeClientName(roster[i].Name)) == normInput {
				return &roster[i], nil
			}
		}
		for i := range roster {
			normDB := strings.ToLower(normalizeClientName(roster[i].Name))
			if normDB == "" {
				continue
			}
			if strings.Contains(normDB, normInput) || strings.Contains(normInput, normDB) {
				return &roster[i], nil
			}
		}
	}

	return nil, &ClientNotFoundError{Name: name, SuggestedType: suggestedType}
}
