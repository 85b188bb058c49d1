// Package services – invoice numbering
//
// Invoice numbers follow {PREFIX}-{YEAR}-{SEQ:03d}, e.g. SPECTRIO-2026-001.
// Preview time picks a base number; commit time re-checks global uniqueness
// and suffixes on collision, so concurrent commits never fail outright.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"
)

// nextInvoiceNumber computes the base number for a client's next invoice.
//
// Manual mode: when the client carries a NextInvoiceNumber counter, that
// value is used verbatim. The counter is advanced only when an invoice is
// actually committed, so repeated previews do not burn sequence numbers.
//
// Auto mode: scan the client's existing PREFIX-YEAR-* numbers, parse the
// trailing sequence (tolerating a collision letter suffix like "001a"),
// and take max+1.
func nextInvoiceNumber(client *domain.Client, invoiceDate time.Time, existing []string) string {
	prefix := client.InvoicePrefix
	if prefix == "" {
		prefix = "INV"
	}
	year := invoiceDate.Year()

	if client.NextInvoiceNumber != nil {
		return fmt.Sprintf("%s-%d-%03d", prefix, year, *client.NextInvoiceNumber)
	}

	want := fmt.Sprintf("%s-%d-", prefix, year)
	maxSeq := 0
	for _, num := range existing {
		if !strings.HasPrefix(num, want) {
			continue
		}
		parts := strings.Split(num, "-")
		if len(parts) < 3 {
			continue
		}
		if seq, ok := parseSeq(parts[len(parts)-1]); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	return fmt.Sprintf("%s-%d-%03d", prefix, year, maxSeq+1)
}

// parseSeq extracts the numeric sequence from a trailing segment such as
// "001", "015a", or "7". Only the digits within the first three characters
// count, matching the zero-padded format.
func parseSeq(segment string) (int, bool) {
	limit := len(segment)
	if limit > 3 {
		limit = 3
	}
	digits := make([]rune, 0, limit)
	for _, r := range segment[:limit] {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, false
	}
	return n, true
}

// uniqueInvoiceNumber guards the base number against collisions at commit
// time. If the base is taken it tries "a" through "z" suffixes, then falls
// back to a unix-timestamp suffix.
func uniqueInvoiceNumber(ctx context.Context, db *gorm.DB, base string) (string, error) {
	taken, err := repo.InvoiceNumberExists(ctx, db, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	for c := 'a'; c <= 'z'; c++ {
		candidate := base + string(c)
		taken, err := repo.InvoiceNumberExists(ctx, db, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%d", base, time.Now().Unix()), nil
}
