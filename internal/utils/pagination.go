// Package utils holds small helpers shared across layers, free of domain
// logic.
package utils

import "strconv"

// Pagination bounds shared by every list endpoint (clients, invoices, chat
// sessions). The max keeps a single page of invoices with preloaded entries
// from ballooning a response.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts s to an int, returning def when s is empty or not a
// valid integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size query values and bounds them:
// page is at least 1, page size sits in [1, MaxPageSize], and unparseable
// values fall back to the defaults.
func ClampPage(rawPage, rawSize string) (page, pageSize int) {
	page = AtoiDefault(rawPage, DefaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = AtoiDefault(rawSize, DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
