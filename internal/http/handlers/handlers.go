// Handler wiring and shared request helpers.
//
// Handlers are transport-thin: they validate and normalize input, call
// application services, and translate service results (including sentinel
// errors) into HTTP responses with stable error codes.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lshimizu/invoice-chat-backend/internal/services"
	"github.com/lshimizu/invoice-chat-backend/internal/storage"
	"github.com/lshimizu/invoice-chat-backend/internal/utils"
)

// Handlers groups the HTTP endpoints for clients, invoices, chat, the
// quick-invoice flow, and image uploads. It depends on concrete services;
// transport concerns stay here.
type Handlers struct {
	clients  *services.ClientService
	invoices *services.InvoiceService
	chat     *services.ChatService
	quick    *services.QuickInvoiceService
	uploader storage.Uploader

	// maxUploadBytes caps a single image upload. Values <= 0 default to 10 MiB.
	maxUploadBytes int64
}

// New constructs a Handlers instance bound to the given services. uploader
// may be nil when object storage is not configured; image uploads then
// return 503.
func New(clients *services.ClientService, invoices *services.InvoiceService, chat *services.ChatService, quick *services.QuickInvoiceService, uploader storage.Uploader, maxUploadBytes int64) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handlers{
		clients:        clients,
		invoices:       invoices,
		chat:           chat,
		quick:          quick,
		uploader:       uploader,
		maxUploadBytes: maxUploadBytes,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// paginationFor derives the metadata block from a page request and total.
func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination bounds the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

// dateLayout is the wire format for calendar dates in JSON bodies and query
// parameters.
const dateLayout = "2006-01-02"

// parseDate parses a required YYYY-MM-DD value.
func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// parseDatePtr parses an optional YYYY-MM-DD value; empty yields nil.
func parseDatePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
