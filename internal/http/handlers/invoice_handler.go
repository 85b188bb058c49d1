// Invoice HTTP handlers.
//
// This file exposes REST endpoints for invoices:
//   - GET    /invoices                         (list, filtered + paginated)
//   - POST   /invoices                         (create with entries/items)
//   - GET    /invoices/{id}                    (fetch)
//   - PUT    /invoices/{id}                    (update)
//   - DELETE /invoices/{id}                    (remove)
//   - POST   /invoices/{id}/archive|restore    (archive flag)
//   - GET    /invoices/{id}/pdf                (render-on-demand download)
//   - POST   /invoices/{id}/entries            (append hours entry)
//   - DELETE /invoices/{id}/entries/{entryID}  (remove hours entry)
//   - POST   /invoices/{id}/items              (append line item)
//   - DELETE /invoices/{id}/items/{itemID}     (remove line item)
//
// Totals are always recomputed server side; client-sent amounts are ignored.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/services"
)

//
// DTOs
//

// HoursEntryRequest is one hours row on a create or append request.
type HoursEntryRequest struct {
	// Date of the work, YYYY-MM-DD.
	Date string `json:"date" example:"2026-07-03"`
	// Hours worked; fractional values allowed.
	Hours decimal.Decimal `json:"hours" swaggertype:"number" example:"7.5"`
	// Rate per hour; zero falls back to the client default at creation time.
	Rate        decimal.Decimal `json:"rate" swaggertype:"number" example:"100"`
	Ticket      string          `json:"ticket,omitempty" example:"PROJ-142"`
	Description string          `json:"description,omitempty"`
}

// LineItemRequest is one itemized charge. A nil quantity defaults to 1.
type LineItemRequest struct {
	Description string           `json:"description" example:"June tuition"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty" swaggertype:"number" example:"4"`
	Rate        decimal.Decimal  `json:"rate" swaggertype:"number" example:"75"`
}

// CreateInvoiceRequest is the JSON payload for direct invoice creation.
type CreateInvoiceRequest struct {
	ClientID           string              `json:"client_id" format:"uuid"`
	InvoiceNumber      string              `json:"invoice_number" example:"SPECTRIO-2026-017"`
	Date               string              `json:"date" example:"2026-07-15"`
	ServicePeriodStart string              `json:"service_period_start,omitempty" example:"2026-07-01"`
	ServicePeriodEnd   string              `json:"service_period_end,omitempty" example:"2026-07-15"`
	Notes              string              `json:"notes,omitempty"`
	HoursEntries       []HoursEntryRequest `json:"hours_entries,omitempty"`
	LineItems          []LineItemRequest   `json:"line_items,omitempty"`
}

// UpdateInvoiceRequest carries optional field updates; absent means unchanged.
type UpdateInvoiceRequest struct {
	InvoiceNumber      *string               `json:"invoice_number,omitempty"`
	Date               *string               `json:"date,omitempty" example:"2026-07-20"`
	ServicePeriodStart *string               `json:"service_period_start,omitempty"`
	ServicePeriodEnd   *string               `json:"service_period_end,omitempty"`
	Status             *domain.InvoiceStatus `json:"status,omitempty" example:"sent"`
	Notes              *string               `json:"notes,omitempty"`
}

// ListInvoicesResponse wraps a page of invoices and pagination information.
type ListInvoicesResponse struct {
	Invoices   []domain.Invoice `json:"invoices"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// entryInputs converts wire hours rows, validating dates.
func entryInputs(rows []HoursEntryRequest) ([]services.HoursEntryInput, error) {
	out := make([]services.HoursEntryInput, 0, len(rows))
	for i, r := range rows {
		d, err := parseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("hours_entries[%d].date: want YYYY-MM-DD", i)
		}
		out = append(out, services.HoursEntryInput{
			Date:        d,
			Hours:       r.Hours,
			Rate:        r.Rate,
			Ticket:      r.Ticket,
			Description: r.Description,
		})
	}
	return out, nil
}

// itemInputs converts wire line items.
func itemInputs(rows []LineItemRequest) []services.LineItemInput {
	out := make([]services.LineItemInput, 0, len(rows))
	for _, r := range rows {
		out = append(out, services.LineItemInput{
			Description: r.Description,
			Quantity:    r.Quantity,
			Rate:        r.Rate,
		})
	}
	return out
}

// failInvoice maps invoice service errors to HTTP responses.
func failInvoice(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvoiceNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
	case errors.Is(err, services.ErrInvoiceNumberTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrRenderFailure):
		fail(c, http.StatusInternalServerError, ErrCodeRenderFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// ListInvoices godoc
// @ID          listInvoices
// @Summary     List invoices (filtered, paginated)
// @Description Returns invoices newest first. Archived invoices are hidden unless include_archived=true.
// @Tags        Invoices
// @Produce     json
//
// @Param       client_id         query  string  false "Filter by client"        format(uuid)
// @Param       status            query  string  false "Filter by status"        Enums(draft, generated, sent, paid)
// @Param       start_date        query  string  false "Invoice date >= (YYYY-MM-DD)"
// @Param       end_date          query  string  false "Invoice date <= (YYYY-MM-DD)"
// @Param       include_archived  query  bool    false "Include archived invoices"
// @Param       page              query  int     false "Page number"             minimum(1) default(1)
// @Param       page_size         query  int     false "Items per page"          minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListInvoicesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /invoices [get]
func (h *Handlers) ListInvoices(c *gin.Context) {
	page, pageSize := clampPagination(c)

	from, err := parseDatePtr(c.Query("start_date"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date: want YYYY-MM-DD")
		return
	}
	to, err := parseDatePtr(c.Query("end_date"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end_date: want YYYY-MM-DD")
		return
	}

	in := services.ListInvoicesInput{
		ClientID:        c.Query("client_id"),
		Status:          c.Query("status"),
		DateFrom:        from,
		DateTo:          to,
		IncludeArchived: c.Query("include_archived") == "true",
		Offset:          (page - 1) * pageSize,
		Limit:           pageSize,
	}
	items, total, err := h.invoices.List(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListInvoicesResponse{
		Invoices:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// CreateInvoice godoc
// @ID          createInvoice
// @Summary     Create an invoice
// @Description Creates an invoice with its hours entries and line items in one transaction. The total is computed server side.
// @Tags        Invoices
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateInvoiceRequest  true  "Invoice payload"
//
// @Success     201  {object}  domain.Invoice
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Client not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invoice number taken"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /invoices [post]
func (h *Handlers) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.ClientID == "" || strings.TrimSpace(req.InvoiceNumber) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "client_id and invoice_number required")
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date: want YYYY-MM-DD")
		return
	}
	start, err := parseDatePtr(req.ServicePeriodStart)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "service_period_start: want YYYY-MM-DD")
		return
	}
	end, err := parseDatePtr(req.ServicePeriodEnd)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "service_period_end: want YYYY-MM-DD")
		return
	}
	entries, err := entryInputs(req.HoursEntries)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	inv, err := h.invoices.Create(c.Request.Context(), services.CreateInvoiceInput{
		ClientID:           req.ClientID,
		InvoiceNumber:      strings.TrimSpace(req.InvoiceNumber),
		Date:               date,
		ServicePeriodStart: start,
		ServicePeriodEnd:   end,
		Notes:              req.Notes,
		HoursEntries:       entries,
		LineItems:          itemInputs(req.LineItems),
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "client not found")
			return
		}
		if errors.Is(err, services.ErrInvoiceNumberTaken) {
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, inv)
}

// GetInvoice godoc
// @ID          getInvoice
// @Summary     Fetch an invoice with its entries and items
// @Tags        Invoices
// @Produce     json
//
// @Param       id  path  string  true  "Invoice ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Invoice
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id} [get]
func (h *Handlers) GetInvoice(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// UpdateInvoice godoc
// @ID          updateInvoice
// @Summary     Update an invoice
// @Description Applies the provided fields; invoice number changes re-check uniqueness.
// @Tags        Invoices
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                         true  "Invoice ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateInvoiceRequest  true  "Fields to update"
//
// @Success     200  {object}  domain.Invoice
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invoice number taken"
// @Router      /invoices/{id} [put]
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	in := services.UpdateInvoiceInput{
		InvoiceNumber: req.InvoiceNumber,
		Status:        req.Status,
		Notes:         req.Notes,
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date: want YYYY-MM-DD")
			return
		}
		in.Date = &d
	}
	if req.ServicePeriodStart != nil {
		d, err := parseDate(*req.ServicePeriodStart)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "service_period_start: want YYYY-MM-DD")
			return
		}
		in.ServicePeriodStart = &d
	}
	if req.ServicePeriodEnd != nil {
		d, err := parseDate(*req.ServicePeriodEnd)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "service_period_end: want YYYY-MM-DD")
			return
		}
		in.ServicePeriodEnd = &d
	}

	inv, err := h.invoices.Update(c.Request.Context(), id, in)
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// DeleteInvoice godoc
// @ID          deleteInvoice
// @Summary     Delete an invoice
// @Tags        Invoices
//
// @Param       id  path  string  true  "Invoice ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id} [delete]
func (h *Handlers) DeleteInvoice(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	if err := h.invoices.Delete(c.Request.Context(), id); err != nil {
		failInvoice(c, err)
		return
	}
	noContent(c)
}

// ArchiveInvoice godoc
// @ID          archiveInvoice
// @Summary     Archive an invoice
// @Description Hides the invoice from default listings without deleting it.
// @Tags        Invoices
// @Produce     json
//
// @Param       id  path  string  true  "Invoice ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Invoice
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id}/archive [post]
func (h *Handlers) ArchiveInvoice(c *gin.Context) { h.setInvoiceArchived(c, true) }

// RestoreInvoice godoc
// @ID          restoreInvoice
// @Summary     Restore an archived invoice
// @Tags        Invoices
// @Produce     json
//
// @Param       id  path  string  true  "Invoice ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Invoice
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id}/restore [post]
func (h *Handlers) RestoreInvoice(c *gin.Context) { h.setInvoiceArchived(c, false) }

func (h *Handlers) setInvoiceArchived(c *gin.Context, archived bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	if err := h.invoices.SetArchived(c.Request.Context(), id, archived); err != nil {
		failInvoice(c, err)
		return
	}
	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// InvoicePDF godoc
// @ID          invoicePDF
// @Summary     Download the invoice PDF
// @Description Renders the PDF on first download and reuses the file afterwards. Pass inline=true to view in the browser instead of downloading.
// @Tags        Invoices
// @Produce     application/pdf
//
// @Param       id      path   string  true   "Invoice ID (UUID)"  format(uuid)
// @Param       inline  query  bool    false  "Serve inline instead of as attachment"
//
// @Success     200  {file}    file
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Render failed"
// @Router      /invoices/{id}/pdf [get]
func (h *Handlers) InvoicePDF(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	path, err := h.invoices.PDF(c.Request.Context(), id)
	if err != nil {
		failInvoice(c, err)
		return
	}

	name := filepath.Base(path)
	if c.Query("inline") == "true" {
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
		c.Header("Content-Type", "application/pdf")
		c.File(path)
		return
	}
	c.FileAttachment(path, name)
}

// AddHoursEntry godoc
// @ID          addHoursEntry
// @Summary     Append an hours entry
// @Description Adds one hours row and recomputes the invoice total.
// @Tags        Invoices
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                      true  "Invoice ID (UUID)"  format(uuid)
// @Param       body  body  handlers.HoursEntryRequest  true  "Hours entry"
//
// @Success     200  {object}  domain.Invoice
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id}/entries [post]
func (h *Handlers) AddHoursEntry(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	var req HoursEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rows, err := entryInputs([]HoursEntryRequest{req})
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	inv, err := h.invoices.AddHoursEntry(c.Request.Context(), id, rows[0])
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// RemoveHoursEntry godoc
// @ID          removeHoursEntry
// @Summary     Remove an hours entry
// @Description Deletes one hours row and recomputes the invoice total.
// @Tags        Invoices
// @Produce     json
//
// @Param       id       path  string  true  "Invoice ID (UUID)"  format(uuid)
// @Param       entryID  path  string  true  "Hours entry ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Invoice
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice or entry not found"
// @Router      /invoices/{id}/entries/{entryID} [delete]
func (h *Handlers) RemoveHoursEntry(c *gin.Context) {
	id, entryID := c.Param("id"), c.Param("entryID")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	inv, err := h.invoices.RemoveHoursEntry(c.Request.Context(), id, entryID)
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// AddLineItem godoc
// @ID          addLineItem
// @Summary     Append a line item
// @Description Adds one itemized charge and recomputes the invoice total.
// @Tags        Invoices
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                    true  "Invoice ID (UUID)"  format(uuid)
// @Param       body  body  handlers.LineItemRequest  true  "Line item"
//
// @Success     200  {object}  domain.Invoice
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id}/items [post]
func (h *Handlers) AddLineItem(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	var req LineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "description required")
		return
	}

	inv, err := h.invoices.AddLineItem(c.Request.Context(), id, services.LineItemInput{
		Description: req.Description,
		Quantity:    req.Quantity,
		Rate:        req.Rate,
	})
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// RemoveLineItem godoc
// @ID          removeLineItem
// @Summary     Remove a line item
// @Description Deletes one itemized charge and recomputes the invoice total.
// @Tags        Invoices
// @Produce     json
//
// @Param       id      path  string  true  "Invoice ID (UUID)"  format(uuid)
// @Param       itemID  path  string  true  "Line item ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Invoice
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice or item not found"
// @Router      /invoices/{id}/items/{itemID} [delete]
func (h *Handlers) RemoveLineItem(c *gin.Context) {
	id, itemID := c.Param("id"), c.Param("itemID")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	inv, err := h.invoices.RemoveLineItem(c.Request.Context(), id, itemID)
	if err != nil {
		failInvoice(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}
