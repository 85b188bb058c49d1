// Quick-invoice HTTP handlers.
//
// This file exposes the one-shot hourly invoice flow:
//   - POST /quick-invoice/extract-hours-image  (read hours from a screenshot)
//   - POST /quick-invoice/parse-hours-text     (map pasted hour values onto days)
//   - POST /quick-invoice/generate-email       (render the invoice email)
//   - POST /quick-invoice/create               (commit invoice + PDF in one call)
//
// The extract/parse endpoints answer 200 with a success flag: a model that
// cannot read the image, or text that does not parse, is a user-visible
// outcome, not a server fault. Only transport failures and malformed requests
// use the error envelope.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/oracle"
	"github.com/lshimizu/invoice-chat-backend/internal/services"
)

//
// DTOs
//

// QuickHoursEntryPayload is one day of work on the quick-invoice wire.
type QuickHoursEntryPayload struct {
	Date  string          `json:"date" example:"2026-07-01"`
	Hours decimal.Decimal `json:"hours" swaggertype:"number" example:"7.5"`
}

// ExtractHoursImageRequest carries a timesheet screenshot and its billing
// period.
type ExtractHoursImageRequest struct {
	ImageBase64 string `json:"image_base64"`
	// ImageType is the MIME type; defaults to image/png.
	ImageType string `json:"image_type,omitempty" example:"image/png"`
	StartDate string `json:"start_date" example:"2026-07-01"`
	EndDate   string `json:"end_date" example:"2026-07-15"`
}

// ParseHoursTextRequest carries pasted hour values ("5, 5, 0, 0, 7") and the
// period they cover.
type ParseHoursTextRequest struct {
	Text      string `json:"text" example:"5, 5, 0, 0, 7, 5, 7"`
	StartDate string `json:"start_date" example:"2026-07-01"`
	EndDate   string `json:"end_date" example:"2026-07-15"`
}

// HoursExtractionResponse is the shared result shape of both hour sources.
// Success false carries a user-facing reason in Error.
type HoursExtractionResponse struct {
	Success      bool                     `json:"success"`
	HoursEntries []QuickHoursEntryPayload `json:"hours_entries,omitempty"`
	TotalHours   decimal.Decimal          `json:"total_hours" swaggertype:"number"`
	Notes        string                   `json:"notes,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// QuickEmailRequest asks for the standard invoice email for known facts.
type QuickEmailRequest struct {
	ClientName    string          `json:"client_name" example:"Spectrio"`
	InvoiceNumber string          `json:"invoice_number" example:"SPECTRIO-2026-07"`
	PeriodStart   string          `json:"period_start" example:"2026-07-01"`
	PeriodEnd     string          `json:"period_end" example:"2026-07-15"`
	TotalHours    decimal.Decimal `json:"total_hours,omitempty" swaggertype:"number"`
	Rate          decimal.Decimal `json:"rate,omitempty" swaggertype:"number"`
	TotalAmount   decimal.Decimal `json:"total_amount" swaggertype:"number"`
}

// QuickEmailResponse is a rendered invoice email.
type QuickEmailResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// QuickCreateRequest creates an invoice from confirmed hours in one call.
type QuickCreateRequest struct {
	ClientID  string `json:"client_id" format:"uuid"`
	StartDate string `json:"start_date" example:"2026-07-01"`
	EndDate   string `json:"end_date" example:"2026-07-15"`
	// HoursEntries all bill at the same rate.
	HoursEntries []QuickHoursEntryPayload `json:"hours_entries"`
	// Rate overrides the client's default rate when present.
	Rate  *decimal.Decimal `json:"rate,omitempty" swaggertype:"number"`
	Notes string           `json:"notes,omitempty"`
	// GenerateEmail includes the invoice email in the response.
	GenerateEmail bool `json:"generate_email,omitempty"`
}

// QuickCreateResponse reports the committed invoice.
type QuickCreateResponse struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalHours    decimal.Decimal `json:"total_hours" swaggertype:"number"`
	TotalAmount   decimal.Decimal `json:"total_amount" swaggertype:"number"`
	PDFURL        string          `json:"pdf_url"`
	EmailSubject  string          `json:"email_subject,omitempty"`
	EmailBody     string          `json:"email_body,omitempty"`
}

// hoursPayload converts oracle entries to the wire shape.
func hoursPayload(entries []oracle.HoursEntry) []QuickHoursEntryPayload {
	out := make([]QuickHoursEntryPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, QuickHoursEntryPayload{Date: e.Date, Hours: e.Hours})
	}
	return out
}

//
// Handlers
//

// ExtractHoursImage godoc
// @ID          extractHoursImage
// @Summary     Extract hours from a timesheet screenshot
// @Description Runs the vision oracle over a base64 image and returns per-day hours for the billing period. An unreadable image answers 200 with success=false and a reason.
// @Tags        QuickInvoice
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ExtractHoursImageRequest  true  "Screenshot and period"
//
// @Success     200  {object}  handlers.HoursExtractionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502  {object}  handlers.ErrorResponse  "Extraction oracle unreachable"
// @Router      /quick-invoice/extract-hours-image [post]
func (h *Handlers) ExtractHoursImage(c *gin.Context) {
	var req ExtractHoursImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.ImageBase64 == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_base64 required")
		return
	}
	if _, err := parseDate(req.StartDate); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date: want YYYY-MM-DD")
		return
	}
	if _, err := parseDate(req.EndDate); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end_date: want YYYY-MM-DD")
		return
	}

	ext, err := h.quick.ExtractHoursImage(c.Request.Context(), oracle.HoursRequest{
		ImageBase64: req.ImageBase64,
		ImageType:   req.ImageType,
		PeriodStart: req.StartDate,
		PeriodEnd:   req.EndDate,
	})
	if err != nil {
		var hf *oracle.HoursFailure
		if errors.As(err, &hf) {
			ok(c, http.StatusOK, HoursExtractionResponse{Success: false, Error: hf.Reason})
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeExtractionFailed, "hours extraction failed")
		return
	}
	ok(c, http.StatusOK, HoursExtractionResponse{
		Success:      true,
		HoursEntries: hoursPayload(ext.Entries),
		TotalHours:   ext.TotalHours,
		Notes:        ext.Notes,
	})
}

// ParseHoursText godoc
// @ID          parseHoursText
// @Summary     Parse pasted hour values
// @Description Maps a pasted list of hours onto the days of the billing period, first value on start_date. Unparseable text answers 200 with success=false.
// @Tags        QuickInvoice
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ParseHoursTextRequest  true  "Hours text and period"
//
// @Success     200  {object}  handlers.HoursExtractionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /quick-invoice/parse-hours-text [post]
func (h *Handlers) ParseHoursText(c *gin.Context) {
	var req ParseHoursTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date: want YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end_date: want YYYY-MM-DD")
		return
	}

	entries, total, err := services.ParseHoursText(req.Text, start, end)
	if err != nil {
		ok(c, http.StatusOK, HoursExtractionResponse{Success: false, Error: "failed to parse hours: " + err.Error()})
		return
	}
	payload := make([]QuickHoursEntryPayload, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, QuickHoursEntryPayload{Date: e.Date.Format(dateLayout), Hours: e.Hours})
	}
	ok(c, http.StatusOK, HoursExtractionResponse{
		Success:      true,
		HoursEntries: payload,
		TotalHours:   total,
		Notes:        fmt.Sprintf("Parsed %d days from text input", len(entries)),
	})
}

// GenerateQuickEmail godoc
// @ID          generateQuickEmail
// @Summary     Render the invoice email
// @Description Builds the standard invoice email subject and body for the given facts, honoring per-client template overrides.
// @Tags        QuickInvoice
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.QuickEmailRequest  true  "Invoice facts"
//
// @Success     200  {object}  handlers.QuickEmailResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /quick-invoice/generate-email [post]
func (h *Handlers) GenerateQuickEmail(c *gin.Context) {
	var req QuickEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.ClientName == "" || req.InvoiceNumber == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "client_name and invoice_number required")
		return
	}
	start, err := parseDate(req.PeriodStart)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "period_start: want YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.PeriodEnd)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "period_end: want YYYY-MM-DD")
		return
	}

	subject, body := h.quick.GenerateEmail(services.QuickEmailInput{
		ClientName:    req.ClientName,
		InvoiceNumber: req.InvoiceNumber,
		PeriodStart:   start,
		PeriodEnd:     end,
		TotalHours:    req.TotalHours,
		Rate:          req.Rate,
		TotalAmount:   req.TotalAmount,
	})
	ok(c, http.StatusOK, QuickEmailResponse{Subject: subject, Body: body})
}

// QuickCreateInvoice godoc
// @ID          quickCreateInvoice
// @Summary     Create an invoice from confirmed hours
// @Description Commits an hourly invoice in one call: month-based invoice number, uniform rate (client default unless overridden), immediate PDF render, optional email. A PDF failure does not fail the creation; the download endpoint retries.
// @Tags        QuickInvoice
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.QuickCreateRequest  true  "Invoice payload"
//
// @Success     201  {object}  handlers.QuickCreateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Client not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Create failed"
// @Router      /quick-invoice/create [post]
func (h *Handlers) QuickCreateInvoice(c *gin.Context) {
	var req QuickCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if _, err := uuid.Parse(req.ClientID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "client_id must be a UUID")
		return
	}
	if len(req.HoursEntries) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "hours_entries required")
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date: want YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end_date: want YYYY-MM-DD")
		return
	}

	entries := make([]services.QuickHoursEntry, 0, len(req.HoursEntries))
	for i, e := range req.HoursEntries {
		d, err := parseDate(e.Date)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest,
				fmt.Sprintf("hours_entries[%d].date: want YYYY-MM-DD", i))
			return
		}
		entries = append(entries, services.QuickHoursEntry{Date: d, Hours: e.Hours})
	}

	res, err := h.quick.Create(c.Request.Context(), services.QuickCreateInput{
		ClientID:    req.ClientID,
		PeriodStart: start,
		PeriodEnd:   end,
		Entries:     entries,
		Rate:        req.Rate,
		Notes:       req.Notes,
		WithEmail:   req.GenerateEmail,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "client not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, QuickCreateResponse{
		InvoiceID:     res.Invoice.ID,
		InvoiceNumber: res.Invoice.InvoiceNumber,
		TotalHours:    res.TotalHours,
		TotalAmount:   res.Invoice.TotalAmount,
		PDFURL:        res.PDFURL,
		EmailSubject:  res.EmailSubject,
		EmailBody:     res.EmailBody,
	})
}
