// Client HTTP handlers.
//
// This file exposes REST endpoints for the client roster:
//   - POST   /clients        (create)
//   - GET    /clients        (list)
//   - GET    /clients/{id}   (fetch)
//   - PUT    /clients/{id}   (update)
//   - DELETE /clients/{id}   (remove)
//
// Client names are unique case-insensitively; collisions map to 409.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
	"github.com/lshimizu/invoice-chat-backend/internal/services"
)

// ClientRequest is the JSON payload for creating or updating a client.
// On updates, absent fields are left unchanged.
type ClientRequest struct {
	// Name is the display name; unique across the roster (case-insensitive).
	Name string `json:"name" example:"Spectrio LLC"`
	// Email receives generated invoice emails.
	Email *string `json:"email,omitempty" example:"billing@spectrio.example"`
	// Address appears in the invoice Bill To block.
	Address *string `json:"address,omitempty"`
	// DefaultRate is the hourly rate used when an entry omits one.
	DefaultRate *decimal.Decimal `json:"default_rate,omitempty" swaggertype:"number" example:"100"`
	// TemplateType is one of hourly, tuition, project.
	TemplateType *domain.TemplateType `json:"template_type,omitempty" example:"hourly"`
	// PaymentTerms is free text printed on invoices (e.g. "Net 30").
	PaymentTerms *string `json:"payment_terms,omitempty" example:"Net 30"`
	// InvoicePrefix seeds generated invoice numbers.
	InvoicePrefix *string `json:"invoice_prefix,omitempty" example:"SPECTRIO"`
	// CompanyContext is free-form context surfaced to the extraction prompt.
	CompanyContext *string `json:"company_context,omitempty"`
	// NextInvoiceNumber, when set, pins the manual numbering counter.
	NextInvoiceNumber *int `json:"next_invoice_number,omitempty" example:"17"`
}

// input converts the wire payload to the service input type.
func (r ClientRequest) input() services.ClientInput {
	return services.ClientInput{
		Name:              strings.TrimSpace(r.Name),
		Email:             r.Email,
		Address:           r.Address,
		DefaultRate:       r.DefaultRate,
		TemplateType:      r.TemplateType,
		PaymentTerms:      r.PaymentTerms,
		InvoicePrefix:     r.InvoicePrefix,
		CompanyContext:    r.CompanyContext,
		NextInvoiceNumber: r.NextInvoiceNumber,
	}
}

// CreateClient godoc
// @ID          createClient
// @Summary     Register a client
// @Description Creates a client with defaults (hourly template, INV prefix) for absent fields.
// @Tags        Clients
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ClientRequest  true  "Client payload"
//
// @Success     201  {object}  domain.Client
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Name already taken"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /clients [post]
func (h *Handlers) CreateClient(c *gin.Context) {
	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	client, err := h.clients.Create(c.Request.Context(), req.input())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrClientNameTaken):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		case errors.Is(err, services.ErrInvalidTemplateType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, client)
}

// ListClients godoc
// @ID          listClients
// @Summary     List clients
// @Description Returns the full roster ordered by name.
// @Tags        Clients
// @Produce     json
//
// @Success     200  {array}   domain.Client
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /clients [get]
func (h *Handlers) ListClients(c *gin.Context) {
	clients, err := h.clients.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, clients)
}

// GetClient godoc
// @ID          getClient
// @Summary     Fetch a client
// @Tags        Clients
// @Produce     json
//
// @Param       id  path  string  true  "Client ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Client
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Client not found"
// @Router      /clients/{id} [get]
func (h *Handlers) GetClient(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "client id must be a UUID")
		return
	}

	client, err := h.clients.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "client not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, client)
}

// UpdateClient godoc
// @ID          updateClient
// @Summary     Update a client
// @Description Applies the provided fields; renames re-check name uniqueness.
// @Tags        Clients
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                  true  "Client ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ClientRequest  true  "Fields to update"
//
// @Success     200  {object}  domain.Client
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Client not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Name already taken"
// @Router      /clients/{id} [put]
func (h *Handlers) UpdateClient(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "client id must be a UUID")
		return
	}

	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	client, err := h.clients.Update(c.Request.Context(), id, req.input())
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "client not found")
		case errors.Is(err, services.ErrClientNameTaken):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		case errors.Is(err, services.ErrInvalidTemplateType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, client)
}

// DeleteClient godoc
// @ID          deleteClient
// @Summary     Delete a client
// @Description Removes the client; its invoices cascade at the DB level.
// @Tags        Clients
//
// @Param       id  path  string  true  "Client ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Client not found"
// @Router      /clients/{id} [delete]
func (h *Handlers) DeleteClient(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "client id must be a UUID")
		return
	}

	if err := h.clients.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "client not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
