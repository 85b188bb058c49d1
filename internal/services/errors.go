// Package services defines the business logic for clients, invoices, and the
// conversational invoice flow. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"

	"github.com/lshimizu/invoice-chat-backend/internal/domain"
)

var (
	// ErrSessionNotFound indicates that the requested chat session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvoiceNotFound indicates that the requested invoice does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrEmptyMessage is returned when a chat request contains neither text
	// nor images.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrClientNameTaken is returned when creating or renaming a client would
	// collide with an existing name (case-insensitive).
	ErrClientNameTaken = errors.New("client name already exists")

	// ErrInvoiceNumberTaken is returned when an explicit invoice number
	// update collides with an existing invoice.
	ErrInvoiceNumberTaken = errors.New("invoice number already exists")

	// ErrInvalidPreview is returned when a confirm request arrives with no
	// structurally valid preview on the session.
	ErrInvalidPreview = errors.New("no valid invoice preview to confirm")

	// ErrInvalidTemplateType is returned for unknown invoice template types.
	ErrInvalidTemplateType = errors.New("template type must be hourly, tuition, or project")

	// ErrInvalidStatus is returned for unknown invoice statuses.
	ErrInvalidStatus = errors.New("invalid invoice status")

	// ErrRenderFailure wraps PDF rendering errors surfaced after an invoice
	// has already been committed. The invoice stays in place.
	ErrRenderFailure = errors.New("pdf render failed")
)

// ClientNotFoundError is returned by client resolution when no roster entry
// matches the extracted name. It carries enough context for the chat layer to
// offer creating the client on the spot.
type ClientNotFoundError struct {
	// Name is the client name exactly as extracted from the conversation.
	Name string
	// SuggestedType is the invoice template type the extraction inferred,
	// used to prefill the create-client flow.
	SuggestedType domain.TemplateType
}

// Error implements the error interface.
func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("client %q not found", e.Name)
}

// AsClientNotFound unwraps err into a *ClientNotFoundError if it is one.
func AsClientNotFound(err error) (*ClientNotFoundError, bool) {
	var cnf *ClientNotFoundError
	if errors.As(err, &cnf) {
		return cnf, true
	}
	return nil, false
}
