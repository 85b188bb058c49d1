// Package domain defines the persistence models for clients, invoices, and
// chat sessions. These types are mapped with GORM and form the core data
// layer of the invoicing application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TemplateType selects which invoice template a client is billed with.
type TemplateType string

// Supported invoice template types.
const (
	TemplateHourly  TemplateType = "hourly"
	TemplateTuition TemplateType = "tuition"
	TemplateProject TemplateType = "project"
)

// Valid reports whether t is one of the supported template types.
func (t TemplateType) Valid() bool {
	switch t {
	case TemplateHourly, TemplateTuition, TemplateProject:
		return true
	}
	return false
}

// InvoiceStatus is the lifecycle state of an invoice:
// draft → generated → sent → paid.
type InvoiceStatus string

// Invoice lifecycle states.
const (
	StatusDraft     InvoiceStatus = "draft"
	StatusGenerated InvoiceStatus = "generated"
	StatusSent      InvoiceStatus = "sent"
	StatusPaid      InvoiceStatus = "paid"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusGenerated, StatusSent, StatusPaid:
		return true
	}
	return false
}

// Client stores a client's billing defaults and preferences.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name, globally unique (case-insensitive, enforced at
//     the service layer on top of the DB unique index).
//   - DefaultRate: hourly rate applied when the extraction omits one.
//   - TemplateType: which PDF template this client is billed with.
//   - InvoicePrefix: prefix for generated invoice numbers (default "INV").
//   - NextInvoiceNumber: optional manual sequence override; when set, the
//     next invoice uses it verbatim and it is advanced only on commit.
type Client struct {
	ID                string          `json:"id"                  gorm:"type:char(36);primaryKey"`
	Name              string          `json:"name"                gorm:"type:varchar(255);not null;uniqueIndex"`
	Email             string          `json:"email,omitempty"     gorm:"type:varchar(255)"`
	Address           string          `json:"address,omitempty"   gorm:"type:text"`
	DefaultRate       decimal.Decimal `json:"default_rate"        gorm:"type:NUMERIC;not null"`
	TemplateType      TemplateType    `json:"template_type"       gorm:"type:varchar(16);not null;default:'hourly';check:template_type IN ('hourly','tuition','project')"`
	PaymentTerms      string          `json:"payment_terms,omitempty" gorm:"type:text"`
	InvoicePrefix     string          `json:"invoice_prefix"      gorm:"type:varchar(20);not null;default:'INV'"`
	CompanyContext    string          `json:"company_context,omitempty" gorm:"type:text"`
	NextInvoiceNumber *int            `json:"next_invoice_number,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Client.
func (Client) TableName() string { return "clients" }

// Invoice is a finalized (or at least persisted) invoice for one client,
// optionally linked to the chat session that produced it.
//
// TotalAmount always equals the sum of the invoice's hours entries
// (hours × rate) plus its line items' amounts; it is recomputed by the
// service layer on every entry/item mutation and never trusted from
// client input after creation.
type Invoice struct {
	ID                 string          `json:"id"             gorm:"type:char(36);primaryKey"`
	ClientID           string          `json:"client_id"      gorm:"type:char(36);not null;index"`
	SessionID          *string         `json:"session_id,omitempty" gorm:"type:char(36);index"`
	InvoiceNumber      string          `json:"invoice_number" gorm:"type:varchar(50);not null;uniqueIndex"`
	Date               time.Time       `json:"date"           gorm:"type:date;not null"`
	ServicePeriodStart *time.Time      `json:"service_period_start,omitempty" gorm:"type:date"`
	ServicePeriodEnd   *time.Time      `json:"service_period_end,omitempty"   gorm:"type:date"`
	TotalAmount        decimal.Decimal `json:"total_amount"   gorm:"type:NUMERIC;not null"`
	Status             InvoiceStatus   `json:"status"         gorm:"type:varchar(16);not null;default:'draft';check:status IN ('draft','generated','sent','paid')"`
	PDFPath            string          `json:"pdf_path,omitempty" gorm:"type:varchar(500)"`
	Notes              string          `json:"notes,omitempty"    gorm:"type:text"`
	Archived           bool            `json:"archived"       gorm:"not null;default:false"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	// Client is the billed party. Invoices are cascade-deleted with it.
	Client Client `json:"-" gorm:"foreignKey:ClientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	HoursEntries []HoursEntry `json:"hours_entries,omitempty" gorm:"foreignKey:InvoiceID"`
	LineItems    []LineItem   `json:"line_items,omitempty"    gorm:"foreignKey:InvoiceID"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// HoursEntry is one day of billed work on an hourly invoice. The amount is
// derived (hours × rate) on read and not stored.
type HoursEntry struct {
	ID          string          `json:"id"         gorm:"type:char(36);primaryKey"`
	InvoiceID   string          `json:"invoice_id" gorm:"type:char(36);not null;index"`
	Date        time.Time       `json:"date"       gorm:"type:date;not null"`
	Hours       decimal.Decimal `json:"hours"      gorm:"type:NUMERIC;not null"`
	Rate        decimal.Decimal `json:"rate"       gorm:"type:NUMERIC;not null"`
	Ticket      string          `json:"ticket,omitempty"      gorm:"type:varchar(100)"`
	Description string          `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at"`

	Invoice Invoice `json:"-" gorm:"foreignKey:InvoiceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for HoursEntry.
func (HoursEntry) TableName() string { return "hours_entries" }

// Amount computes the billed amount for this entry (hours × rate).
func (e HoursEntry) Amount() decimal.Decimal {
	return e.Hours.Mul(e.Rate)
}

// LineItem is one itemized charge on a tuition/project invoice. Unlike
// HoursEntry, its amount (quantity × rate) is computed once at write time
// and persisted.
type LineItem struct {
	ID          string          `json:"id"          gorm:"type:char(36);primaryKey"`
	InvoiceID   string          `json:"invoice_id"  gorm:"type:char(36);not null;index"`
	Description string          `json:"description" gorm:"type:varchar(500);not null"`
	Quantity    decimal.Decimal `json:"quantity"    gorm:"type:NUMERIC;not null"`
	Rate        decimal.Decimal `json:"rate"        gorm:"type:NUMERIC;not null"`
	Amount      decimal.Decimal `json:"amount"      gorm:"type:NUMERIC;not null"`
	CreatedAt   time.Time       `json:"created_at"`

	Invoice Invoice `json:"-" gorm:"foreignKey:InvoiceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for LineItem.
func (LineItem) TableName() string { return "line_items" }

// MessageRole identifies the author of a chat message.
type MessageRole string

// Chat message roles.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ChatSession is a persistent conversation, optionally linked to a client.
// It carries at most one "current" invoice preview as an opaque JSON
// snapshot; the typed form is domain.InvoicePreview.
type ChatSession struct {
	ID                 string    `json:"id"        gorm:"type:char(36);primaryKey"`
	ClientID           *string   `json:"client_id,omitempty" gorm:"type:char(36);index"`
	Title              string    `json:"title"     gorm:"type:varchar(255);not null;default:'New Chat'"`
	InvoicePreviewJSON string    `json:"-"         gorm:"column:invoice_preview_json;type:text"`
	Archived           bool      `json:"archived"  gorm:"not null;default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Messages []ChatMessage `json:"messages,omitempty" gorm:"foreignKey:SessionID"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is a single utterance within a session. Assistant messages
// that produced an invoice preview carry their own frozen copy of it
// (HasPreview + PreviewJSON), distinct from the session's current preview,
// so the user can roll back to an earlier draft version.
type ChatMessage struct {
	ID            string      `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID     string      `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Role          MessageRole `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content       string      `json:"content"    gorm:"type:text;not null"`
	ImageURL      string      `json:"image_url,omitempty"  gorm:"type:text"` // legacy single image
	ImageURLsJSON string      `json:"-"          gorm:"column:image_urls_json;type:text"`
	HasPreview    bool        `json:"has_preview" gorm:"not null;default:false"`
	PreviewJSON   string      `json:"-"          gorm:"column:preview_json;type:text"`
	CreatedAt     time.Time   `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`

	// Session is the parent conversation. Messages are cascade-deleted
	// if their session is removed.
	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
