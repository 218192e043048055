// Package billing defines the domain model of the reseller panel:
// resellers, the invoices issued to them, and the payments they make.
// Persistence lives behind the store interfaces; the GORM implementation
// is in internal/storage.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrResellerNotFound = errors.New("reseller not found")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrInvoiceClosed    = errors.New("invoice is already paid or cancelled")
	ErrDuplicateName    = errors.New("a reseller with that name already exists")
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus int

const (
	InvoiceIssued InvoiceStatus = iota
	InvoicePaid
	InvoiceCancelled
)

func (s InvoiceStatus) String() string {
	switch s {
	case InvoiceIssued:
		return "issued"
	case InvoicePaid:
		return "paid"
	case InvoiceCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Reseller is a downstream vendor account managed through the panel.
type Reseller struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	TelegramChatID int64 // 0 = no linked chat; reminders go to the operator instead.
	Note           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Invoice is a charge issued to a reseller. Amounts are exact decimals;
// never floats.
type Invoice struct {
	ID         uuid.UUID
	Number     int64 // Sequential, human-referenced ("invoice 1041").
	ResellerID uuid.UUID
	Amount     decimal.Decimal
	Status     InvoiceStatus
	IssuedAt   time.Time
	DueAt      time.Time
	PaidAt     *time.Time
}

// Overdue reports whether the invoice is unpaid past its due date.
func (i *Invoice) Overdue(now time.Time) bool {
	return i.Status == InvoiceIssued && now.After(i.DueAt)
}

// Payment is money received from a reseller, optionally settling a
// specific invoice.
type Payment struct {
	ID           uuid.UUID
	ResellerID   uuid.UUID
	InvoiceID    *uuid.UUID
	Amount       decimal.Decimal
	Note         string
	RegisteredAt time.Time
}

// ReminderTemplate is a cron-scheduled outbound message, e.g. a weekly
// overdue-invoice nudge.
type ReminderTemplate struct {
	ID        uuid.UUID
	Name      string
	CronSpec  string // Standard 5-field cron expression.
	Body      string // Message body; {reseller}, {amount}, {invoice} placeholders.
	Enabled   bool
	CreatedAt time.Time
	LastRunAt *time.Time
}

// ResellerStore is the persistence contract for resellers.
type ResellerStore interface {
	Create(ctx context.Context, r *Reseller) error
	Update(ctx context.Context, r *Reseller) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reseller, error)
	GetByName(ctx context.Context, name string) (*Reseller, error)
	List(ctx context.Context) ([]Reseller, error)
}

// InvoiceStore is the persistence contract for invoices.
type InvoiceStore interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByNumber(ctx context.Context, number int64) (*Invoice, error)
	ListByReseller(ctx context.Context, resellerID uuid.UUID) ([]Invoice, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error)
	SetStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, paidAt *time.Time) error
}

// PaymentStore is the persistence contract for payments.
type PaymentStore interface {
	Create(ctx context.Context, p *Payment) error
	ListByReseller(ctx context.Context, resellerID uuid.UUID) ([]Payment, error)
}

// ReminderTemplateStore is the persistence contract for reminder templates.
type ReminderTemplateStore interface {
	Create(ctx context.Context, t *ReminderTemplate) error
	ListEnabled(ctx context.Context) ([]ReminderTemplate, error)
	RecordRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error
}
