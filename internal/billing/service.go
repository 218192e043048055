package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service implements the panel's billing operations on top of the store
// interfaces. Operations are looked up by reseller name or invoice number
// because that is what the operator types in chat.
type Service struct {
	resellers ResellerStore
	invoices  InvoiceStore
	payments  PaymentStore
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a billing service.
func NewService(resellers ResellerStore, invoices InvoiceStore, payments PaymentStore, logger *slog.Logger) *Service {
	return &Service{
		resellers: resellers,
		invoices:  invoices,
		payments:  payments,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// WithClock overrides the service time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateReseller registers a new reseller. Names are unique; they are the
// operator's handle for every later command.
func (s *Service) CreateReseller(ctx context.Context, name, phone string, chatID int64, note string) (*Reseller, error) {
	if name == "" {
		return nil, fmt.Errorf("reseller name is required")
	}
	if existing, err := s.resellers.GetByName(ctx, name); err == nil && existing != nil {
		return nil, ErrDuplicateName
	}

	r := &Reseller{
		Name:           name,
		Phone:          phone,
		TelegramChatID: chatID,
		Note:           note,
	}
	if err := s.resellers.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("creating reseller: %w", err)
	}

	s.logger.Info("reseller created", slog.String("name", name))
	return r, nil
}

// UpdateReseller applies the non-nil fields to the named reseller.
func (s *Service) UpdateReseller(ctx context.Context, name string, phone, note *string, chatID *int64) (*Reseller, error) {
	r, err := s.resellers.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if phone != nil {
		r.Phone = *phone
	}
	if note != nil {
		r.Note = *note
	}
	if chatID != nil {
		r.TelegramChatID = *chatID
	}
	if err := s.resellers.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("updating reseller: %w", err)
	}
	return r, nil
}

// IssueInvoice creates a new invoice for the named reseller. The invoice
// number is assigned by the store.
func (s *Service) IssueInvoice(ctx context.Context, resellerName string, amount decimal.Decimal, due time.Time) (*Invoice, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("invoice amount must be positive, got %s", amount)
	}
	r, err := s.resellers.GetByName(ctx, resellerName)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if due.IsZero() {
		due = now.Add(7 * 24 * time.Hour)
	}
	inv := &Invoice{
		ResellerID: r.ID,
		Amount:     amount,
		Status:     InvoiceIssued,
		IssuedAt:   now,
		DueAt:      due,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("issuing invoice: %w", err)
	}

	s.logger.Info("invoice issued",
		slog.Int64("number", inv.Number),
		slog.String("reseller", resellerName),
		slog.String("amount", amount.String()),
	)
	return inv, nil
}

// CancelInvoice voids an unpaid invoice by its number.
func (s *Service) CancelInvoice(ctx context.Context, number int64) (*Invoice, error) {
	inv, err := s.invoices.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceIssued {
		return nil, ErrInvoiceClosed
	}
	if err := s.invoices.SetStatus(ctx, inv.ID, InvoiceCancelled, nil); err != nil {
		return nil, fmt.Errorf("cancelling invoice %d: %w", number, err)
	}
	inv.Status = InvoiceCancelled

	s.logger.Info("invoice cancelled", slog.Int64("number", number))
	return inv, nil
}

// RegisterPayment records money received from the named reseller. When an
// invoice number is given the invoice is settled as part of the same call.
func (s *Service) RegisterPayment(ctx context.Context, resellerName string, amount decimal.Decimal, invoiceNumber *int64, note string) (*Payment, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	r, err := s.resellers.GetByName(ctx, resellerName)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		ResellerID:   r.ID,
		Amount:       amount,
		Note:         note,
		RegisteredAt: s.now(),
	}

	if invoiceNumber != nil {
		inv, err := s.invoices.GetByNumber(ctx, *invoiceNumber)
		if err != nil {
			return nil, err
		}
		if inv.Status != InvoiceIssued {
			return nil, ErrInvoiceClosed
		}
		if inv.ResellerID != r.ID {
			return nil, fmt.Errorf("invoice %d does not belong to %q", *invoiceNumber, resellerName)
		}
		paidAt := p.RegisteredAt
		if err := s.invoices.SetStatus(ctx, inv.ID, InvoicePaid, &paidAt); err != nil {
			return nil, fmt.Errorf("settling invoice %d: %w", *invoiceNumber, err)
		}
		p.InvoiceID = &inv.ID
	}

	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("registering payment: %w", err)
	}

	s.logger.Info("payment registered",
		slog.String("reseller", resellerName),
		slog.String("amount", amount.String()),
	)
	return p, nil
}

// StatusSummary is a reseller's account position.
type StatusSummary struct {
	Reseller     *Reseller
	Invoiced     decimal.Decimal // Sum of non-cancelled invoices.
	Paid         decimal.Decimal
	Balance      decimal.Decimal // Paid - Invoiced; negative = owes.
	OpenInvoices int
}

// ResellerStatus computes the account summary for the named reseller.
func (s *Service) ResellerStatus(ctx context.Context, name string) (*StatusSummary, error) {
	r, err := s.resellers.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	invoices, err := s.invoices.ListByReseller(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	payments, err := s.payments.ListByReseller(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	sum := &StatusSummary{Reseller: r}
	for _, inv := range invoices {
		if inv.Status == InvoiceCancelled {
			continue
		}
		sum.Invoiced = sum.Invoiced.Add(inv.Amount)
		if inv.Status == InvoiceIssued {
			sum.OpenInvoices++
		}
	}
	for _, p := range payments {
		sum.Paid = sum.Paid.Add(p.Amount)
	}
	sum.Balance = sum.Paid.Sub(sum.Invoiced)
	return sum, nil
}

// ListResellers returns all resellers.
func (s *Service) ListResellers(ctx context.Context) ([]Reseller, error) {
	return s.resellers.List(ctx)
}

// ListInvoices returns the named reseller's invoices.
func (s *Service) ListInvoices(ctx context.Context, resellerName string) ([]Invoice, error) {
	r, err := s.resellers.GetByName(ctx, resellerName)
	if err != nil {
		return nil, err
	}
	return s.invoices.ListByReseller(ctx, r.ID)
}

// ListOverdue returns all unpaid invoices past their due date.
func (s *Service) ListOverdue(ctx context.Context) ([]Invoice, error) {
	return s.invoices.ListOverdue(ctx, s.now())
}

// GetReseller fetches a reseller by ID, e.g. to resolve an invoice's
// owner for display.
func (s *Service) GetReseller(ctx context.Context, id uuid.UUID) (*Reseller, error) {
	return s.resellers.GetByID(ctx, id)
}
