package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is a single in-memory backend for all three store interfaces.
type memStore struct {
	resellers map[uuid.UUID]*Reseller
	invoices  map[uuid.UUID]*Invoice
	payments  []*Payment
	nextNum   int64
}

func newMemStore() *memStore {
	return &memStore{
		resellers: make(map[uuid.UUID]*Reseller),
		invoices:  make(map[uuid.UUID]*Invoice),
		nextNum:   1000,
	}
}

func (m *memStore) Create(ctx context.Context, r *Reseller) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	m.resellers[r.ID] = r
	return nil
}

func (m *memStore) Update(ctx context.Context, r *Reseller) error {
	if _, ok := m.resellers[r.ID]; !ok {
		return ErrResellerNotFound
	}
	m.resellers[r.ID] = r
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id uuid.UUID) (*Reseller, error) {
	r, ok := m.resellers[id]
	if !ok {
		return nil, ErrResellerNotFound
	}
	return r, nil
}

func (m *memStore) GetByName(ctx context.Context, name string) (*Reseller, error) {
	for _, r := range m.resellers {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, ErrResellerNotFound
}

func (m *memStore) List(ctx context.Context) ([]Reseller, error) {
	out := make([]Reseller, 0, len(m.resellers))
	for _, r := range m.resellers {
		out = append(out, *r)
	}
	return out, nil
}

type memInvoices struct{ m *memStore }

func (s memInvoices) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	s.m.nextNum++
	inv.Number = s.m.nextNum
	s.m.invoices[inv.ID] = inv
	return nil
}

func (s memInvoices) GetByNumber(ctx context.Context, number int64) (*Invoice, error) {
	for _, inv := range s.m.invoices {
		if inv.Number == number {
			return inv, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (s memInvoices) ListByReseller(ctx context.Context, resellerID uuid.UUID) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range s.m.invoices {
		if inv.ResellerID == resellerID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s memInvoices) ListOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range s.m.invoices {
		if inv.Overdue(asOf) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s memInvoices) SetStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, paidAt *time.Time) error {
	inv, ok := s.m.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	inv.PaidAt = paidAt
	return nil
}

type memPayments struct{ m *memStore }

func (s memPayments) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	s.m.payments = append(s.m.payments, p)
	return nil
}

func (s memPayments) ListByReseller(ctx context.Context, resellerID uuid.UUID) ([]Payment, error) {
	var out []Payment
	for _, p := range s.m.payments {
		if p.ResellerID == resellerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newTestService() (*Service, *memStore) {
	m := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(m, memInvoices{m}, memPayments{m}, logger), m
}

func TestIssueAndSettleInvoice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if _, err := svc.CreateReseller(ctx, "Store A", "0912", 0, ""); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}

	inv, err := svc.IssueInvoice(ctx, "Store A", decimal.NewFromInt(500000), time.Time{})
	if err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}
	if inv.Number == 0 {
		t.Fatal("invoice number not assigned")
	}

	num := inv.Number
	if _, err := svc.RegisterPayment(ctx, "Store A", decimal.NewFromInt(500000), &num, "first"); err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}

	sum, err := svc.ResellerStatus(ctx, "Store A")
	if err != nil {
		t.Fatalf("ResellerStatus: %v", err)
	}
	if !sum.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", sum.Balance)
	}
	if sum.OpenInvoices != 0 {
		t.Errorf("open invoices = %d, want 0", sum.OpenInvoices)
	}

	// Paying a settled invoice again must fail.
	if _, err := svc.RegisterPayment(ctx, "Store A", decimal.NewFromInt(1), &num, ""); !errors.Is(err, ErrInvoiceClosed) {
		t.Errorf("double settle err = %v, want ErrInvoiceClosed", err)
	}
}

func TestCancelInvoice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if _, err := svc.CreateReseller(ctx, "Store B", "", 0, ""); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}
	inv, err := svc.IssueInvoice(ctx, "Store B", decimal.NewFromInt(90000), time.Time{})
	if err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}

	if _, err := svc.CancelInvoice(ctx, inv.Number); err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}
	if _, err := svc.CancelInvoice(ctx, inv.Number); !errors.Is(err, ErrInvoiceClosed) {
		t.Errorf("cancel twice err = %v, want ErrInvoiceClosed", err)
	}

	// Cancelled invoices drop out of the balance.
	sum, err := svc.ResellerStatus(ctx, "Store B")
	if err != nil {
		t.Fatalf("ResellerStatus: %v", err)
	}
	if !sum.Invoiced.IsZero() {
		t.Errorf("invoiced = %s, want 0", sum.Invoiced)
	}
}

func TestDuplicateResellerName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if _, err := svc.CreateReseller(ctx, "Store C", "", 0, ""); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}
	if _, err := svc.CreateReseller(ctx, "Store C", "", 0, ""); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate err = %v, want ErrDuplicateName", err)
	}
}

func TestOverdueInvoices(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return base })

	if _, err := svc.CreateReseller(ctx, "Store D", "", 0, ""); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}
	if _, err := svc.IssueInvoice(ctx, "Store D", decimal.NewFromInt(10000), base.Add(24*time.Hour)); err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}

	svc.WithClock(func() time.Time { return base.Add(48 * time.Hour) })
	overdue, err := svc.ListOverdue(ctx)
	if err != nil {
		t.Fatalf("ListOverdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Errorf("overdue = %d, want 1", len(overdue))
	}
}

func TestPaymentRejectsWrongReseller(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if _, err := svc.CreateReseller(ctx, "Store E", "", 0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateReseller(ctx, "Store F", "", 0, ""); err != nil {
		t.Fatal(err)
	}
	inv, err := svc.IssueInvoice(ctx, "Store E", decimal.NewFromInt(5000), time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	num := inv.Number
	if _, err := svc.RegisterPayment(ctx, "Store F", decimal.NewFromInt(5000), &num, ""); err == nil {
		t.Error("payment against another reseller's invoice should fail")
	}
}
