package reminder

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rasidhq/rasid/internal/billing"
	"github.com/rasidhq/rasid/internal/config"
)

// --- in-memory stores ---

type memResellers struct{ items []*billing.Reseller }

func (m *memResellers) Create(_ context.Context, r *billing.Reseller) error {
	r.ID = uuid.New()
	m.items = append(m.items, r)
	return nil
}
func (m *memResellers) Update(context.Context, *billing.Reseller) error { return nil }
func (m *memResellers) GetByID(_ context.Context, id uuid.UUID) (*billing.Reseller, error) {
	for _, r := range m.items {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, billing.ErrResellerNotFound
}
func (m *memResellers) GetByName(_ context.Context, name string) (*billing.Reseller, error) {
	for _, r := range m.items {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, billing.ErrResellerNotFound
}
func (m *memResellers) List(context.Context) ([]billing.Reseller, error) {
	out := make([]billing.Reseller, len(m.items))
	for i, r := range m.items {
		out[i] = *r
	}
	return out, nil
}

type memInvoices struct{ items []*billing.Invoice }

func (m *memInvoices) Create(_ context.Context, inv *billing.Invoice) error {
	inv.ID = uuid.New()
	inv.Number = int64(1000 + len(m.items))
	m.items = append(m.items, inv)
	return nil
}
func (m *memInvoices) GetByNumber(_ context.Context, number int64) (*billing.Invoice, error) {
	for _, inv := range m.items {
		if inv.Number == number {
			return inv, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}
func (m *memInvoices) ListByReseller(_ context.Context, resellerID uuid.UUID) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range m.items {
		if inv.ResellerID == resellerID {
			out = append(out, *inv)
		}
	}
	return out, nil
}
func (m *memInvoices) ListOverdue(_ context.Context, asOf time.Time) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range m.items {
		if inv.Overdue(asOf) {
			out = append(out, *inv)
		}
	}
	return out, nil
}
func (m *memInvoices) SetStatus(context.Context, uuid.UUID, billing.InvoiceStatus, *time.Time) error {
	return nil
}

type memPayments struct{}

func (memPayments) Create(context.Context, *billing.Payment) error { return nil }
func (memPayments) ListByReseller(context.Context, uuid.UUID) ([]billing.Payment, error) {
	return nil, nil
}

type memTemplates struct {
	items []*billing.ReminderTemplate
	runs  map[uuid.UUID]time.Time
}

func (m *memTemplates) Create(_ context.Context, t *billing.ReminderTemplate) error {
	t.ID = uuid.New()
	m.items = append(m.items, t)
	return nil
}
func (m *memTemplates) ListEnabled(context.Context) ([]billing.ReminderTemplate, error) {
	var out []billing.ReminderTemplate
	for _, t := range m.items {
		if t.Enabled {
			out = append(out, *t)
		}
	}
	return out, nil
}
func (m *memTemplates) RecordRun(_ context.Context, id uuid.UUID, ranAt time.Time) error {
	if m.runs == nil {
		m.runs = make(map[uuid.UUID]time.Time)
	}
	m.runs[id] = ranAt
	for _, t := range m.items {
		if t.ID == id {
			at := ranAt
			t.LastRunAt = &at
		}
	}
	return nil
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeMessenger struct{ sent []sentMessage }

func (f *fakeMessenger) Send(_ context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

// --- fixture ---

type fixture struct {
	scheduler *Scheduler
	messenger *fakeMessenger
	templates *memTemplates
	resellers *memResellers
	invoices  *memInvoices
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		messenger: &fakeMessenger{},
		templates: &memTemplates{},
		resellers: &memResellers{},
		invoices:  &memInvoices{},
		// A Monday.
		now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}

	svc := billing.NewService(f.resellers, f.invoices, memPayments{}, logger).
		WithClock(func() time.Time { return f.now })

	f.scheduler = New(f.templates, svc, f.messenger, nil, logger, &config.RemindersConfig{Enabled: true}).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) addOverdueInvoice(t *testing.T, resellerName string, chatID int64, amount string) {
	t.Helper()
	ctx := context.Background()
	r := &billing.Reseller{Name: resellerName, TelegramChatID: chatID}
	if err := f.resellers.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	inv := &billing.Invoice{
		ResellerID: r.ID,
		Amount:     decimal.RequireFromString(amount),
		Status:     billing.InvoiceIssued,
		IssuedAt:   f.now.Add(-14 * 24 * time.Hour),
		DueAt:      f.now.Add(-7 * 24 * time.Hour),
	}
	if err := f.invoices.Create(ctx, inv); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addTemplate(t *testing.T, cronSpec string, lastRun *time.Time) *billing.ReminderTemplate {
	t.Helper()
	tpl := &billing.ReminderTemplate{
		Name:      "weekly nudge",
		CronSpec:  cronSpec,
		Body:      "{reseller}: invoice #{invoice} for {amount} is overdue",
		Enabled:   true,
		CreatedAt: f.now.Add(-30 * 24 * time.Hour),
		LastRunAt: lastRun,
	}
	if err := f.templates.Create(context.Background(), tpl); err != nil {
		t.Fatal(err)
	}
	return tpl
}

// --- tests ---

func TestTemplateFiresWhenDue(t *testing.T) {
	f := newFixture(t)
	f.addOverdueInvoice(t, "Karim", 99, "1250000")
	lastRun := f.now.Add(-25 * time.Hour) // Yesterday 09:00, before today's slot.
	tpl := f.addTemplate(t, "0 9 * * *", &lastRun)

	f.scheduler.Tick(context.Background())

	if len(f.messenger.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.messenger.sent))
	}
	msg := f.messenger.sent[0]
	if msg.ChatID != 99 {
		t.Errorf("ChatID = %d, want 99", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "Karim") || !strings.Contains(msg.Text, "1250000") {
		t.Errorf("placeholders not rendered: %q", msg.Text)
	}
	if _, ok := f.templates.runs[tpl.ID]; !ok {
		t.Error("RecordRun was not called")
	}
}

func TestTemplateNotDueIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addOverdueInvoice(t, "Karim", 99, "1250000")
	lastRun := f.now.Add(-30 * time.Minute) // Already ran after today's 09:00 slot.
	f.addTemplate(t, "0 9 * * *", &lastRun)

	f.scheduler.Tick(context.Background())

	if len(f.messenger.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(f.messenger.sent))
	}
}

func TestTemplateDoesNotRefireAfterRun(t *testing.T) {
	f := newFixture(t)
	f.addOverdueInvoice(t, "Karim", 99, "1250000")
	lastRun := f.now.Add(-25 * time.Hour)
	f.addTemplate(t, "0 9 * * *", &lastRun)

	f.scheduler.Tick(context.Background())
	f.scheduler.Tick(context.Background())

	if len(f.messenger.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.messenger.sent))
	}
}

func TestUnlinkedResellerFallsBackToOperator(t *testing.T) {
	f := newFixture(t)
	f.addOverdueInvoice(t, "NoChat", 0, "500")
	lastRun := f.now.Add(-25 * time.Hour)
	f.addTemplate(t, "0 9 * * *", &lastRun)

	// Without an operator chat the reminder is skipped.
	f.scheduler.Tick(context.Background())
	if len(f.messenger.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(f.messenger.sent))
	}

	f.scheduler.WithOperatorChat(777)
	lastRun2 := f.now.Add(-25 * time.Hour)
	f.templates.items[0].LastRunAt = &lastRun2

	f.scheduler.Tick(context.Background())
	if len(f.messenger.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.messenger.sent))
	}
	if f.messenger.sent[0].ChatID != 777 {
		t.Errorf("ChatID = %d, want operator chat 777", f.messenger.sent[0].ChatID)
	}
}

func TestOverdueSweepAnchorsThenFires(t *testing.T) {
	f := newFixture(t)
	f.scheduler.WithOperatorChat(777)
	f.addOverdueInvoice(t, "Karim", 99, "1250000")

	// First tick only anchors the schedule.
	f.scheduler.Tick(context.Background())
	if len(f.messenger.sent) != 0 {
		t.Fatalf("first tick sent %d messages, want 0", len(f.messenger.sent))
	}

	// Next day, past the 09:00 slot.
	f.now = f.now.Add(24 * time.Hour)
	f.scheduler.Tick(context.Background())

	if len(f.messenger.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.messenger.sent))
	}
	msg := f.messenger.sent[0]
	if msg.ChatID != 777 {
		t.Errorf("ChatID = %d, want 777", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "Karim") || !strings.Contains(msg.Text, "overdue") {
		t.Errorf("summary missing details: %q", msg.Text)
	}
}

func TestRenderBody(t *testing.T) {
	r := &billing.Reseller{Name: "Karim"}
	inv := &billing.Invoice{Number: 1041, Amount: decimal.RequireFromString("99.50")}

	got := renderBody("{reseller} owes {amount} on #{invoice}", r, inv)
	want := "Karim owes 99.5 on #1041"
	if got != want {
		t.Errorf("renderBody = %q, want %q", got, want)
	}
}

func TestValidateCronSpec(t *testing.T) {
	if err := ValidateCronSpec("0 9 * * *"); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := ValidateCronSpec("not a cron"); err == nil {
		t.Error("invalid spec accepted")
	}
}
