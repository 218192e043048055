package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rasidhq/rasid/internal/billing"
)

// Messenger delivers a message to a reseller's linked chat. Implemented
// by the Telegram gateway; injected so ops stays transport-agnostic.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// RegisterBillingOps registers the panel's billing operations.
func RegisterBillingOps(r *Registry, svc *billing.Service, messenger Messenger) {
	r.Register(&createResellerOp{svc: svc})
	r.Register(&updateResellerOp{svc: svc})
	r.Register(&issueInvoiceOp{svc: svc})
	r.Register(&cancelInvoiceOp{svc: svc})
	r.Register(&registerPaymentOp{svc: svc})
	r.Register(&sendMessageOp{svc: svc, messenger: messenger})
	r.Register(&listResellersOp{svc: svc})
	r.Register(&resellerStatusOp{svc: svc})
	r.Register(&listInvoicesOp{svc: svc})
	r.Register(&overdueInvoicesOp{svc: svc})
}

// decimalArg extracts an amount as an exact decimal. Accepts a JSON
// number or a numeric string; floats go through the string form to avoid
// binary rounding.
func decimalArg(args map[string]any, key string) (decimal.Decimal, error) {
	v, ok := args[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("missing argument %q", key)
	}
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, fmt.Errorf("argument %q: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("argument %q must be a number or numeric string", key)
	}
}

// dateArg extracts an optional YYYY-MM-DD date.
func dateArg(args map[string]any, key string) (time.Time, error) {
	s, err := optStringArg(args, key)
	if err != nil || s == nil {
		return time.Time{}, err
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return time.Time{}, fmt.Errorf("argument %q must be YYYY-MM-DD: %w", key, err)
	}
	return t, nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// --- create_reseller ---

type createResellerOp struct{ svc *billing.Service }

func (o *createResellerOp) Name() string      { return "create_reseller" }
func (o *createResellerOp) Destructive() bool { return true }
func (o *createResellerOp) Description() string {
	return "Create a new reseller account with a unique name."
}

func (o *createResellerOp) InputSchema() map[string]any {
	return objectSchema([]string{"name"}, map[string]any{
		"name":             map[string]any{"type": "string", "description": "Unique reseller name"},
		"phone":            map[string]any{"type": "string"},
		"telegram_chat_id": map[string]any{"type": "integer", "description": "Linked Telegram chat, 0 for none"},
		"note":             map[string]any{"type": "string"},
	})
}

func (o *createResellerOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	phone, err := optStringArg(args, "phone")
	if err != nil {
		return nil, err
	}
	note, err := optStringArg(args, "note")
	if err != nil {
		return nil, err
	}
	chatID, err := optInt64Arg(args, "telegram_chat_id")
	if err != nil {
		return nil, err
	}

	created, err := o.svc.CreateReseller(ctx, name, deref(phone), derefInt(chatID), deref(note))
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:   fmt.Sprintf("نماینده «%s» ایجاد شد (reseller %q created)", created.Name, created.Name),
		Metadata: map[string]any{"reseller_id": created.ID.String()},
	}, nil
}

// --- update_reseller ---

type updateResellerOp struct{ svc *billing.Service }

func (o *updateResellerOp) Name() string      { return "update_reseller" }
func (o *updateResellerOp) Destructive() bool { return true }
func (o *updateResellerOp) Description() string {
	return "Update an existing reseller's phone, note, or linked chat."
}

func (o *updateResellerOp) InputSchema() map[string]any {
	return objectSchema([]string{"name"}, map[string]any{
		"name":             map[string]any{"type": "string"},
		"phone":            map[string]any{"type": "string"},
		"note":             map[string]any{"type": "string"},
		"telegram_chat_id": map[string]any{"type": "integer"},
	})
}

func (o *updateResellerOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	phone, err := optStringArg(args, "phone")
	if err != nil {
		return nil, err
	}
	note, err := optStringArg(args, "note")
	if err != nil {
		return nil, err
	}
	chatID, err := optInt64Arg(args, "telegram_chat_id")
	if err != nil {
		return nil, err
	}

	updated, err := o.svc.UpdateReseller(ctx, name, phone, note, chatID)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: fmt.Sprintf("نماینده «%s» ویرایش شد (reseller %q updated)", updated.Name, updated.Name),
	}, nil
}

// --- issue_invoice ---

type issueInvoiceOp struct{ svc *billing.Service }

func (o *issueInvoiceOp) Name() string      { return "issue_invoice" }
func (o *issueInvoiceOp) Destructive() bool { return true }
func (o *issueInvoiceOp) Description() string {
	return "Issue a new invoice to a reseller."
}

func (o *issueInvoiceOp) InputSchema() map[string]any {
	return objectSchema([]string{"reseller", "amount"}, map[string]any{
		"reseller": map[string]any{"type": "string", "description": "Reseller name"},
		"amount":   map[string]any{"type": "string", "description": "Exact decimal amount"},
		"due_date": map[string]any{"type": "string", "description": "YYYY-MM-DD, default one week"},
	})
}

func (o *issueInvoiceOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	reseller, err := stringArg(args, "reseller")
	if err != nil {
		return nil, err
	}
	amount, err := decimalArg(args, "amount")
	if err != nil {
		return nil, err
	}
	due, err := dateArg(args, "due_date")
	if err != nil {
		return nil, err
	}

	inv, err := o.svc.IssueInvoice(ctx, reseller, amount, due)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: fmt.Sprintf("فاکتور %d به مبلغ %s برای «%s» صادر شد (invoice %d of %s issued for %q)",
			inv.Number, inv.Amount, reseller, inv.Number, inv.Amount, reseller),
		Metadata: map[string]any{"invoice_number": inv.Number},
	}, nil
}

// --- cancel_invoice ---

type cancelInvoiceOp struct{ svc *billing.Service }

func (o *cancelInvoiceOp) Name() string      { return "cancel_invoice" }
func (o *cancelInvoiceOp) Destructive() bool { return true }
func (o *cancelInvoiceOp) Description() string {
	return "Cancel an unpaid invoice by its number."
}

func (o *cancelInvoiceOp) InputSchema() map[string]any {
	return objectSchema([]string{"invoice"}, map[string]any{
		"invoice": map[string]any{"type": "integer", "description": "Invoice number"},
	})
}

func (o *cancelInvoiceOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	number, err := int64Arg(args, "invoice")
	if err != nil {
		return nil, err
	}
	inv, err := o.svc.CancelInvoice(ctx, number)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: fmt.Sprintf("فاکتور %d باطل شد (invoice %d cancelled)", inv.Number, inv.Number),
	}, nil
}

// --- register_payment ---

type registerPaymentOp struct{ svc *billing.Service }

func (o *registerPaymentOp) Name() string      { return "register_payment" }
func (o *registerPaymentOp) Destructive() bool { return true }
func (o *registerPaymentOp) Description() string {
	return "Record a payment received from a reseller, optionally settling an invoice."
}

func (o *registerPaymentOp) InputSchema() map[string]any {
	return objectSchema([]string{"target", "amount"}, map[string]any{
		"target":  map[string]any{"type": "string", "description": "Reseller name"},
		"amount":  map[string]any{"type": "string", "description": "Exact decimal amount"},
		"invoice": map[string]any{"type": "integer", "description": "Invoice number to settle"},
		"note":    map[string]any{"type": "string"},
	})
}

func (o *registerPaymentOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	target, err := stringArg(args, "target")
	if err != nil {
		return nil, err
	}
	amount, err := decimalArg(args, "amount")
	if err != nil {
		return nil, err
	}
	invoice, err := optInt64Arg(args, "invoice")
	if err != nil {
		return nil, err
	}
	note, err := optStringArg(args, "note")
	if err != nil {
		return nil, err
	}

	p, err := o.svc.RegisterPayment(ctx, target, amount, invoice, deref(note))
	if err != nil {
		return nil, err
	}
	out := fmt.Sprintf("پرداخت %s برای «%s» ثبت شد (payment of %s registered for %q)",
		p.Amount, target, p.Amount, target)
	if invoice != nil {
		out += fmt.Sprintf("، فاکتور %d تسویه شد (invoice %d settled)", *invoice, *invoice)
	}
	return &Result{Output: out}, nil
}

// --- send_message ---

type sendMessageOp struct {
	svc       *billing.Service
	messenger Messenger
}

func (o *sendMessageOp) Name() string      { return "send_message" }
func (o *sendMessageOp) Destructive() bool { return true }
func (o *sendMessageOp) Description() string {
	return "Send a chat message to a reseller on the operator's behalf."
}

func (o *sendMessageOp) InputSchema() map[string]any {
	return objectSchema([]string{"recipient", "text"}, map[string]any{
		"recipient": map[string]any{"type": "string", "description": "Reseller name"},
		"text":      map[string]any{"type": "string"},
	})
}

func (o *sendMessageOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	if o.messenger == nil {
		return nil, fmt.Errorf("no message transport configured")
	}
	recipient, err := stringArg(args, "recipient")
	if err != nil {
		return nil, err
	}
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}

	resellers, err := o.svc.ListResellers(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range resellers {
		if r.Name == recipient {
			if r.TelegramChatID == 0 {
				return nil, fmt.Errorf("reseller %q has no linked chat", recipient)
			}
			if err := o.messenger.Send(ctx, r.TelegramChatID, text); err != nil {
				return nil, fmt.Errorf("sending message: %w", err)
			}
			return &Result{
				Output: fmt.Sprintf("پیام برای «%s» ارسال شد (message sent to %q)", recipient, recipient),
			}, nil
		}
	}
	return nil, billing.ErrResellerNotFound
}

// --- list_resellers ---

type listResellersOp struct{ svc *billing.Service }

func (o *listResellersOp) Name() string      { return "list_resellers" }
func (o *listResellersOp) Destructive() bool { return false }
func (o *listResellersOp) Description() string {
	return "List all reseller accounts."
}

func (o *listResellersOp) InputSchema() map[string]any {
	return objectSchema(nil, map[string]any{})
}

func (o *listResellersOp) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	resellers, err := o.svc.ListResellers(ctx)
	if err != nil {
		return nil, err
	}
	if len(resellers) == 0 {
		return &Result{Output: "هیچ نماینده‌ای ثبت نشده است (no resellers registered)"}, nil
	}
	var b strings.Builder
	for i, r := range resellers {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s", r.Name)
		if r.Phone != "" {
			fmt.Fprintf(&b, " (%s)", r.Phone)
		}
	}
	return &Result{Output: b.String(), Metadata: map[string]any{"count": len(resellers)}}, nil
}

// --- reseller_status ---

type resellerStatusOp struct{ svc *billing.Service }

func (o *resellerStatusOp) Name() string      { return "reseller_status" }
func (o *resellerStatusOp) Destructive() bool { return false }
func (o *resellerStatusOp) Description() string {
	return "Show a reseller's invoiced total, payments, and balance."
}

func (o *resellerStatusOp) InputSchema() map[string]any {
	return objectSchema([]string{"name"}, map[string]any{
		"name": map[string]any{"type": "string"},
	})
}

func (o *resellerStatusOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	sum, err := o.svc.ResellerStatus(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: fmt.Sprintf(
			"وضعیت «%s»: فاکتور %s، پرداخت %s، مانده %s، فاکتور باز %d\n(%q: invoiced %s, paid %s, balance %s, open invoices %d)",
			name, sum.Invoiced, sum.Paid, sum.Balance, sum.OpenInvoices,
			name, sum.Invoiced, sum.Paid, sum.Balance, sum.OpenInvoices),
	}, nil
}

// --- list_invoices ---

type listInvoicesOp struct{ svc *billing.Service }

func (o *listInvoicesOp) Name() string      { return "list_invoices" }
func (o *listInvoicesOp) Destructive() bool { return false }
func (o *listInvoicesOp) Description() string {
	return "List a reseller's invoices, newest first."
}

func (o *listInvoicesOp) InputSchema() map[string]any {
	return objectSchema([]string{"reseller"}, map[string]any{
		"reseller": map[string]any{"type": "string"},
	})
}

func (o *listInvoicesOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	reseller, err := stringArg(args, "reseller")
	if err != nil {
		return nil, err
	}
	invoices, err := o.svc.ListInvoices(ctx, reseller)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return &Result{Output: fmt.Sprintf("فاکتوری برای «%s» نیست (no invoices for %q)", reseller, reseller)}, nil
	}
	var b strings.Builder
	for i, inv := range invoices {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "#%d  %s  %s  %s", inv.Number, inv.Amount, inv.Status, inv.DueAt.Format("2006-01-02"))
	}
	return &Result{Output: b.String(), Metadata: map[string]any{"count": len(invoices)}}, nil
}

// --- overdue_invoices ---

type overdueInvoicesOp struct{ svc *billing.Service }

func (o *overdueInvoicesOp) Name() string      { return "overdue_invoices" }
func (o *overdueInvoicesOp) Destructive() bool { return false }
func (o *overdueInvoicesOp) Description() string {
	return "List all unpaid invoices past their due date."
}

func (o *overdueInvoicesOp) InputSchema() map[string]any {
	return objectSchema(nil, map[string]any{})
}

func (o *overdueInvoicesOp) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	invoices, err := o.svc.ListOverdue(ctx)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return &Result{Output: "فاکتور سررسیدشده‌ای نیست (no overdue invoices)"}, nil
	}
	var b strings.Builder
	for i, inv := range invoices {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := inv.ResellerID.String()
		if r, err := o.svc.GetReseller(ctx, inv.ResellerID); err == nil {
			name = r.Name
		}
		fmt.Fprintf(&b, "#%d  %s  %s  due %s", inv.Number, name, inv.Amount, inv.DueAt.Format("2006-01-02"))
	}
	return &Result{Output: b.String(), Metadata: map[string]any{"count": len(invoices)}}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
