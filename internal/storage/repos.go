package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rasidhq/rasid/internal/billing"
)

// resellerRepo implements billing.ResellerStore.
type resellerRepo struct {
	db *gorm.DB
}

func (r *resellerRepo) Create(ctx context.Context, res *billing.Reseller) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	model := toResellerModel(res)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("creating reseller: %w", err)
	}
	res.CreatedAt = model.CreatedAt
	res.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *resellerRepo) Update(ctx context.Context, res *billing.Reseller) error {
	result := r.db.WithContext(ctx).Model(&ResellerModel{}).
		Where("id = ?", res.ID).
		Updates(map[string]any{
			"phone":            res.Phone,
			"telegram_chat_id": res.TelegramChatID,
			"note":             res.Note,
		})
	if result.Error != nil {
		return fmt.Errorf("updating reseller: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return billing.ErrResellerNotFound
	}
	return nil
}

func (r *resellerRepo) GetByID(ctx context.Context, id uuid.UUID) (*billing.Reseller, error) {
	var model ResellerModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrResellerNotFound
		}
		return nil, fmt.Errorf("getting reseller: %w", err)
	}
	return toResellerDomain(&model), nil
}

func (r *resellerRepo) GetByName(ctx context.Context, name string) (*billing.Reseller, error) {
	var model ResellerModel
	if err := r.db.WithContext(ctx).First(&model, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrResellerNotFound
		}
		return nil, fmt.Errorf("getting reseller by name: %w", err)
	}
	return toResellerDomain(&model), nil
}

func (r *resellerRepo) List(ctx context.Context) ([]billing.Reseller, error) {
	var models []ResellerModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing resellers: %w", err)
	}
	out := make([]billing.Reseller, len(models))
	for i := range models {
		out[i] = *toResellerDomain(&models[i])
	}
	return out, nil
}

// invoiceRepo implements billing.InvoiceStore.
type invoiceRepo struct {
	db *gorm.DB
}

func (r *invoiceRepo) Create(ctx context.Context, inv *billing.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	model := &InvoiceModel{
		ID:         inv.ID,
		ResellerID: inv.ResellerID,
		Amount:     inv.Amount,
		Status:     int16(inv.Status),
		IssuedAt:   inv.IssuedAt,
		DueAt:      inv.DueAt,
		PaidAt:     inv.PaidAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("creating invoice: %w", err)
	}
	inv.Number = model.Number
	return nil
}

func (r *invoiceRepo) GetByNumber(ctx context.Context, number int64) (*billing.Invoice, error) {
	var model InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("getting invoice %d: %w", number, err)
	}
	return toInvoiceDomain(&model), nil
}

func (r *invoiceRepo) ListByReseller(ctx context.Context, resellerID uuid.UUID) ([]billing.Invoice, error) {
	var models []InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("reseller_id = ?", resellerID).
		Order("issued_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	out := make([]billing.Invoice, len(models))
	for i := range models {
		out[i] = *toInvoiceDomain(&models[i])
	}
	return out, nil
}

func (r *invoiceRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]billing.Invoice, error) {
	var models []InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due_at < ?", int16(billing.InvoiceIssued), asOf).
		Order("due_at").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing overdue invoices: %w", err)
	}
	out := make([]billing.Invoice, len(models))
	for i := range models {
		out[i] = *toInvoiceDomain(&models[i])
	}
	return out, nil
}

func (r *invoiceRepo) SetStatus(ctx context.Context, id uuid.UUID, status billing.InvoiceStatus, paidAt *time.Time) error {
	result := r.db.WithContext(ctx).Model(&InvoiceModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": int16(status), "paid_at": paidAt})
	if result.Error != nil {
		return fmt.Errorf("updating invoice status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

// paymentRepo implements billing.PaymentStore.
type paymentRepo struct {
	db *gorm.DB
}

func (r *paymentRepo) Create(ctx context.Context, p *billing.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	model := &PaymentModel{
		ID:           p.ID,
		ResellerID:   p.ResellerID,
		InvoiceID:    p.InvoiceID,
		Amount:       p.Amount,
		Note:         p.Note,
		RegisteredAt: p.RegisteredAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) ListByReseller(ctx context.Context, resellerID uuid.UUID) ([]billing.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("reseller_id = ?", resellerID).
		Order("registered_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	out := make([]billing.Payment, len(models))
	for i := range models {
		out[i] = *toPaymentDomain(&models[i])
	}
	return out, nil
}

// templateRepo implements billing.ReminderTemplateStore.
type templateRepo struct {
	db *gorm.DB
}

func (r *templateRepo) Create(ctx context.Context, t *billing.ReminderTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	model := &ReminderTemplateModel{
		ID:       t.ID,
		Name:     t.Name,
		CronSpec: t.CronSpec,
		Body:     t.Body,
		Enabled:  t.Enabled,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("creating reminder template: %w", err)
	}
	t.CreatedAt = model.CreatedAt
	return nil
}

func (r *templateRepo) ListEnabled(ctx context.Context) ([]billing.ReminderTemplate, error) {
	var models []ReminderTemplateModel
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing reminder templates: %w", err)
	}
	out := make([]billing.ReminderTemplate, len(models))
	for i := range models {
		out[i] = *toTemplateDomain(&models[i])
	}
	return out, nil
}

func (r *templateRepo) RecordRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error {
	return r.db.WithContext(ctx).Model(&ReminderTemplateModel{}).
		Where("id = ?", id).
		Update("last_run_at", ranAt).Error
}
