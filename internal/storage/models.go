package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rasidhq/rasid/internal/billing"
)

// ResellerModel maps to the "resellers" table.
type ResellerModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"not null;uniqueIndex"`
	Phone          string
	TelegramChatID int64
	Note           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ResellerModel) TableName() string { return "resellers" }

// InvoiceModel maps to the "invoices" table. Number is the sequential
// human-facing identifier and is assigned by the database.
type InvoiceModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Number     int64           `gorm:"autoIncrement;uniqueIndex"`
	ResellerID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Status     int16           `gorm:"not null;default:0;index"`
	IssuedAt   time.Time       `gorm:"not null"`
	DueAt      time.Time       `gorm:"not null;index"`
	PaidAt     *time.Time
}

func (InvoiceModel) TableName() string { return "invoices" }

// PaymentModel maps to the "payments" table.
type PaymentModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResellerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	InvoiceID    *uuid.UUID
	Amount       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Note         string
	RegisteredAt time.Time `gorm:"not null"`
}

func (PaymentModel) TableName() string { return "payments" }

// ReminderTemplateModel maps to the "reminder_templates" table.
type ReminderTemplateModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex"`
	CronSpec  string    `gorm:"not null"`
	Body      string    `gorm:"not null"`
	Enabled   bool      `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	LastRunAt *time.Time
}

func (ReminderTemplateModel) TableName() string { return "reminder_templates" }

// --- Converters ---

func toResellerModel(r *billing.Reseller) *ResellerModel {
	return &ResellerModel{
		ID:             r.ID,
		Name:           r.Name,
		Phone:          r.Phone,
		TelegramChatID: r.TelegramChatID,
		Note:           r.Note,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toResellerDomain(m *ResellerModel) *billing.Reseller {
	return &billing.Reseller{
		ID:             m.ID,
		Name:           m.Name,
		Phone:          m.Phone,
		TelegramChatID: m.TelegramChatID,
		Note:           m.Note,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toInvoiceDomain(m *InvoiceModel) *billing.Invoice {
	return &billing.Invoice{
		ID:         m.ID,
		Number:     m.Number,
		ResellerID: m.ResellerID,
		Amount:     m.Amount,
		Status:     billing.InvoiceStatus(m.Status),
		IssuedAt:   m.IssuedAt,
		DueAt:      m.DueAt,
		PaidAt:     m.PaidAt,
	}
}

func toPaymentDomain(m *PaymentModel) *billing.Payment {
	return &billing.Payment{
		ID:           m.ID,
		ResellerID:   m.ResellerID,
		InvoiceID:    m.InvoiceID,
		Amount:       m.Amount,
		Note:         m.Note,
		RegisteredAt: m.RegisteredAt,
	}
}

func toTemplateDomain(m *ReminderTemplateModel) *billing.ReminderTemplate {
	return &billing.ReminderTemplate{
		ID:        m.ID,
		Name:      m.Name,
		CronSpec:  m.CronSpec,
		Body:      m.Body,
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
		LastRunAt: m.LastRunAt,
	}
}
