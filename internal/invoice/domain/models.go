// Package domain contains persistence models for invoices and their payment correlation.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid   InvoiceStatus = "unpaid"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusRefunded InvoiceStatus = "refunded"
)

// Invoice is owned by billing; only payment reconciliation moves its status.
type Invoice struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	CustomerID  snowflake.ID  `gorm:"not null;index"`
	Status      InvoiceStatus `gorm:"type:varchar(16);not null;default:'unpaid'"`
	TotalAmount int64         `gorm:"not null;default:0"`
	Currency    string        `gorm:"type:varchar(8);not null"`
	PaidAt      *time.Time    `gorm:""`
	RefundedAt  *time.Time    `gorm:""`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// PaymentReference correlates a processor transaction reference with the
// invoice it was issued for.
type PaymentReference struct {
	TransactionReference string       `gorm:"primaryKey;type:varchar(255)"`
	InvoiceID            snowflake.ID `gorm:"not null;index"`
	Amount               int64        `gorm:"not null"`
	Currency             string       `gorm:"type:varchar(8);not null"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentReference) TableName() string { return "payment_references" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// MarkPaid moves an unpaid invoice to paid. It reports false when the
	// invoice was not unpaid at the time of the update.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundedAt time.Time) (bool, error)
	InsertReference(ctx context.Context, db *gorm.DB, ref PaymentReference) error
	FindReference(ctx context.Context, db *gorm.DB, transactionReference string) (*PaymentReference, error)
}

type Service interface {
	GetByID(ctx context.Context, id string) (Invoice, error)
	InitiatePayment(ctx context.Context, id string) (PaymentReference, error)
}

var (
	ErrInvalidInvoiceID   = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvoiceAlreadyPaid = errors.New("invoice_already_paid")
)
