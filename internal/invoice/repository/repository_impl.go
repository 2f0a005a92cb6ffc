package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, status, total_amount, currency, paid_at, refunded_at,
			created_at, updated_at
		 FROM invoices
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.InvoiceStatusPaid,
		paidAt,
		paidAt,
		id,
		domain.InvoiceStatusUnpaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.InvoiceStatusRefunded,
		refundedAt,
		refundedAt,
		id,
		domain.InvoiceStatusPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertReference(ctx context.Context, db *gorm.DB, ref domain.PaymentReference) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_references (
			transaction_reference, invoice_id, amount, currency, created_at
		) VALUES (?, ?, ?, ?, ?)`,
		ref.TransactionReference,
		ref.InvoiceID,
		ref.Amount,
		ref.Currency,
		ref.CreatedAt,
	).Error
}

func (r *repo) FindReference(ctx context.Context, db *gorm.DB, transactionReference string) (*domain.PaymentReference, error) {
	var item domain.PaymentReference
	err := db.WithContext(ctx).Raw(
		`SELECT transaction_reference, invoice_id, amount, currency, created_at
		 FROM payment_references
		 WHERE transaction_reference = ?
		 LIMIT 1`,
		transactionReference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.TransactionReference == "" {
		return nil, nil
	}
	return &item, nil
}
