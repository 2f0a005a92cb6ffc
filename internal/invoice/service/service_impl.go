package service

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/reconcile/internal/audit/domain"
	"github.com/smallbiznis/reconcile/internal/clock"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	"github.com/smallbiznis/reconcile/internal/statemachine"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     invoicedomain.Repository
	AuditSvc auditdomain.Service
	Clock    clock.Clock `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     invoicedomain.Repository
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) invoicedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *item, nil
}

// InitiatePayment issues a fresh transaction reference for an unpaid
// invoice. The reference travels to the processor and comes back on the
// webhook, where it resolves the invoice without parsing.
func (s *Service) InitiatePayment(ctx context.Context, id string) (invoicedomain.PaymentReference, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.PaymentReference{}, err
	}

	var ref invoicedomain.PaymentReference
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if item == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if err := statemachine.CanInitiatePayment(item.Status); err != nil {
			return err
		}

		now := s.clock.Now()
		ref = invoicedomain.PaymentReference{
			TransactionReference: newTransactionReference(now),
			InvoiceID:            item.ID,
			Amount:               item.TotalAmount,
			Currency:             item.Currency,
			CreatedAt:            now,
		}
		return s.repo.InsertReference(ctx, tx, ref)
	})
	if err != nil {
		return invoicedomain.PaymentReference{}, err
	}

	targetID := invoiceID.String()
	if auditErr := s.auditSvc.AuditLog(ctx, "", nil, "invoice.payment_initiated", "invoice", &targetID, map[string]any{
		"transaction_reference": ref.TransactionReference,
		"amount":                ref.Amount,
		"currency":              ref.Currency,
	}); auditErr != nil {
		s.log.Warn("audit payment initiation failed", zap.String("invoice_id", targetID), zap.Error(auditErr))
	}

	return ref, nil
}

func newTransactionReference(now time.Time) string {
	return "txn_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
