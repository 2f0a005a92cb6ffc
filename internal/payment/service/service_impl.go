package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/reconcile/internal/audit/domain"
	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/event"
	idempotencydomain "github.com/smallbiznis/reconcile/internal/idempotency/domain"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/reconcile/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
	"github.com/smallbiznis/reconcile/internal/statemachine"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Ledger     idempotencydomain.Repository
	Invoices   invoicedomain.Repository
	Repo       paymentdomain.Repository
	AuditSvc   auditdomain.Service
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	ledger     idempotencydomain.Repository
	invoices   invoicedomain.Repository
	repo       paymentdomain.Repository
	auditSvc   auditdomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		ledger:     p.Ledger,
		invoices:   p.Invoices,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent reserves the event's natural key, computes the transition and
// applies it in one transaction. Audit entries are written after commit.
func (s *Service) ProcessEvent(ctx context.Context, evt *paymentdomain.PaymentEvent) (paymentdomain.Result, error) {
	if evt == nil {
		return paymentdomain.Result{Outcome: event.OutcomeRejected}, paymentdomain.ErrInvalidEvent
	}
	kind := evt.Kind()
	if kind == "" {
		return paymentdomain.Result{EventID: evt.EventID, Outcome: event.OutcomeRejected}, paymentdomain.ErrMissingEventType
	}

	result := paymentdomain.Result{EventID: evt.EventID, Kind: kind}

	// Unknown kinds are audited and otherwise left alone, ledger included.
	if event.Classify(kind) == event.CategoryUnknown {
		decision := statemachine.Payment(*evt, nil)
		result.Outcome = decision.Outcome
		s.writeAudits(ctx, decision)
		s.obsMetrics.RecordEvent(ctx, event.ChannelPaymentWebhook.String(), string(kind), result.Outcome.String())
		return result, nil
	}

	key, err := idempotencydomain.PaymentKey(string(kind), evt.TransactionReference, evt.EventID)
	if err != nil {
		result.Outcome = event.OutcomeRejected
		return result, paymentdomain.ErrInvalidEvent
	}
	result.NaturalKey = key

	var decision statemachine.Decision
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		reservation, err := s.ledger.CheckAndReserve(ctx, tx, idempotencydomain.Record{
			NaturalKey:     key,
			Channel:        event.ChannelPaymentWebhook.String(),
			FirstAppliedAt: now,
		})
		if err != nil {
			return err
		}
		if reservation == idempotencydomain.AlreadySeen {
			result.Outcome = event.OutcomeDuplicate
			return nil
		}

		inv, err := s.resolveInvoice(ctx, tx, evt)
		if err != nil {
			return err
		}
		if inv != nil {
			id := inv.ID
			result.InvoiceID = &id
		}

		decision = statemachine.Payment(*evt, inv)
		if err := s.apply(ctx, tx, evt, decision, now); err != nil {
			return err
		}
		result.Outcome = decision.Outcome
		return s.ledger.MarkOutcome(ctx, tx, key, decision.Outcome.String())
	})
	if err != nil {
		s.log.Error("payment event processing failed",
			zap.String("event_type", string(kind)),
			zap.String("natural_key", key),
			zap.Error(err),
		)
		result.Outcome = event.OutcomeFailed
		s.writeAudits(ctx, statemachine.ProcessingFailed(*evt, key, err))
		s.obsMetrics.RecordEvent(ctx, event.ChannelPaymentWebhook.String(), string(kind), result.Outcome.String())
		return result, err
	}

	if result.Outcome == event.OutcomeDuplicate {
		s.log.Debug("duplicate payment event ignored", zap.String("natural_key", key))
		s.obsMetrics.RecordDuplicate(ctx, event.ChannelPaymentWebhook.String(), string(kind))
		return result, nil
	}

	s.writeAudits(ctx, decision)
	s.obsMetrics.RecordEvent(ctx, event.ChannelPaymentWebhook.String(), string(kind), result.Outcome.String())
	return result, nil
}

// resolveInvoice prefers the structured invoice id carried in metadata and
// falls back to the payment reference issued at initiation.
func (s *Service) resolveInvoice(ctx context.Context, tx *gorm.DB, evt *paymentdomain.PaymentEvent) (*invoicedomain.Invoice, error) {
	if raw := strings.TrimSpace(evt.InvoiceID); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil && id != 0 {
			inv, err := s.invoices.FindByID(ctx, tx, id)
			if err != nil || inv != nil {
				return inv, err
			}
		}
	}

	if ref := strings.TrimSpace(evt.TransactionReference); ref != "" {
		stored, err := s.invoices.FindReference(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			return s.invoices.FindByID(ctx, tx, stored.InvoiceID)
		}
	}
	return nil, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, evt *paymentdomain.PaymentEvent, decision statemachine.Decision, now time.Time) error {
	for _, effect := range decision.Mutations() {
		switch effect.Type {
		case statemachine.EffectMarkInvoicePaid:
			changed, err := s.invoices.MarkPaid(ctx, tx, *effect.InvoiceID, now)
			if err != nil {
				return err
			}
			if !changed {
				s.log.Info("invoice no longer unpaid at update", zap.String("invoice_id", effect.InvoiceID.String()))
			}
		case statemachine.EffectMarkInvoiceRefunded:
			if _, err := s.invoices.MarkRefunded(ctx, tx, *effect.InvoiceID, now); err != nil {
				return err
			}
		case statemachine.EffectCreatePaymentAttempt:
			attempt := &paymentdomain.PaymentAttempt{
				ID:          s.genID.Generate(),
				InvoiceID:   effect.InvoiceID,
				Status:      paymentdomain.AttemptStatusFailed,
				Amount:      effect.Amount,
				Currency:    strings.ToUpper(effect.Currency),
				Provider:    paymentdomain.DefaultProvider,
				ProviderRef: evt.ProviderRef(),
				CreatedAt:   now,
			}
			if effect.Reason != "" {
				reason := effect.Reason
				attempt.Reason = &reason
			}
			if _, err := s.repo.InsertAttempt(ctx, tx, attempt); err != nil {
				return err
			}
		case statemachine.EffectCreateCreditNote:
			note := &paymentdomain.CreditNote{
				ID:          s.genID.Generate(),
				InvoiceID:   *effect.InvoiceID,
				CustomerID:  effect.CustomerID,
				Amount:      effect.Amount,
				Currency:    strings.ToUpper(effect.Currency),
				Reason:      effect.Reason,
				ProviderRef: evt.ProviderRef(),
				CreatedAt:   now,
			}
			if _, err := s.repo.InsertCreditNote(ctx, tx, note); err != nil {
				return err
			}
		default:
			return errors.New("unsupported_effect: " + string(effect.Type))
		}
	}
	return nil
}

// writeAudits is best-effort: it runs after the transaction has committed
// or rolled back.
func (s *Service) writeAudits(ctx context.Context, decision statemachine.Decision) {
	if s.auditSvc == nil {
		s.log.Warn("audit service unavailable for payment event")
		return
	}
	for _, effect := range decision.Audits() {
		if effect.Urgent {
			s.log.Warn("urgent payment event requires review",
				zap.String("action", effect.Action),
				zap.String("target_id", effect.TargetID),
			)
		}
		err := s.auditSvc.Record(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeProcessor,
			Action:     effect.Action,
			TargetType: effect.TargetType,
			TargetID:   effect.TargetID,
			Urgent:     effect.Urgent,
			Metadata:   effect.Metadata,
		})
		if err != nil {
			s.log.Warn("failed to write payment audit log", zap.String("action", effect.Action), zap.Error(err))
		}
	}
}
