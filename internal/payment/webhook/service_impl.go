package webhook

import (
	"context"
	"errors"
	"net/http"

	auditdomain "github.com/smallbiznis/reconcile/internal/audit/domain"
	"github.com/smallbiznis/reconcile/internal/authgate"
	"github.com/smallbiznis/reconcile/internal/event"
	obsmetrics "github.com/smallbiznis/reconcile/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const actionMalformedEvent = "payment.malformed_event"

type Params struct {
	fx.In

	Log        *zap.Logger
	Gate       *authgate.Gate
	PaymentSvc paymentdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	gate       *authgate.Gate
	paymentSvc paymentdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		gate:       p.Gate,
		paymentSvc: p.PaymentSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook verifies the signature over the raw payload, decodes it and
// hands it to the payment service. Every error is for logging only; the
// caller always acknowledges the delivery.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (paymentdomain.Result, error) {
	decision := s.gate.Authorize(ctx, event.ChannelPaymentWebhook, authgate.RequestContext{
		Headers: headers,
		Body:    payload,
	})
	if !decision.Allowed {
		s.log.Warn("payment webhook rejected", zap.String("reason", decision.Reason))
		s.obsMetrics.RecordRejected(ctx, event.ChannelPaymentWebhook.String(), decision.Reason)
		return paymentdomain.Result{EventID: EchoEventID(payload), Outcome: event.OutcomeRejected}, paymentdomain.ErrInvalidSignature
	}

	evt, err := Parse(payload)
	if err != nil {
		eventID := EchoEventID(payload)
		s.auditMalformed(ctx, eventID, err)
		return paymentdomain.Result{EventID: eventID, Outcome: event.OutcomeRejected}, err
	}

	result, err := s.paymentSvc.ProcessEvent(ctx, evt)
	if errors.Is(err, paymentdomain.ErrInvalidEvent) || errors.Is(err, paymentdomain.ErrMissingEventType) {
		s.auditMalformed(ctx, evt.EventID, err)
	}
	return result, err
}

func (s *Service) auditMalformed(ctx context.Context, eventID string, cause error) {
	s.log.Warn("malformed payment webhook", zap.String("event_id", eventID), zap.Error(cause))
	s.obsMetrics.RecordRejected(ctx, event.ChannelPaymentWebhook.String(), cause.Error())
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeProcessor,
		Action:     actionMalformedEvent,
		TargetType: "payment_event",
		TargetID:   eventID,
		Metadata:   map[string]any{"error": cause.Error()},
	}); err != nil {
		s.log.Warn("failed to audit malformed webhook", zap.Error(err))
	}
}
