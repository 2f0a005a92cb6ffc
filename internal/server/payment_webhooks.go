package server

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/reconcile/internal/event"
	obscontext "github.com/smallbiznis/reconcile/internal/observability/context"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook always acknowledges with 200. The body is read raw so
// the signature is checked over the exact bytes the processor signed.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		writeAck(c, s.ack.PaymentWebhook("", event.OutcomeRejected, err))
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header)
	if isRejectedDelivery(err) {
		// already logged and audited by the webhook service
		err = nil
	}
	c.Set(obscontext.OutcomeKey, result.Outcome.String())
	writeAck(c, s.ack.PaymentWebhook(result.EventID, result.Outcome, err))
}

func isRejectedDelivery(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidSignature) ||
		errors.Is(err, paymentdomain.ErrInvalidPayload) ||
		errors.Is(err, paymentdomain.ErrInvalidEvent) ||
		errors.Is(err, paymentdomain.ErrMissingEventType)
}
