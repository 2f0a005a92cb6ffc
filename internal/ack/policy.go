// Package ack decides what each channel answers once processing is done.
// Fire-and-forget channels never surface internal failures to the caller;
// the order link channel reports real status codes.
package ack

import (
	"errors"
	"net/http"

	"github.com/smallbiznis/reconcile/internal/event"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
	"go.uber.org/zap"
)

const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
	StatusUnmatched = "unmatched"
	StatusError     = "error"
)

// pixel is a 1x1 transparent GIF.
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const PixelContentType = "image/gif"

// Response is a transport-neutral acknowledgment. Exactly one of JSON or
// Body is set.
type Response struct {
	Status      int
	Headers     map[string]string
	ContentType string
	JSON        any
	Body        []byte
}

type WebhookBody struct {
	Received bool   `json:"received"`
	EventID  string `json:"eventId,omitempty"`
	Status   string `json:"status"`
}

type OrderLinkSuccess struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type OrderLinkError struct {
	Error string `json:"error"`
}

type Policy struct {
	log *zap.Logger
}

func NewPolicy(log *zap.Logger) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{log: log.Named("ack")}
}

// PaymentWebhook always answers 200 so the processor does not enter its
// retry loop. Internal failures only show up as status "error".
func (p *Policy) PaymentWebhook(eventID string, outcome event.Outcome, err error) Response {
	status := webhookStatus(outcome)
	if err != nil {
		p.log.Warn("payment webhook processing failed",
			zap.String("event_id", eventID),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		status = StatusError
	}
	return Response{
		Status: http.StatusOK,
		JSON:   WebhookBody{Received: true, EventID: eventID, Status: status},
	}
}

func webhookStatus(outcome event.Outcome) string {
	switch outcome {
	case event.OutcomeApplied:
		return StatusProcessed
	case event.OutcomeDuplicate:
		return StatusDuplicate
	case event.OutcomeIgnored:
		return StatusIgnored
	case event.OutcomeUnmatched:
		return StatusUnmatched
	case event.OutcomeRejected:
		// Indistinguishable from ignored so a sender cannot tell that
		// verification failed.
		return StatusIgnored
	case event.OutcomeFailed:
		return StatusError
	default:
		return StatusProcessed
	}
}

// EmailOpen returns the same pixel and headers for every outcome.
func (p *Policy) EmailOpen() Response {
	body := make([]byte, len(pixel))
	copy(body, pixel)
	return Response{
		Status:      http.StatusOK,
		ContentType: PixelContentType,
		Headers: map[string]string{
			"Cache-Control": "no-store, no-cache, must-revalidate, max-age=0",
			"Pragma":        "no-cache",
			"Expires":       "0",
		},
		Body: body,
	}
}

// OrderLink maps a link result to the caller-facing status and body.
func (p *Policy) OrderLink(err error) Response {
	if err == nil {
		return Response{
			Status: http.StatusOK,
			JSON:   OrderLinkSuccess{Success: true, Message: "Order linked to your account"},
		}
	}

	status, message := orderLinkError(err)
	if status == http.StatusInternalServerError {
		p.log.Error("order link failed", zap.Error(err))
	}
	return Response{Status: status, JSON: OrderLinkError{Error: message}}
}

func orderLinkError(err error) (int, string) {
	switch {
	case errors.Is(err, guestorderdomain.ErrInvalidRequest):
		return http.StatusBadRequest, "Order number and email are required"
	case errors.Is(err, guestorderdomain.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, guestorderdomain.ErrEmailMismatch):
		return http.StatusForbidden, "Email does not match order"
	case errors.Is(err, guestorderdomain.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, guestorderdomain.ErrOrderAlreadyLinked):
		return http.StatusConflict, "Order is already linked to an account"
	default:
		return http.StatusInternalServerError, "Failed to link order"
	}
}
