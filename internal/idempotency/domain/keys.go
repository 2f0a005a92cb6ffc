package domain

import (
	"strings"

	"github.com/smallbiznis/reconcile/internal/event"
)

const paymentKeyPrefix = "payment"

// PaymentKey derives the dedup key for a payment webhook. Success kinds key
// on the transaction reference because the processor does not always send a
// stable event id. Refunds and failures can legitimately repeat per
// reference, so their key also carries the event id when one is present.
func PaymentKey(eventType, transactionReference, eventID string) (string, error) {
	eventType = strings.ToLower(strings.TrimSpace(eventType))
	transactionReference = strings.TrimSpace(transactionReference)
	eventID = strings.TrimSpace(eventID)

	if eventType == "" {
		return "", ErrMissingKeyParts
	}
	switch {
	case transactionReference != "" && eventID != "" && perDelivery(eventType):
		return paymentKeyPrefix + ":" + eventType + ":" + transactionReference + ":" + eventID, nil
	case transactionReference != "":
		return paymentKeyPrefix + ":" + eventType + ":" + transactionReference, nil
	case eventID != "":
		return paymentKeyPrefix + ":" + eventType + ":id:" + eventID, nil
	default:
		return "", ErrMissingKeyParts
	}
}

func perDelivery(eventType string) bool {
	switch event.Classify(event.NormalizeKind(eventType)) {
	case event.CategoryRefund, event.CategoryPaymentFailed:
		return true
	default:
		return false
	}
}
