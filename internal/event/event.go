// Package event defines the vocabulary shared by every inbound channel:
// which channel a delivery arrived on, the kinds it may carry and the
// outcome the reconciliation produced.
package event

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelPaymentWebhook Channel = "payment_webhook"
	ChannelOrderLink      Channel = "order_link"
	ChannelEmailOpen      Channel = "email_open"
)

func (c Channel) String() string { return string(c) }

type Kind string

const (
	KindPaymentAuthorized  Kind = "payment.authorized"
	KindPaymentSettled     Kind = "payment.settled"
	KindPaymentCaptured    Kind = "payment.captured"
	KindPaymentFailed      Kind = "payment.failed"
	KindPaymentRefused     Kind = "payment.refused"
	KindRefundRequested    Kind = "refund.requested"
	KindRefundCompleted    Kind = "refund.completed"
	KindChargebackReceived Kind = "chargeback.received"
	KindDisputeOpened      Kind = "dispute.opened"

	KindOrderLink Kind = "order.link"
	KindEmailOpen Kind = "email.open"
)

// Category groups kinds that drive the same transition.
type Category string

const (
	CategoryPaymentSucceeded Category = "payment_succeeded"
	CategoryPaymentFailed    Category = "payment_failed"
	CategoryRefund           Category = "refund"
	CategoryChargeback       Category = "chargeback"
	CategoryUnknown          Category = "unknown"
)

// NormalizeKind lowercases and trims a provider supplied kind.
func NormalizeKind(raw string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(raw)))
}

func Classify(kind Kind) Category {
	switch kind {
	case KindPaymentAuthorized, KindPaymentSettled, KindPaymentCaptured:
		return CategoryPaymentSucceeded
	case KindPaymentFailed, KindPaymentRefused:
		return CategoryPaymentFailed
	case KindRefundRequested, KindRefundCompleted:
		return CategoryRefund
	case KindChargebackReceived, KindDisputeOpened:
		return CategoryChargeback
	default:
		return CategoryUnknown
	}
}

// ExternalEvent is a single inbound delivery after transport parsing.
type ExternalEvent struct {
	Channel    Channel
	EventID    string
	NaturalKey string
	Kind       Kind
	Payload    []byte
	ReceivedAt time.Time
}

// Outcome summarises what a delivery did to durable state.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) String() string { return string(o) }
