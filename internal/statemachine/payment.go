package statemachine

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/event"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
)

const (
	ActionInvoicePaid           = "invoice.paid"
	ActionInvoiceRefunded       = "invoice.refunded"
	ActionPaymentAlreadyApplied = "payment.already_applied"
	ActionPaymentAfterRefund    = "payment.after_refund"
	ActionPaymentUnmatched      = "payment.unmatched"
	ActionPaymentFailed         = "payment.failed"
	ActionCreditNoteCreated     = "credit_note.created"
	ActionRefundUnmatched       = "refund.unmatched"
	ActionChargeback            = "payment.chargeback"
	ActionEventIgnored          = "payment.event_ignored"
	ActionProcessingFailed      = "payment.processing_failed"

	targetInvoice = "invoice"
	targetPayment = "payment_event"
)

// InvoiceTransition returns the status an invoice moves to for a kind and
// whether that is a change. Paid and refunded invoices never regress.
func InvoiceTransition(current invoicedomain.InvoiceStatus, kind event.Kind) (invoicedomain.InvoiceStatus, bool) {
	if event.Classify(kind) != event.CategoryPaymentSucceeded {
		return current, false
	}
	if current == invoicedomain.InvoiceStatusUnpaid {
		return invoicedomain.InvoiceStatusPaid, true
	}
	return current, false
}

// CanInitiatePayment refuses a new payment for an invoice that is no longer unpaid.
func CanInitiatePayment(current invoicedomain.InvoiceStatus) error {
	if current != invoicedomain.InvoiceStatusUnpaid {
		return invoicedomain.ErrInvoiceAlreadyPaid
	}
	return nil
}

// Payment decides the effects of a payment webhook event. inv is the
// correlated invoice, or nil when none could be resolved.
func Payment(evt paymentdomain.PaymentEvent, inv *invoicedomain.Invoice) Decision {
	kind := evt.Kind()
	meta := eventMetadata(evt)

	switch event.Classify(kind) {
	case event.CategoryPaymentSucceeded:
		return paymentSucceeded(evt, inv, meta)
	case event.CategoryPaymentFailed:
		return paymentFailed(evt, inv, meta)
	case event.CategoryRefund:
		return refund(evt, inv, meta)
	case event.CategoryChargeback:
		effect := audit(ActionChargeback, targetForInvoice(inv), targetIDForInvoice(inv, evt), meta)
		effect.Urgent = true
		return Decision{Outcome: event.OutcomeApplied, Effects: []Effect{effect}}
	default:
		return Decision{
			Outcome: event.OutcomeIgnored,
			Effects: []Effect{audit(ActionEventIgnored, targetPayment, evt.ProviderRef(), meta)},
		}
	}
}

func paymentSucceeded(evt paymentdomain.PaymentEvent, inv *invoicedomain.Invoice, meta map[string]any) Decision {
	if inv == nil {
		return Decision{
			Outcome: event.OutcomeUnmatched,
			Effects: []Effect{audit(ActionPaymentUnmatched, targetPayment, evt.ProviderRef(), meta)},
		}
	}

	invoiceID := inv.ID
	if _, changed := InvoiceTransition(inv.Status, evt.Kind()); changed {
		return Decision{
			Outcome: event.OutcomeApplied,
			Effects: []Effect{
				{Type: EffectMarkInvoicePaid, InvoiceID: &invoiceID, Amount: evt.Amount, Currency: evt.Currency},
				audit(ActionInvoicePaid, targetInvoice, inv.ID.String(), meta),
			},
		}
	}

	action := ActionPaymentAlreadyApplied
	if inv.Status == invoicedomain.InvoiceStatusRefunded {
		action = ActionPaymentAfterRefund
	}
	return Decision{
		Outcome: event.OutcomeIgnored,
		Effects: []Effect{audit(action, targetInvoice, inv.ID.String(), meta)},
	}
}

func paymentFailed(evt paymentdomain.PaymentEvent, inv *invoicedomain.Invoice, meta map[string]any) Decision {
	var invoiceID *snowflake.ID
	currency := evt.Currency
	if inv != nil {
		id := inv.ID
		invoiceID = &id
		if currency == "" {
			currency = inv.Currency
		}
	}
	return Decision{
		Outcome: event.OutcomeApplied,
		Effects: []Effect{
			{
				Type:      EffectCreatePaymentAttempt,
				InvoiceID: invoiceID,
				Amount:    evt.Amount,
				Currency:  currency,
				Reason:    evt.Reason,
			},
			audit(ActionPaymentFailed, targetForInvoice(inv), targetIDForInvoice(inv, evt), meta),
		},
	}
}

func refund(evt paymentdomain.PaymentEvent, inv *invoicedomain.Invoice, meta map[string]any) Decision {
	if inv == nil {
		return Decision{
			Outcome: event.OutcomeUnmatched,
			Effects: []Effect{audit(ActionRefundUnmatched, targetPayment, evt.ProviderRef(), meta)},
		}
	}

	amount := evt.Amount
	if amount <= 0 {
		amount = inv.TotalAmount
	}
	currency := evt.Currency
	if currency == "" {
		currency = inv.Currency
	}
	invoiceID := inv.ID

	effects := []Effect{
		{
			Type:       EffectCreateCreditNote,
			InvoiceID:  &invoiceID,
			CustomerID: inv.CustomerID,
			Amount:     amount,
			Currency:   currency,
			Reason:     evt.Reason,
		},
		audit(ActionCreditNoteCreated, targetInvoice, inv.ID.String(), meta),
	}

	if evt.Kind() == event.KindRefundCompleted &&
		inv.Status == invoicedomain.InvoiceStatusPaid &&
		amount >= inv.TotalAmount {
		effects = append(effects,
			Effect{Type: EffectMarkInvoiceRefunded, InvoiceID: &invoiceID},
			audit(ActionInvoiceRefunded, targetInvoice, inv.ID.String(), meta),
		)
	}

	return Decision{Outcome: event.OutcomeApplied, Effects: effects}
}

// ProcessingFailed records an event whose transaction rolled back. The
// ledger reservation rolled back with it, so a redelivery is retried.
func ProcessingFailed(evt paymentdomain.PaymentEvent, naturalKey string, cause error) Decision {
	meta := eventMetadata(evt)
	meta["natural_key"] = naturalKey
	if cause != nil {
		meta["error"] = cause.Error()
	}
	return Decision{
		Outcome: event.OutcomeFailed,
		Effects: []Effect{audit(ActionProcessingFailed, targetPayment, evt.ProviderRef(), meta)},
	}
}

func targetForInvoice(inv *invoicedomain.Invoice) string {
	if inv == nil {
		return targetPayment
	}
	return targetInvoice
}

func targetIDForInvoice(inv *invoicedomain.Invoice, evt paymentdomain.PaymentEvent) string {
	if inv == nil {
		return evt.ProviderRef()
	}
	return inv.ID.String()
}

func eventMetadata(evt paymentdomain.PaymentEvent) map[string]any {
	meta := map[string]any{
		"event_type": string(evt.Kind()),
	}
	if evt.EventID != "" {
		meta["event_id"] = evt.EventID
	}
	if evt.TransactionReference != "" {
		meta["transaction_reference"] = evt.TransactionReference
	}
	if evt.Amount != 0 {
		meta["amount"] = evt.Amount
	}
	if evt.Currency != "" {
		meta["currency"] = evt.Currency
	}
	if evt.Reason != "" {
		meta["reason"] = evt.Reason
	}
	if evt.UserID != "" {
		meta["user_id"] = evt.UserID
	}
	return meta
}
