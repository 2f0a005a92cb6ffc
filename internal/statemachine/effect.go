// Package statemachine holds the pure transition rules for every record an
// inbound event can touch. Functions here compute effects; they never
// perform I/O.
package statemachine

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/event"
)

type EffectType string

const (
	EffectMarkInvoicePaid      EffectType = "mark_invoice_paid"
	EffectMarkInvoiceRefunded  EffectType = "mark_invoice_refunded"
	EffectCreatePaymentAttempt EffectType = "create_payment_attempt"
	EffectCreateCreditNote     EffectType = "create_credit_note"
	EffectAudit                EffectType = "audit"
	EffectBindUser             EffectType = "bind_user"
	EffectMarkOpened           EffectType = "mark_opened"
	EffectIncrementOpenCount   EffectType = "increment_open_count"
)

// Effect is one side effect the caller must apply. Only the fields relevant
// to Type are set.
type Effect struct {
	Type       EffectType
	InvoiceID  *snowflake.ID
	CustomerID snowflake.ID
	Amount     int64
	Currency   string
	Reason     string
	UserID     string

	Action     string
	TargetType string
	TargetID   string
	Urgent     bool
	Metadata   map[string]any
}

type Decision struct {
	Outcome event.Outcome
	Effects []Effect
}

// Audits returns the audit effects of the decision in order.
func (d Decision) Audits() []Effect {
	out := make([]Effect, 0, 1)
	for _, e := range d.Effects {
		if e.Type == EffectAudit {
			out = append(out, e)
		}
	}
	return out
}

// Mutations returns every non-audit effect in order.
func (d Decision) Mutations() []Effect {
	out := make([]Effect, 0, len(d.Effects))
	for _, e := range d.Effects {
		if e.Type != EffectAudit {
			out = append(out, e)
		}
	}
	return out
}

func audit(action, targetType, targetID string, metadata map[string]any) Effect {
	return Effect{
		Type:       EffectAudit,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	}
}
