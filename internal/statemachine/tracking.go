package statemachine

import (
	"github.com/smallbiznis/reconcile/internal/event"
	trackingdomain "github.com/smallbiznis/reconcile/internal/tracking/domain"
)

// RecordOpen always counts the open and marks the first one. The mark is
// still guarded in storage by opened_at IS NULL, since the snapshot may be
// stale under concurrent fetches.
func RecordOpen(recipient *trackingdomain.Recipient) Decision {
	if recipient == nil {
		return Decision{Outcome: event.OutcomeUnmatched}
	}

	effects := make([]Effect, 0, 2)
	outcome := event.OutcomeDuplicate
	if recipient.OpenedAt == nil {
		effects = append(effects, Effect{Type: EffectMarkOpened})
		outcome = event.OutcomeApplied
	}
	effects = append(effects, Effect{Type: EffectIncrementOpenCount})
	return Decision{Outcome: outcome, Effects: effects}
}
