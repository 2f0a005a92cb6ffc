package statemachine

import (
	"errors"
	"strings"

	"github.com/smallbiznis/reconcile/internal/event"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
)

const (
	ActionGuestOrderLinked       = "guest_order.linked"
	ActionGuestOrderLinkRejected = "guest_order.link_rejected"
)

// Rejection reasons recorded on guest_order.link_rejected.
const (
	LinkReasonNotFound      = "not_found"
	LinkReasonEmailMismatch = "email_mismatch"
	LinkReasonAlreadyLinked = "already_linked"
	LinkReasonBindRaceLost  = "bind_race_lost"
)

// LinkGuestOrder checks the preconditions for binding an order to a user.
// Email is compared before link state so a caller who does not know the
// order email learns nothing about whether it is linked.
func LinkGuestOrder(order *guestorderdomain.GuestOrder, callerEmail, userID string) (Decision, error) {
	if order == nil {
		return Decision{Outcome: event.OutcomeRejected}, guestorderdomain.ErrOrderNotFound
	}
	if !EmailMatches(order.Email, callerEmail) {
		return Decision{Outcome: event.OutcomeRejected}, guestorderdomain.ErrEmailMismatch
	}
	if order.Linked() {
		return Decision{Outcome: event.OutcomeDuplicate}, guestorderdomain.ErrOrderAlreadyLinked
	}

	return Decision{
		Outcome: event.OutcomeApplied,
		Effects: []Effect{
			{Type: EffectBindUser, UserID: userID},
			audit(ActionGuestOrderLinked, "guest_order", order.ID.String(), map[string]any{
				"order_number": order.OrderNumber,
				"user_id":      userID,
			}),
		},
	}, nil
}

// LinkRejected is the audit effect for an authenticated link attempt that
// did not bind. The supplied email is never recorded.
func LinkRejected(orderNumber, userID, reason string) Effect {
	return audit(ActionGuestOrderLinkRejected, "guest_order", orderNumber, map[string]any{
		"order_number": orderNumber,
		"user_id":      userID,
		"reason":       reason,
	})
}

// LinkRejectionReason maps a LinkGuestOrder error to its audit reason.
func LinkRejectionReason(err error) string {
	switch {
	case errors.Is(err, guestorderdomain.ErrOrderNotFound):
		return LinkReasonNotFound
	case errors.Is(err, guestorderdomain.ErrEmailMismatch):
		return LinkReasonEmailMismatch
	case errors.Is(err, guestorderdomain.ErrOrderAlreadyLinked):
		return LinkReasonAlreadyLinked
	default:
		return ""
	}
}

func EmailMatches(stored, supplied string) bool {
	stored = strings.TrimSpace(stored)
	supplied = strings.TrimSpace(supplied)
	if stored == "" || supplied == "" {
		return false
	}
	return strings.EqualFold(stored, supplied)
}
