package domain

import (
	"errors"
	"testing"
)

func TestPaymentKey(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		ref       string
		eventID   string
		want      string
		wantErr   error
	}{
		{name: "reference preferred", eventType: "payment.authorized", ref: "TX-1", eventID: "evt_1", want: "payment:payment.authorized:TX-1"},
		{name: "event id fallback", eventType: "Payment.Failed", eventID: "evt_2", want: "payment:payment.failed:id:evt_2"},
		{name: "trimmed", eventType: " refund.completed ", ref: " TX-9 ", want: "payment:refund.completed:TX-9"},
		{name: "refund carries event id", eventType: "refund.completed", ref: "TX-9", eventID: "evt_ref_a", want: "payment:refund.completed:TX-9:evt_ref_a"},
		{name: "failure carries event id", eventType: "payment.failed", ref: "TX-9", eventID: "evt_f1", want: "payment:payment.failed:TX-9:evt_f1"},
		{name: "refused carries event id", eventType: "payment.refused", ref: "TX-9", eventID: "evt_f2", want: "payment:payment.refused:TX-9:evt_f2"},
		{name: "missing type", ref: "TX-1", wantErr: ErrMissingKeyParts},
		{name: "missing identifiers", eventType: "payment.authorized", wantErr: ErrMissingKeyParts},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PaymentKey(tc.eventType, tc.ref, tc.eventID)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDistinctEventTypesDoNotCollide(t *testing.T) {
	authorized, _ := PaymentKey("payment.authorized", "TX-1", "")
	refunded, _ := PaymentKey("refund.completed", "TX-1", "")
	if authorized == refunded {
		t.Fatalf("keys for different event types must differ")
	}
}

func TestDistinctRefundsOnSameReferenceDoNotCollide(t *testing.T) {
	first, _ := PaymentKey("refund.completed", "txn_77", "evt_ref_a")
	second, _ := PaymentKey("refund.completed", "txn_77", "evt_ref_b")
	if first == second {
		t.Fatalf("distinct refund events on one reference must not share a key")
	}
	replay, _ := PaymentKey("refund.completed", "txn_77", "evt_ref_a")
	if first != replay {
		t.Fatalf("replayed refund must reuse its key, got %q and %q", first, replay)
	}
}

func TestSuccessKindsIgnoreEventID(t *testing.T) {
	first, _ := PaymentKey("payment.authorized", "TX-1", "evt_1")
	second, _ := PaymentKey("payment.authorized", "TX-1", "evt_2")
	if first != second {
		t.Fatalf("success kinds must key on the reference only, got %q and %q", first, second)
	}
}
