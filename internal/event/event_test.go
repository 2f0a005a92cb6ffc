package event

import "testing"

func TestClassify(t *testing.T) {
	cases := map[Kind]Category{
		KindPaymentAuthorized:  CategoryPaymentSucceeded,
		KindPaymentSettled:     CategoryPaymentSucceeded,
		KindPaymentCaptured:    CategoryPaymentSucceeded,
		KindPaymentFailed:      CategoryPaymentFailed,
		KindPaymentRefused:     CategoryPaymentFailed,
		KindRefundRequested:    CategoryRefund,
		KindRefundCompleted:    CategoryRefund,
		KindChargebackReceived: CategoryChargeback,
		KindDisputeOpened:      CategoryChargeback,
		Kind("payout.created"): CategoryUnknown,
		Kind(""):               CategoryUnknown,
	}
	for kind, want := range cases {
		if got := Classify(kind); got != want {
			t.Fatalf("classify %q: expected %s, got %s", kind, want, got)
		}
	}
}

func TestNormalizeKind(t *testing.T) {
	if got := NormalizeKind("  Payment.AUTHORIZED "); got != KindPaymentAuthorized {
		t.Fatalf("expected %s, got %s", KindPaymentAuthorized, got)
	}
}
