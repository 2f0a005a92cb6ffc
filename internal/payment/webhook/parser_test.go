package webhook

import (
	"errors"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
)

func TestParseFullPayload(t *testing.T) {
	payload := []byte(`{
		"eventType": "payment.failed",
		"eventId": "evt_1",
		"eventTimestamp": "2026-05-01T10:00:00Z",
		"transactionReference": "txn_abc",
		"instruction": {"value": {"amount": 1250, "currency": "eur"}},
		"outcome": {"reason": "insufficient_funds"},
		"metadata": {"userId": "user-9", "invoiceId": 1234567890}
	}`)

	evt, err := Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.EventType != "payment.failed" || evt.EventID != "evt_1" {
		t.Fatalf("unexpected identifiers: %+v", evt)
	}
	if evt.Amount != 1250 || evt.Currency != "EUR" || evt.Reason != "insufficient_funds" {
		t.Fatalf("unexpected amounts: %+v", evt)
	}
	if evt.UserID != "user-9" || evt.InvoiceID != "1234567890" {
		t.Fatalf("unexpected metadata: %+v", evt)
	}
	if evt.EventTimestamp == nil || !evt.EventTimestamp.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", evt.EventTimestamp)
	}
}

func TestParseAlternateFieldNames(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"refund.completed","id":"evt_2","eventTimestamp":1767225600,"instruction":{"value":{"amount":"300"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.EventType != "refund.completed" || evt.EventID != "evt_2" || evt.Amount != 300 {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.EventTimestamp == nil || evt.EventTimestamp.Unix() != 1767225600 {
		t.Fatalf("unexpected timestamp: %v", evt.EventTimestamp)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		payload string
		err     error
	}{
		{"", paymentdomain.ErrInvalidPayload},
		{"not json", paymentdomain.ErrInvalidPayload},
		{`{"eventId":"evt_3"}`, paymentdomain.ErrMissingEventType},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.payload)); !errors.Is(err, tc.err) {
			t.Fatalf("Parse(%q): expected %v, got %v", tc.payload, tc.err, err)
		}
	}
}

func TestEchoEventID(t *testing.T) {
	cases := map[string]string{
		`{"eventId":"evt_1","eventType":"payment.failed"}`: "evt_1",
		`{"id":"evt_2"}`:   "evt_2",
		`{not json`:        "",
		`{"eventId":"  "}`: "",
	}
	for payload, want := range cases {
		if got := EchoEventID([]byte(payload)); got != want {
			t.Fatalf("EchoEventID(%s) = %q, want %q", payload, got, want)
		}
	}
}
