package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/smallbiznis/reconcile/internal/audit/repository"
	auditservice "github.com/smallbiznis/reconcile/internal/audit/service"
	"github.com/smallbiznis/reconcile/internal/authgate"
	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/event"
	idempotencyrepo "github.com/smallbiznis/reconcile/internal/idempotency/repository"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/reconcile/internal/invoice/repository"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/reconcile/internal/payment/repository"
	paymentservice "github.com/smallbiznis/reconcile/internal/payment/service"
	paymentwebhook "github.com/smallbiznis/reconcile/internal/payment/webhook"
	"github.com/smallbiznis/reconcile/internal/testdb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

func newWebhookService(t *testing.T, clk clock.Clock) (*gorm.DB, paymentdomain.WebhookService) {
	t.Helper()

	db := testdb.Open(t)
	node, err := snowflake.NewNode(8)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Ledger:   idempotencyrepo.Provide(),
		Invoices: invoicerepo.Provide(),
		Repo:     paymentrepo.Provide(),
		AuditSvc: auditSvc,
		Clock:    clk,
	})
	gate := authgate.NewGate(
		authgate.NewSignatureVerifier(webhookSecret, "", func() time.Duration { return 5 * time.Minute }, clk),
		nil,
	)
	svc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        zap.NewNop(),
		Gate:       gate,
		PaymentSvc: paymentSvc,
		AuditSvc:   auditSvc,
	})
	return db, svc
}

func signed(secret string, at time.Time, body []byte) http.Header {
	h := http.Header{}
	h.Set("X-Payment-Signature", authgate.SignatureHeaderValue(secret, at, body))
	return h
}

func TestIngestWebhookAppliesSignedPayment(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	db, svc := newWebhookService(t, clock.NewFakeClock(now))

	if err := db.Create(&invoicedomain.Invoice{ID: 21, CustomerID: 5, Status: invoicedomain.InvoiceStatusUnpaid, TotalAmount: 990, Currency: "USD", CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	body := []byte(`{"eventType":"payment.authorized","eventId":"evt_w1","transactionReference":"txn_w1","metadata":{"invoiceId":"21"}}`)
	result, err := svc.IngestWebhook(ctx, body, signed(webhookSecret, now, body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Outcome != event.OutcomeApplied || result.EventID != "evt_w1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	testdb.AssertCount(t, db, "SELECT COUNT(*) FROM invoices WHERE id = 21 AND status = 'paid'", 1)

	replay, err := svc.IngestWebhook(ctx, body, signed(webhookSecret, now, body))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Outcome != event.OutcomeDuplicate {
		t.Fatalf("expected duplicate on replay, got %s", replay.Outcome)
	}
}

func TestIngestWebhookRejectsBadSignatureBeforeParsing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	db, svc := newWebhookService(t, clock.NewFakeClock(now))

	body := []byte(`{"eventType":"payment.authorized","eventId":"evt_evil","transactionReference":"txn_evil"}`)
	result, err := svc.IngestWebhook(ctx, body, signed("forged", now, body))
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if result.Outcome != event.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", result.Outcome)
	}
	if result.EventID != "evt_evil" {
		t.Fatalf("expected echoed event id, got %q", result.EventID)
	}
	testdb.AssertCount(t, db, "SELECT COUNT(*) FROM idempotency_records", 0)
	testdb.AssertCount(t, db, "SELECT COUNT(*) FROM audit_logs", 0)
}

func TestIngestWebhookAuditsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	db, svc := newWebhookService(t, clock.NewFakeClock(now))

	body := []byte(`{"eventId":"evt_nokind"}`)
	_, err := svc.IngestWebhook(ctx, body, signed(webhookSecret, now, body))
	if !errors.Is(err, paymentdomain.ErrMissingEventType) {
		t.Fatalf("expected ErrMissingEventType, got %v", err)
	}
	testdb.AssertCount(t, db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.malformed_event'", 1)
}
