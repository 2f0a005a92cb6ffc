package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/smallbiznis/reconcile/internal/audit/repository"
	auditservice "github.com/smallbiznis/reconcile/internal/audit/service"
	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/event"
	idempotencyrepo "github.com/smallbiznis/reconcile/internal/idempotency/repository"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/reconcile/internal/invoice/repository"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/reconcile/internal/payment/repository"
	paymentservice "github.com/smallbiznis/reconcile/internal/payment/service"
	"github.com/smallbiznis/reconcile/internal/testdb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	svc paymentdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := testdb.Open(t)
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	svc := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Ledger:   idempotencyrepo.Provide(),
		Invoices: invoicerepo.Provide(),
		Repo:     paymentrepo.Provide(),
		AuditSvc: auditSvc,
		Clock:    clk,
	})
	return fixture{db: db, svc: svc}
}

func (f fixture) seedInvoice(t *testing.T, id snowflake.ID, status invoicedomain.InvoiceStatus, reference string) {
	t.Helper()
	now := time.Now().UTC()
	if err := f.db.Create(&invoicedomain.Invoice{
		ID:          id,
		CustomerID:  900,
		Status:      status,
		TotalAmount: 2500,
		Currency:    "GBP",
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	if reference == "" {
		return
	}
	if err := invoicerepo.Provide().InsertReference(context.Background(), f.db, invoicedomain.PaymentReference{
		TransactionReference: reference,
		InvoiceID:            id,
		Amount:               2500,
		Currency:             "GBP",
		CreatedAt:            now,
	}); err != nil {
		t.Fatalf("seed reference: %v", err)
	}
}

func (f fixture) invoiceStatus(t *testing.T, id snowflake.ID) invoicedomain.InvoiceStatus {
	t.Helper()
	inv, err := invoicerepo.Provide().FindByID(context.Background(), f.db, id)
	if err != nil || inv == nil {
		t.Fatalf("load invoice: %v", err)
	}
	return inv.Status
}

func TestDuplicateAuthorizedEventsPayInvoiceOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 11, invoicedomain.InvoiceStatusUnpaid, "txn_11")

	outcomes := []event.Outcome{}
	for i := 0; i < 3; i++ {
		result, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
			EventType:            "payment.authorized",
			TransactionReference: "txn_11",
			Amount:               2500,
		})
		if err != nil {
			t.Fatalf("process event %d: %v", i, err)
		}
		outcomes = append(outcomes, result.Outcome)
	}

	if outcomes[0] != event.OutcomeApplied {
		t.Fatalf("expected first delivery applied, got %s", outcomes[0])
	}
	for _, o := range outcomes[1:] {
		if o != event.OutcomeDuplicate {
			t.Fatalf("expected duplicates, got %v", outcomes)
		}
	}
	if status := f.invoiceStatus(t, 11); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected paid, got %s", status)
	}
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM idempotency_records", 1)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_attempts", 0)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes", 0)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'invoice.paid'", 1)
}

func TestSettledAfterAuthorizedKeepsInvoicePaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 12, invoicedomain.InvoiceStatusUnpaid, "txn_12")

	for _, kind := range []string{"payment.authorized", "payment.settled", "payment.captured"} {
		if _, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{EventType: kind, TransactionReference: "txn_12"}); err != nil {
			t.Fatalf("process %s: %v", kind, err)
		}
	}

	if status := f.invoiceStatus(t, 12); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected paid, got %s", status)
	}
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'invoice.paid'", 1)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.already_applied'", 2)
}

func TestConcurrentDuplicateDeliveriesMutateOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 13, invoicedomain.InvoiceStatusPaid, "txn_13")

	var wg sync.WaitGroup
	results := make([]paymentdomain.Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
				EventType:            "refund.completed",
				EventID:              "evt_refund_13",
				TransactionReference: "txn_13",
				Reason:               "customer_request",
			})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("delivery %d failed: %v", i, errs[i])
		}
		if results[i].Outcome == event.OutcomeApplied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied delivery, got %d (%v)", applied, results)
	}
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes", 1)
	if status := f.invoiceStatus(t, 13); status != invoicedomain.InvoiceStatusRefunded {
		t.Fatalf("expected refunded, got %s", status)
	}
}

func TestUnknownEventTypeIsAuditedOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 14, invoicedomain.InvoiceStatusUnpaid, "txn_14")

	result, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
		EventType:            "payout.scheduled",
		EventID:              "evt_u1",
		TransactionReference: "txn_14",
	})
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != event.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", result.Outcome)
	}

	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.event_ignored'", 1)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM idempotency_records", 0)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_attempts", 0)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes", 0)
	if status := f.invoiceStatus(t, 14); status != invoicedomain.InvoiceStatusUnpaid {
		t.Fatalf("expected unpaid, got %s", status)
	}
}

func TestRefundWithoutInvoiceIsAuditedWithoutCreditNote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
		EventType:            "refund.completed",
		EventID:              "evt_r404",
		TransactionReference: "txn_unknown",
	})
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != event.OutcomeUnmatched {
		t.Fatalf("expected unmatched, got %s", result.Outcome)
	}
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes", 0)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'refund.unmatched'", 1)
}

func TestFailedPaymentCreatesSingleAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 15, invoicedomain.InvoiceStatusUnpaid, "txn_15")

	evt := &paymentdomain.PaymentEvent{
		EventType:            "payment.failed",
		EventID:              "evt_f1",
		TransactionReference: "txn_15",
		Amount:               2500,
		Currency:             "gbp",
		Reason:               "card_declined",
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.ProcessEvent(ctx, evt); err != nil {
			t.Fatalf("process event: %v", err)
		}
	}

	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_attempts WHERE invoice_id = 15 AND status = 'failed' AND reason = 'card_declined' AND currency = 'GBP'", 1)
	if status := f.invoiceStatus(t, 15); status != invoicedomain.InvoiceStatusUnpaid {
		t.Fatalf("failed payment must not change invoice, got %s", status)
	}
}

func TestInvoiceResolvedFromMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 16, invoicedomain.InvoiceStatusUnpaid, "")

	result, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
		EventType:            "payment.captured",
		TransactionReference: "opaque-provider-ref",
		InvoiceID:            "16",
	})
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.InvoiceID == nil || *result.InvoiceID != 16 {
		t.Fatalf("expected invoice 16, got %v", result.InvoiceID)
	}
	if status := f.invoiceStatus(t, 16); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected paid, got %s", status)
	}
}

func TestChargebackWritesUrgentAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 17, invoicedomain.InvoiceStatusPaid, "txn_17")

	if _, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{EventType: "chargeback.received", EventID: "evt_cb", TransactionReference: "txn_17"}); err != nil {
		t.Fatalf("process event: %v", err)
	}
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.chargeback' AND metadata LIKE '%urgent%'", 1)
	if status := f.invoiceStatus(t, 17); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("chargeback must not change invoice, got %s", status)
	}
}

func TestEventWithoutIdentifiersIsRejected(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.ProcessEvent(context.Background(), &paymentdomain.PaymentEvent{EventType: "payment.authorized"})
	if err != paymentdomain.ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if result.Outcome != event.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", result.Outcome)
	}
}

func TestDistinctPartialRefundsEachCreateCreditNote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 77, invoicedomain.InvoiceStatusPaid, "txn_77")

	refunds := []*paymentdomain.PaymentEvent{
		{EventType: "refund.completed", EventID: "evt_ref_a", TransactionReference: "txn_77", Amount: 1000},
		{EventType: "refund.completed", EventID: "evt_ref_b", TransactionReference: "txn_77", Amount: 1500},
	}
	for _, evt := range refunds {
		result, err := f.svc.ProcessEvent(ctx, evt)
		if err != nil {
			t.Fatalf("process %s: %v", evt.EventID, err)
		}
		if result.Outcome != event.OutcomeApplied {
			t.Fatalf("expected %s applied, got %s", evt.EventID, result.Outcome)
		}
	}

	replay, err := f.svc.ProcessEvent(ctx, refunds[0])
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Outcome != event.OutcomeDuplicate {
		t.Fatalf("expected replay duplicate, got %s", replay.Outcome)
	}

	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes", 2)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes WHERE invoice_id = 77 AND amount = 1000", 1)
	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM credit_notes WHERE invoice_id = 77 AND amount = 1500", 1)
	if status := f.invoiceStatus(t, 77); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("partial refunds must keep invoice paid, got %s", status)
	}
}

func TestDistinctFailuresEachCreateAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 78, invoicedomain.InvoiceStatusUnpaid, "txn_78")

	for _, id := range []string{"evt_f_a", "evt_f_b"} {
		result, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
			EventType:            "payment.failed",
			EventID:              id,
			TransactionReference: "txn_78",
			Reason:               "card_declined",
		})
		if err != nil {
			t.Fatalf("process %s: %v", id, err)
		}
		if result.Outcome != event.OutcomeApplied {
			t.Fatalf("expected %s applied, got %s", id, result.Outcome)
		}
	}

	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_attempts WHERE invoice_id = 78", 2)
}

func TestRolledBackEventIsAudited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedInvoice(t, 79, invoicedomain.InvoiceStatusPaid, "txn_79")
	if err := f.db.Exec("DROP TABLE credit_notes").Error; err != nil {
		t.Fatalf("drop credit_notes: %v", err)
	}

	result, err := f.svc.ProcessEvent(ctx, &paymentdomain.PaymentEvent{
		EventType:            "refund.completed",
		EventID:              "evt_ref_fail",
		TransactionReference: "txn_79",
	})
	if err == nil {
		t.Fatalf("expected processing error")
	}
	if result.Outcome != event.OutcomeFailed {
		t.Fatalf("expected failed, got %s", result.Outcome)
	}

	testdb.AssertCount(t, f.db, "SELECT COUNT(*) FROM idempotency_records", 0)
	testdb.AssertCount(t, f.db,
		"SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.processing_failed' AND target_id = ? AND metadata LIKE ?",
		1, "evt_ref_fail", "%payment:refund.completed:txn_79:evt_ref_fail%")
	if status := f.invoiceStatus(t, 79); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("rolled back refund must not change invoice, got %s", status)
	}
}
