package repository_test

import (
	"context"
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/reconcile/internal/invoice/repository"
	"github.com/smallbiznis/reconcile/internal/testdb"
)

func TestMarkPaidIsConditional(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	repo := invoicerepo.Provide()

	now := time.Now().UTC()
	if err := db.Create(&invoicedomain.Invoice{ID: 10, CustomerID: 1, Status: invoicedomain.InvoiceStatusUnpaid, TotalAmount: 100, Currency: "USD", CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	changed, err := repo.MarkPaid(ctx, db, 10, now)
	if err != nil || !changed {
		t.Fatalf("first MarkPaid: changed=%v err=%v", changed, err)
	}
	changed, err = repo.MarkPaid(ctx, db, 10, now.Add(time.Minute))
	if err != nil || changed {
		t.Fatalf("second MarkPaid should not change: changed=%v err=%v", changed, err)
	}

	changed, err = repo.MarkRefunded(ctx, db, 10, now.Add(time.Hour))
	if err != nil || !changed {
		t.Fatalf("MarkRefunded: changed=%v err=%v", changed, err)
	}
	changed, err = repo.MarkPaid(ctx, db, 10, now.Add(2*time.Hour))
	if err != nil || changed {
		t.Fatalf("refunded invoice must not return to paid")
	}

	inv, err := repo.FindByID(ctx, db, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if inv.Status != invoicedomain.InvoiceStatusRefunded {
		t.Fatalf("expected refunded, got %s", inv.Status)
	}
}

func TestFindMissing(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	repo := invoicerepo.Provide()

	inv, err := repo.FindByID(ctx, db, 12345)
	if err != nil || inv != nil {
		t.Fatalf("expected nil invoice, got %+v err=%v", inv, err)
	}
	ref, err := repo.FindReference(ctx, db, "txn_missing")
	if err != nil || ref != nil {
		t.Fatalf("expected nil reference, got %+v err=%v", ref, err)
	}
}
