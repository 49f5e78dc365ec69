package memory

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

func TestInvoiceStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInvoiceStore()

	created, err := store.Create(ctx, invoice.Invoice{TenantID: "t1", ContentHash: "abc"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContentHash != "abc" {
		t.Fatalf("expected content hash to round-trip")
	}
}

func TestInvoiceStoreGetMissingReturnsNotFound(t *testing.T) {
	store := NewInvoiceStore()
	_, err := store.Get(context.Background(), "missing")
	if errors.GetKind(err) != errors.KindNotFound {
		t.Fatalf("expected not-found kind, got %v", err)
	}
}

func TestApprovalStoreEnforcesLookupOfPendingTask(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	task, err := store.Create(ctx, approval.Task{InvoiceID: "inv-1", Status: approval.StatusPending})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := store.GetPendingForInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if pending == nil || pending.ID != task.ID {
		t.Fatalf("expected to find the pending task")
	}

	task.Status = approval.StatusApproved
	if _, err := store.Update(ctx, task); err != nil {
		t.Fatalf("update: %v", err)
	}

	pending, err = store.GetPendingForInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("lookup after decision: %v", err)
	}
	if pending != nil {
		t.Fatalf("expected no pending task after approval")
	}
}

func TestDuplicateIndexStoreRecentByVendorWindow(t *testing.T) {
	ctx := context.Background()
	store := NewDuplicateIndexStore()
	now := time.Now()

	if err := store.RegisterRecentByVendor(ctx, "t1", "acme", "inv-1", 100, now.Add(-10*24*time.Hour)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.RegisterRecentByVendor(ctx, "t1", "acme", "inv-2", 105, now.Add(-1*time.Hour)); err != nil {
		t.Fatalf("register: %v", err)
	}

	recent, err := store.LookupRecentByVendor(ctx, "t1", "acme", now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(recent) != 1 || recent[0].InvoiceID != "inv-2" {
		t.Fatalf("expected only the within-window invoice, got %+v", recent)
	}
}
