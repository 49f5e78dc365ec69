package orchestrator

import (
	"context"
	"errors"
	"testing"

	appErrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	log := logging.New("test", "error", "json")
	invoices := memory.NewInvoiceStore()
	machine := workflowsvc.New(memory.NewWorkflowStore(), log)
	auditLog := auditsvc.New(memory.NewAuditStore())
	eb := eventbus.New(eventbus.NewMemoryTransport(), eventbus.Config{}, log)
	return New(invoices, machine, auditLog, eb, log)
}

func TestUploadCreatesInvoiceAndPublishes(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	inv, err := o.Upload(ctx, UploadRequest{TenantID: "t1", DocumentID: "d1", Filename: "invoice.pdf", SizeBytes: 1024, StoragePath: "2026/01/01/d1.pdf", ContentHash: "abc123"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if inv.State != invoice.StateUploaded {
		t.Fatalf("expected uploaded state, got %s", inv.State)
	}

	fetched, err := o.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.ID != inv.ID {
		t.Fatalf("expected matching invoice id")
	}
}

func TestDispatchTransitionsToErrorOnPermanentFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	inv, err := o.Upload(ctx, UploadRequest{TenantID: "t1", DocumentID: "d2", Filename: "invoice.pdf", SizeBytes: 1024, StoragePath: "p", ContentHash: "hash2"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	failing := o.Dispatch(func(ctx context.Context, msg bus.Message) error {
		return appErrors.InvalidDocument("corrupt file")
	})

	msg := bus.Message{Data: map[string]any{"invoice_id": inv.ID}, CorrelationID: inv.ID}
	if err := failing(ctx, msg); err == nil {
		t.Fatalf("expected error to propagate")
	}

	updated, err := o.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.State != invoice.StateError {
		t.Fatalf("expected error state, got %s", updated.State)
	}
}

func TestDispatchLeavesStateUnchangedOnTransientFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	inv, err := o.Upload(ctx, UploadRequest{TenantID: "t1", DocumentID: "d3", Filename: "invoice.pdf", SizeBytes: 1024, StoragePath: "p", ContentHash: "hash3"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	transient := o.Dispatch(func(ctx context.Context, msg bus.Message) error {
		return appErrors.Transient("ocr_call", errors.New("timeout"))
	})

	msg := bus.Message{Data: map[string]any{"invoice_id": inv.ID}, CorrelationID: inv.ID}
	if err := transient(ctx, msg); err == nil {
		t.Fatalf("expected transient error to propagate for bus retry")
	}

	updated, err := o.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.State != invoice.StateUploaded {
		t.Fatalf("expected state to remain uploaded on transient failure, got %s", updated.State)
	}
}
