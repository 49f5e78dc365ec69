package audit

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

func TestAppendAssignsIDAndChecksum(t *testing.T) {
	logger := New(memory.NewAuditStore())
	event, err := logger.Append(context.Background(), audit.Event{
		Type: audit.EventInvoiceCreated, TenantID: "t1", ResourceID: "inv-1", Action: "create",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.ID == "" {
		t.Fatalf("expected generated ID")
	}
	if event.Checksum == "" {
		t.Fatalf("expected checksum")
	}

	ok, err := Verify(event)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected checksum to verify")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	logger := New(memory.NewAuditStore())
	event, err := logger.Append(context.Background(), audit.Event{Type: audit.EventRiskScored, TenantID: "t1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	event.Actor = "tampered"
	ok, err := Verify(event)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected tampering to fail verification")
	}
}

func TestIDsAreMonotonicWithinDay(t *testing.T) {
	logger := New(memory.NewAuditStore())
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	first, err := logger.Append(context.Background(), audit.Event{Type: audit.EventInvoiceCreated})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := logger.Append(context.Background(), audit.Event{Type: audit.EventInvoiceUpdated})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids")
	}
	wantFirst := "AE-20260315-00000001"
	wantSecond := "AE-20260315-00000002"
	if first.ID != wantFirst || second.ID != wantSecond {
		t.Fatalf("expected %s then %s, got %s then %s", wantFirst, wantSecond, first.ID, second.ID)
	}
}

func TestQueryDefaultsLimit(t *testing.T) {
	logger := New(memory.NewAuditStore())
	for i := 0; i < 3; i++ {
		if _, err := logger.Append(context.Background(), audit.Event{Type: audit.EventInvoiceCreated, TenantID: "t1"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	events, err := logger.Query(context.Background(), audit.Query{TenantID: "t1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestExportProducesComplianceSummary(t *testing.T) {
	logger := New(memory.NewAuditStore())
	if _, err := logger.Append(context.Background(), audit.Event{Type: audit.EventInvoiceCreated, TenantID: "t1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	export, err := logger.Export(context.Background(), audit.Query{TenantID: "t1"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.EventCount != 1 || len(export.Events) != 1 {
		t.Fatalf("expected one event in export, got %+v", export)
	}
}
