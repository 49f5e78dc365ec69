package workflow

import (
	"context"
	"errors"
	"testing"

	appErrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

func testMachine(t *testing.T) *Machine {
	t.Helper()
	store := memory.NewWorkflowStore()
	log := logging.New("workflow-test", "error", "text")
	return New(store, log)
}

func TestInitStartsInUploaded(t *testing.T) {
	m := testMachine(t)
	record, err := m.Init(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if record.State != invoice.StateUploaded {
		t.Fatalf("expected UPLOADED, got %s", record.State)
	}
}

func TestFireValidTransitionAppendsHistory(t *testing.T) {
	m := testMachine(t)
	if _, err := m.Init(context.Background(), "inv-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	record, err := m.Fire(context.Background(), "inv-1", workflow.ActionStartProcessing, "system", "", nil)
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if record.State != invoice.StateProcessing {
		t.Fatalf("expected PROCESSING, got %s", record.State)
	}
	if len(record.History) != 1 || record.History[0].Action != workflow.ActionStartProcessing {
		t.Fatalf("expected one history entry, got %+v", record.History)
	}
}

func TestFireInvalidTransitionReturnsBadTransition(t *testing.T) {
	m := testMachine(t)
	if _, err := m.Init(context.Background(), "inv-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := m.Fire(context.Background(), "inv-1", workflow.ActionApprove, "system", "", nil)
	if err == nil {
		t.Fatalf("expected error for invalid transition")
	}
	var svcErr *appErrors.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Kind != appErrors.KindInvalidTransition {
		t.Fatalf("expected InvalidTransition error, got %v", err)
	}
}

func TestFullHappyPathToArchived(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()
	if _, err := m.Init(ctx, "inv-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	steps := []workflow.Action{
		workflow.ActionStartProcessing,
		workflow.ActionCompleteOCR,
		workflow.ActionCompleteExtract,
		workflow.ActionValidate,
		workflow.ActionApprove,
		workflow.ActionRequestPayment,
		workflow.ActionConfirmPayment,
		workflow.ActionArchive,
	}
	var record workflow.Record
	var err error
	for _, action := range steps {
		record, err = m.Fire(ctx, "inv-1", action, "system", "", nil)
		if err != nil {
			t.Fatalf("fire %s: %v", action, err)
		}
	}
	if record.State != invoice.StateArchived {
		t.Fatalf("expected ARCHIVED, got %s", record.State)
	}
	if len(record.History) != len(steps) {
		t.Fatalf("expected %d history entries, got %d", len(steps), len(record.History))
	}
}

func TestEntryHookFailureIsSwallowed(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()
	if _, err := m.Init(ctx, "inv-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	called := false
	m.OnEnter(invoice.StateProcessing, func(ctx context.Context, record workflow.Record) error {
		called = true
		return errors.New("boom")
	})

	record, err := m.Fire(ctx, "inv-1", workflow.ActionStartProcessing, "system", "", nil)
	if err != nil {
		t.Fatalf("expected transition to succeed despite hook failure: %v", err)
	}
	if !called {
		t.Fatalf("expected hook to run")
	}
	if record.State != invoice.StateProcessing {
		t.Fatalf("expected PROCESSING, got %s", record.State)
	}
}

func TestCanFireReportsValidityWithoutMutating(t *testing.T) {
	m := testMachine(t)
	if m.CanFire(invoice.StateUploaded, workflow.ActionApprove) {
		t.Fatalf("expected ActionApprove invalid from UPLOADED")
	}
	if !m.CanFire(invoice.StateUploaded, workflow.ActionStartProcessing) {
		t.Fatalf("expected ActionStartProcessing valid from UPLOADED")
	}
}
