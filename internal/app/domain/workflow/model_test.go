package workflow

import (
	"testing"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
)

func TestTableCoversFullLifecycle(t *testing.T) {
	want := Transition{invoice.StateReviewPending, ActionApprove, invoice.StateApproved}
	found := false
	for _, tr := range Table {
		if tr == want {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected review_pending -> approve -> approved in table")
	}
}

func TestRecordHistoryInvariant(t *testing.T) {
	rec := Record{
		InvoiceID: "inv-1",
		State:     invoice.StateProcessing,
		History: []StateTransition{
			{From: invoice.StateUploaded, To: invoice.StateProcessing, Action: ActionStartProcessing},
		},
	}

	last := rec.History[len(rec.History)-1]
	if last.To != rec.State {
		t.Fatalf("history's last to_state must equal current state")
	}
}
