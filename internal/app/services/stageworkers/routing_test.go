package stageworkers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	"github.com/R3E-Network/service_layer/internal/app/services/risk"
	"github.com/R3E-Network/service_layer/internal/app/services/slamanager"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

type routingDeps struct {
	worker    *RoutingWorker
	invoices  *memory.InvoiceStore
	approvals *memory.ApprovalStore
	machine   *workflowsvc.Machine
}

func newRoutingWorker(t *testing.T, rules []approval.Rule) routingDeps {
	t.Helper()
	invoices, machine, auditLog, eb, log := newTestDeps(t)
	vendors := memory.NewVendorStore()
	approvals := memory.NewApprovalStore()
	slaMgr := slamanager.New(memory.NewSLAStore(), slamanager.DefaultConfig(), logging.New("test", "error", "json"))

	worker := NewRoutingWorker(invoices, vendors, approvals, risk.NewScorer(risk.DefaultScorerConfig()), risk.NewRuleEngine(rules), machine, slaMgr, auditLog, eb, log)
	return routingDeps{worker: worker, invoices: invoices, approvals: approvals, machine: machine}
}

// createValidatedInvoice seeds an invoice with a workflow record already
// advanced to the validated state, as the validation+scoring worker would
// have left it.
func createValidatedInvoice(t *testing.T, d routingDeps, total decimal.Decimal) invoice.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := d.invoices.Create(ctx, invoice.Invoice{TenantID: "t1", State: invoice.StateValidated, Total: total})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := d.machine.Init(ctx, inv.ID); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, action := range []workflow.Action{workflow.ActionStartProcessing, workflow.ActionCompleteOCR, workflow.ActionCompleteExtract, workflow.ActionValidate} {
		if _, err := d.machine.Fire(ctx, inv.ID, action, "system", "", nil); err != nil {
			t.Fatalf("fire %s: %v", action, err)
		}
	}
	return inv
}

func TestRoutingWorkerAutoApprovesSmallAmount(t *testing.T) {
	rules := []approval.Rule{
		{ID: "r1", Name: "small auto approve", Active: true, Priority: 10,
			Conditions:     []approval.Condition{{FieldPath: "amount", Operator: approval.OpLessThan, Value: float64(100)}},
			ConditionLogic: approval.LogicAND,
			Actions:        []approval.RuleAction{{Type: approval.ActionAutoApprove}},
		},
	}
	d := newRoutingWorker(t, rules)
	ctx := context.Background()
	inv := createValidatedInvoice(t, d, decimal.NewFromInt(50))

	msg := bus.NewMessage("m1", bus.EventInvoiceProcessed, map[string]any{"invoice_id": inv.ID}, bus.PriorityNormal, "corr-1", time.Now())
	if err := d.worker.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	updated, err := d.invoices.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.State != invoice.StateApproved {
		t.Fatalf("expected approved state, got %s", updated.State)
	}
}

func TestRoutingWorkerOpensApprovalTaskWhenNoRuleMatches(t *testing.T) {
	d := newRoutingWorker(t, nil)
	ctx := context.Background()
	inv := createValidatedInvoice(t, d, decimal.NewFromInt(5000))

	msg := bus.NewMessage("m2", bus.EventInvoiceProcessed, map[string]any{"invoice_id": inv.ID}, bus.PriorityNormal, "corr-2", time.Now())
	if err := d.worker.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	task, err := d.approvals.GetPendingForInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if task == nil {
		t.Fatalf("expected a pending approval task")
	}

	updated, err := d.invoices.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.State != invoice.StateReviewPending {
		t.Fatalf("expected review_pending state, got %s", updated.State)
	}
}
