package stageworkers

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	core "github.com/R3E-Network/service_layer/internal/app/core/service"
	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	slamgr "github.com/R3E-Network/service_layer/internal/app/services/slamanager"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// ApprovalDecisionWorker records a reviewer's decision on a pending
// approval task and drives the invoice to its terminal routing state.
type ApprovalDecisionWorker struct {
	invoices  storage.InvoiceStore
	approvals storage.ApprovalStore
	machine   *workflowsvc.Machine
	sla       *slamgr.Manager
	auditLog  *auditsvc.Logger
	eventBus  *eventbus.Bus
	log       *logging.Logger
	now       func() time.Time
}

func NewApprovalDecisionWorker(invoices storage.InvoiceStore, approvals storage.ApprovalStore, machine *workflowsvc.Machine, slaMgr *slamgr.Manager, auditLog *auditsvc.Logger, eventBus *eventbus.Bus, log *logging.Logger) *ApprovalDecisionWorker {
	return &ApprovalDecisionWorker{
		invoices: invoices, approvals: approvals, machine: machine, sla: slaMgr,
		auditLog: auditLog, eventBus: eventBus, log: log, now: time.Now,
	}
}

// Handle processes an approval.completed message. Data carries task_id,
// invoice_id, decision ("approve"/"reject"), actor, and comments.
func (w *ApprovalDecisionWorker) Handle(ctx context.Context, msg bus.Message) error {
	invoiceID, _ := msg.Data["invoice_id"].(string)
	taskID, _ := msg.Data["task_id"].(string)
	decision, _ := msg.Data["decision"].(string)
	actor, _ := msg.Data["actor"].(string)
	comments, _ := msg.Data["comments"].(string)
	if invoiceID == "" || taskID == "" {
		return errors.MissingField("invoice_id/task_id")
	}

	inv, err := w.invoices.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.State != invoice.StateReviewPending {
		return nil // already decided — idempotent no-op.
	}

	task, err := w.approvals.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	now := w.now()
	task.DecisionActor = actor
	task.DecisionAt = now
	task.Comments = comments
	task.Action = decision

	var action workflow.Action
	var eventType bus.EventType
	var nextState invoice.State
	switch decision {
	case "reject":
		task.Status = approval.StatusRejected
		action = workflow.ActionReject
		eventType = bus.EventInvoiceRejected
		nextState = invoice.StateRejected
	default:
		task.Status = approval.StatusApproved
		action = workflow.ActionApprove
		eventType = bus.EventInvoiceApproved
		nextState = invoice.StateApproved
	}

	if _, err := w.approvals.Update(ctx, task); err != nil {
		return err
	}
	if _, err := w.machine.Fire(ctx, invoiceID, action, actor, comments, nil); err != nil {
		return err
	}
	inv.State = nextState
	if _, err := w.invoices.Update(ctx, inv); err != nil {
		return err
	}
	if _, err := w.sla.Complete(ctx, invoiceID); err != nil {
		return err
	}
	if _, err := w.auditLog.Append(ctx, audit.Event{
		Type: audit.EventApprovalDecision, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
		Actor: actor, Action: decision, Details: map[string]any{"task_id": taskID, "comments": comments},
	}); err != nil {
		w.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}

	return publish(ctx, w.eventBus, eventType, map[string]any{"invoice_id": invoiceID, "auto": false}, bus.PriorityNormal, msg.CorrelationID, w.now)
}

// Descriptor advertises ApprovalDecisionWorker's placement for startup logging.
func (w *ApprovalDecisionWorker) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "approval_decision", Domain: "invoice_pipeline", Layer: core.LayerEngine, Capabilities: []string{"approval_recording"}}
}
