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
	"github.com/R3E-Network/service_layer/internal/app/domain/sla"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	"github.com/R3E-Network/service_layer/internal/app/services/risk"
	slamgr "github.com/R3E-Network/service_layer/internal/app/services/slamanager"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// RoutingWorker evaluates the approval rules engine against a validated
// invoice and either auto-decides it or opens an approval task.
type RoutingWorker struct {
	invoices  storage.InvoiceStore
	vendors   storage.VendorStore
	approvals storage.ApprovalStore
	scorer    *risk.Scorer
	engine    *risk.RuleEngine
	machine   *workflowsvc.Machine
	sla       *slamgr.Manager
	auditLog  *auditsvc.Logger
	eventBus  *eventbus.Bus
	log       *logging.Logger
	now       func() time.Time
}

func NewRoutingWorker(invoices storage.InvoiceStore, vendors storage.VendorStore, approvals storage.ApprovalStore, scorer *risk.Scorer, engine *risk.RuleEngine, machine *workflowsvc.Machine, slaMgr *slamgr.Manager, auditLog *auditsvc.Logger, eventBus *eventbus.Bus, log *logging.Logger) *RoutingWorker {
	return &RoutingWorker{
		invoices: invoices, vendors: vendors, approvals: approvals, scorer: scorer, engine: engine,
		machine: machine, sla: slaMgr, auditLog: auditLog, eventBus: eventBus, log: log, now: time.Now,
	}
}

// Handle processes an invoice.processed message whose stage is "validated".
func (w *RoutingWorker) Handle(ctx context.Context, msg bus.Message) error {
	invoiceID, _ := msg.Data["invoice_id"].(string)
	if invoiceID == "" {
		return errors.MissingField("invoice_id")
	}

	inv, err := w.invoices.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.State != invoice.StateValidated {
		return nil // already routed — idempotent no-op.
	}

	vendorProfile, err := lookupVendorProfile(ctx, w.vendors, inv.TenantID, inv.VendorName)
	if err != nil {
		return err
	}
	assessment := w.scorer.Score(inv, vendorProfile, inv.HasAnomaly("duplicate_suspected"))
	tree := risk.BuildFieldTree(inv, vendorProfile, &assessment)
	actions := w.engine.Evaluate(tree)

	decision, approvers, priority := classifyActions(actions)

	if _, err := w.auditLog.Append(ctx, audit.Event{
		Type: audit.EventApprovalDecision, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
		Action: "route", Details: map[string]any{"decision": decision, "action_count": len(actions)},
	}); err != nil {
		w.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}

	switch decision {
	case "auto_approve":
		if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionApprove, "system", "auto-approved by rules engine", nil); err != nil {
			return err
		}
		inv.State = invoice.StateApproved
		if _, err := w.invoices.Update(ctx, inv); err != nil {
			return err
		}
		return publish(ctx, w.eventBus, bus.EventInvoiceApproved, map[string]any{"invoice_id": invoiceID, "auto": true}, bus.PriorityNormal, msg.CorrelationID, w.now)

	case "auto_reject":
		if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionReject, "system", "auto-rejected by rules engine", nil); err != nil {
			return err
		}
		inv.State = invoice.StateRejected
		if _, err := w.invoices.Update(ctx, inv); err != nil {
			return err
		}
		return publish(ctx, w.eventBus, bus.EventInvoiceRejected, map[string]any{"invoice_id": invoiceID, "auto": true}, bus.PriorityNormal, msg.CorrelationID, w.now)

	default:
		if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionRequestReview, "system", "", nil); err != nil {
			return err
		}
		inv.State = invoice.StateReviewPending
		if _, err := w.invoices.Update(ctx, inv); err != nil {
			return err
		}

		task := approval.Task{
			InvoiceID: invoiceID, TenantID: inv.TenantID, Status: approval.StatusPending,
			Priority: priority, AssignedRole: firstOrDefault(approvers, "finance_manager"),
		}
		if _, err := w.approvals.Create(ctx, task); err != nil {
			return err
		}
		if _, err := w.sla.Start(ctx, invoiceID, sla.StageReview); err != nil {
			return err
		}

		if err := publish(ctx, w.eventBus, bus.EventApprovalRequested, map[string]any{"invoice_id": invoiceID}, bus.PriorityNormal, msg.CorrelationID, w.now); err != nil {
			return err
		}
		return publish(ctx, w.eventBus, bus.EventApprovalAssigned, map[string]any{"invoice_id": invoiceID, "role": task.AssignedRole}, bus.PriorityNormal, msg.CorrelationID, w.now)
	}
}

// classifyActions reduces a rule engine's emitted actions to a routing
// decision, the roles/actors to assign the review to, and a priority.
func classifyActions(actions []approval.RuleAction) (decision string, approvers []string, priority approval.Priority) {
	priority = approval.PriorityNormal
	for _, a := range actions {
		switch a.Type {
		case approval.ActionAutoApprove:
			return "auto_approve", approvers, priority
		case approval.ActionAutoReject:
			return "auto_reject", approvers, priority
		case approval.ActionRequireApproval, approval.ActionAssignTo:
			if a.Param != "" {
				approvers = append(approvers, a.Param)
			}
		case approval.ActionSetPriority:
			priority = approval.Priority(a.Param)
		case approval.ActionEscalate:
			priority = approval.PriorityUrgent
		}
	}
	return "require_approval", approvers, priority
}

func firstOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

// Descriptor advertises RoutingWorker's placement for startup logging.
func (w *RoutingWorker) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "routing", Domain: "invoice_pipeline", Layer: core.LayerEngine, Capabilities: []string{"rule_evaluation", "approval_routing"}}
}
