package stageworkers

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	core "github.com/R3E-Network/service_layer/internal/app/core/service"
	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	"github.com/R3E-Network/service_layer/internal/app/services/duplicate"
	"github.com/R3E-Network/service_layer/internal/app/services/pomatch"
	"github.com/R3E-Network/service_layer/internal/app/services/risk"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// ValidationScoringWorker runs duplicate detection, risk scoring, and PO
// matching, then records their outputs onto the invoice.
type ValidationScoringWorker struct {
	invoices  storage.InvoiceStore
	vendors   storage.VendorStore
	detector  *duplicate.Detector
	scorer    *risk.Scorer
	matcher   *pomatch.Matcher
	machine   *workflowsvc.Machine
	auditLog  *auditsvc.Logger
	eventBus  *eventbus.Bus
	log       *logging.Logger
	now       func() time.Time
}

func NewValidationScoringWorker(invoices storage.InvoiceStore, vendors storage.VendorStore, detector *duplicate.Detector, scorer *risk.Scorer, matcher *pomatch.Matcher, machine *workflowsvc.Machine, auditLog *auditsvc.Logger, eventBus *eventbus.Bus, log *logging.Logger) *ValidationScoringWorker {
	return &ValidationScoringWorker{
		invoices: invoices, vendors: vendors, detector: detector, scorer: scorer, matcher: matcher,
		machine: machine, auditLog: auditLog, eventBus: eventBus, log: log, now: time.Now,
	}
}

// Handle processes an invoice.processed message.
func (w *ValidationScoringWorker) Handle(ctx context.Context, msg bus.Message) error {
	invoiceID, _ := msg.Data["invoice_id"].(string)
	if invoiceID == "" {
		return errors.MissingField("invoice_id")
	}

	inv, err := w.invoices.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.State != invoice.StateExtracted {
		return nil // already validated or moved on — idempotent no-op.
	}

	matches, err := w.detector.Detect(ctx, inv)
	if err != nil {
		return err
	}
	duplicateSignal := false
	if len(matches) > 0 {
		duplicateSignal = true
		inv.AnomalyTags = appendUniqueTag(inv.AnomalyTags, "duplicate_suspected")
		if _, err := w.auditLog.Append(ctx, audit.Event{
			Type: audit.EventDuplicateDetected, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
			Action: "duplicate_check", Details: map[string]any{"match_count": len(matches), "top_confidence": matches[0].Confidence},
		}); err != nil {
			w.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
		}
	}

	vendorProfile, err := lookupVendorProfile(ctx, w.vendors, inv.TenantID, inv.VendorName)
	if err != nil {
		return err
	}

	assessment := w.scorer.Score(inv, vendorProfile, duplicateSignal)
	inv.RiskScore = assessment.OverallScore
	for _, ind := range assessment.Indicators {
		inv.AnomalyTags = appendUniqueTag(inv.AnomalyTags, string(ind.Factor))
	}
	if _, err := w.auditLog.Append(ctx, audit.Event{
		Type: audit.EventRiskScored, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
		Action: "risk_score", Details: map[string]any{"overall_score": assessment.OverallScore, "level": string(assessment.Level)},
	}); err != nil {
		w.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}

	matchResult, err := w.matcher.Match(ctx, inv)
	if err != nil {
		return err
	}
	if _, err := w.auditLog.Append(ctx, audit.Event{
		Type: audit.EventPOMatched, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
		Action: "po_match", Details: map[string]any{"status": string(matchResult.Status), "confidence": matchResult.Confidence},
	}); err != nil {
		w.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}

	if err := w.detector.Register(ctx, inv); err != nil {
		return err
	}

	if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionValidate, "system", "", nil); err != nil {
		return err
	}
	inv.State = invoice.StateValidated
	if _, err := w.invoices.Update(ctx, inv); err != nil {
		return err
	}

	return publish(ctx, w.eventBus, bus.EventInvoiceProcessed, map[string]any{"invoice_id": invoiceID, "stage": "validated"}, bus.PriorityNormal, msg.CorrelationID, w.now)
}

func appendUniqueTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

// Descriptor advertises ValidationScoringWorker's placement for startup logging.
func (w *ValidationScoringWorker) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "validate_score", Domain: "invoice_pipeline", Layer: core.LayerEngine, Capabilities: []string{"duplicate_detection", "risk_scoring", "po_matching"}}
}
