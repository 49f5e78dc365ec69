// Package stageworkers implements the four pipeline stage workers
// (component C7): OCR+Extract, Validation+Scoring, Routing, and Approval
// decision. Each subscribes to one bus event type and publishes its outcome
// as an event (Validation+Scoring and Routing both consume
// invoice.processed, and Validation+Scoring re-publishes it);
// all are stateless, keyed only by invoice id + stage, so redelivery is
// always safe.
package stageworkers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/resilience"
	"github.com/R3E-Network/service_layer/internal/app/collaborators"
	core "github.com/R3E-Network/service_layer/internal/app/core/service"
	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// collaboratorRetryConfig governs retries against the OCR and field
// extraction collaborators, which fail transiently far more often than
// the storage layer.
var collaboratorRetryConfig = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
	Jitter:       0.1,
}

// OCRExtractWorker turns an uploaded document into a structured invoice.
type OCRExtractWorker struct {
	invoices       storage.InvoiceStore
	ocr            collaborators.OCR
	extractor      collaborators.FieldExtractor
	blobs          collaborators.BlobStore
	machine        *workflowsvc.Machine
	auditLog       *auditsvc.Logger
	eventBus       *eventbus.Bus
	log            *logging.Logger
	now            func() time.Time
	ocrBreaker     *resilience.CircuitBreaker
	extractBreaker *resilience.CircuitBreaker
}

func NewOCRExtractWorker(invoices storage.InvoiceStore, ocr collaborators.OCR, extractor collaborators.FieldExtractor, blobs collaborators.BlobStore, machine *workflowsvc.Machine, auditLog *auditsvc.Logger, eventBus *eventbus.Bus, log *logging.Logger) *OCRExtractWorker {
	return &OCRExtractWorker{
		invoices: invoices, ocr: ocr, extractor: extractor, blobs: blobs,
		machine: machine, auditLog: auditLog, eventBus: eventBus, log: log, now: time.Now,
		ocrBreaker:     resilience.New(resilience.DefaultServiceCBConfig(log)),
		extractBreaker: resilience.New(resilience.DefaultServiceCBConfig(log)),
	}
}

// Handle processes an invoice.uploaded message.
func (w *OCRExtractWorker) Handle(ctx context.Context, msg bus.Message) error {
	invoiceID, _ := msg.Data["invoice_id"].(string)
	if invoiceID == "" {
		return errors.MissingField("invoice_id")
	}

	inv, err := w.invoices.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.State != invoice.StateProcessing && inv.State != invoice.StateUploaded {
		// already past this stage — idempotent no-op.
		return nil
	}
	if inv.State == invoice.StateUploaded {
		if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionStartProcessing, "system", "", nil); err != nil {
			return err
		}
	}

	documentKey, _ := msg.Data["storage_path"].(string)
	fileBytes, ok, err := w.blobs.Get(ctx, documentKey)
	if err != nil {
		return errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "fetch uploaded document", 502, err)
	}
	if !ok {
		return errors.New(errors.KindInvalidInput, errors.ErrCodeInvalidDocument, "uploaded document not found in storage", 422)
	}

	var ocrResult collaborators.OCRResult
	if retryErr := resilience.Retry(ctx, collaboratorRetryConfig, func() error {
		return w.ocrBreaker.Execute(ctx, func() error {
			var recognizeErr error
			ocrResult, recognizeErr = w.ocr.Recognize(ctx, fileBytes, "en")
			return recognizeErr
		})
	}); retryErr != nil {
		return errors.CollaboratorTimeout("ocr", retryErr)
	}
	if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionCompleteOCR, "system", "", nil); err != nil {
		return err
	}

	var fields collaborators.ExtractedFields
	if retryErr := resilience.Retry(ctx, collaboratorRetryConfig, func() error {
		return w.extractBreaker.Execute(ctx, func() error {
			var extractErr error
			fields, extractErr = w.extractor.Extract(ctx, ocrResult.FullText)
			return extractErr
		})
	}); retryErr != nil {
		return errors.CollaboratorTimeout("field_extraction", retryErr)
	}

	if _, err := w.machine.Fire(ctx, invoiceID, workflow.ActionCompleteExtract, "system", "", nil); err != nil {
		return err
	}

	inv = applyExtractedFields(inv, fields, ocrResult.OverallConfidence)
	inv.State = invoice.StateExtracted
	inv, err = w.invoices.Update(ctx, inv)
	if err != nil {
		return err
	}

	if _, err := w.auditLog.Append(ctx, audit.Event{
		Type: audit.EventInvoiceUpdated, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
		Action: "ocr_extract", Details: map[string]any{"confidence": fields.Confidence},
	}); err != nil {
		w.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}

	return publish(ctx, w.eventBus, bus.EventInvoiceProcessed, map[string]any{"invoice_id": invoiceID}, bus.PriorityNormal, msg.CorrelationID, w.now)
}

func applyExtractedFields(inv invoice.Invoice, fields collaborators.ExtractedFields, ocrConfidence float64) invoice.Invoice {
	inv.VendorName = fields.VendorName
	inv.InvoiceNumber = fields.InvoiceNumber
	inv.InvoiceDate = fields.InvoiceDate
	inv.DueDate = fields.DueDate
	inv.PONumber = fields.PONumber
	inv.Currency = fields.Currency
	inv.LineItems = fields.LineItems

	inv.Subtotal = parseDecimalOrZero(fields.Subtotal)
	inv.Tax = parseDecimalOrZero(fields.TaxAmount)
	inv.Total = parseDecimalOrZero(fields.TotalAmount)

	inv.ExtractionConfidence = fields.Confidence
	if ocrConfidence < fields.Confidence {
		inv.ExtractionConfidence = ocrConfidence
	}
	if inv.ExtractionConfidence < 0.85 && !inv.HasAnomaly("low_extraction_confidence") {
		inv.AnomalyTags = append(inv.AnomalyTags, "low_extraction_confidence")
	}
	return inv
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Descriptor advertises OCRExtractWorker's placement for startup logging.
func (w *OCRExtractWorker) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "ocr_extract", Domain: "invoice_pipeline", Layer: core.LayerAdapter, Capabilities: []string{"ocr", "field_extraction"}}
}
