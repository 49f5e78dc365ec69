// Package orchestrator binds the event bus, storage, workflow state
// machine, and stage workers into the single entry point external callers
// use (component C8). It owns per-invoice state-transition ordering and the
// cross-component invariants that don't belong to any one stage worker.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/metrics"
	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
	core "github.com/R3E-Network/service_layer/internal/app/core/service"
)

// UploadRequest is the input to Upload: a newly received document, already
// validated and stored by the ingress layer (extension/size/magic-byte
// checks happen outside the core).
type UploadRequest struct {
	TenantID    string
	DocumentID  string
	Filename    string
	SizeBytes   int64
	StoragePath string
	ContentHash string
	VendorID    string
	CreatedBy   string
}

// invoiceLocks hands out one *sync.Mutex per invoice id, so every stage
// advancement for a given invoice is serialized regardless of which
// consumer goroutine picked up the message — the per-invoice lock required
// by the concurrency model. Entries are never removed: the lifetime of the
// lock set is bounded by distinct invoice ids ever seen, which is
// acceptable for the process lifetime of an orchestrator instance.
type invoiceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *invoiceLocks) get(invoiceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[invoiceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[invoiceID] = m
	}
	return m
}

// StageHandler is implemented by every stage worker this package dispatches
// to. It matches eventbus.Handler's shape exactly so workers need no
// orchestrator-specific adapter.
type StageHandler func(ctx context.Context, msg bus.Message) error

// Orchestrator is the single writer for invoice state and the single
// dispatch point between the bus and the stage workers.
type Orchestrator struct {
	invoices storage.InvoiceStore
	machine  *workflowsvc.Machine
	auditLog *auditsvc.Logger
	eventBus *eventbus.Bus
	log      *logging.Logger
	locks    *invoiceLocks
	now      func() time.Time
	metrics  *metrics.Metrics
}

// Option customizes an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithMetrics attaches the process's Prometheus collectors so every
// dispatched stage records its outcome and duration. Omit in tests that
// don't care about metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(invoices storage.InvoiceStore, machine *workflowsvc.Machine, auditLog *auditsvc.Logger, eventBus *eventbus.Bus, log *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoices: invoices, machine: machine, auditLog: auditLog, eventBus: eventBus, log: log,
		locks: newInvoiceLocks(), now: time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Upload registers a newly uploaded document as an invoice in the UPLOADED
// state and kicks off the pipeline by publishing invoice.uploaded. The
// returned invoice carries the correlation id used for every subsequent
// message in this invoice's lifetime (the invoice id itself).
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) (invoice.Invoice, error) {
	if req.ContentHash == "" {
		return invoice.Invoice{}, errors.MissingField("content_hash")
	}

	inv := invoice.Invoice{
		TenantID: req.TenantID, DocumentID: req.DocumentID, Filename: req.Filename,
		SizeBytes: req.SizeBytes, ContentHash: req.ContentHash, VendorID: req.VendorID,
		CreatedBy: req.CreatedBy, State: invoice.StateUploaded,
	}
	inv, err := o.invoices.Create(ctx, inv)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if _, err := o.machine.Init(ctx, inv.ID); err != nil {
		return invoice.Invoice{}, err
	}
	if _, err := o.auditLog.Append(ctx, audit.Event{
		Type: audit.EventInvoiceCreated, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: inv.ID,
		Actor: req.CreatedBy, Action: "upload",
	}); err != nil {
		o.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": inv.ID})
	}

	msg := bus.NewMessage(uuid.NewString(), bus.EventInvoiceUploaded, map[string]any{
		"invoice_id": inv.ID, "document_id": req.DocumentID, "filename": req.Filename,
		"size": req.SizeBytes, "storage_path": req.StoragePath, "vendor_id": req.VendorID,
	}, bus.PriorityNormal, inv.ID, o.now())
	if err := o.eventBus.Publish(ctx, msg); err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

// Get looks up one invoice by id.
func (o *Orchestrator) Get(ctx context.Context, invoiceID string) (invoice.Invoice, error) {
	return o.invoices.Get(ctx, invoiceID)
}

// List returns up to limit invoices for tenantID, optionally filtered by
// state (the zero value matches every state). limit is clamped to the
// service-wide page size bounds.
func (o *Orchestrator) List(ctx context.Context, tenantID string, state invoice.State, limit int) ([]invoice.Invoice, error) {
	limit = core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
	return o.invoices.List(ctx, tenantID, state, limit)
}

// Dispatch wraps a stage handler with the per-invoice lock and the
// permanent/transient failure split from the failure-handling design: a
// Transient error is returned unchanged so the bus retries it; any other
// error transitions the invoice to ERROR and publishes system.error before
// being returned (so the bus still records the failed delivery).
func (o *Orchestrator) Dispatch(handler StageHandler) eventbus.Handler {
	return func(ctx context.Context, msg bus.Message) error {
		invoiceID, _ := msg.Data["invoice_id"].(string)
		if invoiceID == "" {
			return handler(ctx, msg)
		}

		lock := o.locks.get(invoiceID)
		lock.Lock()
		defer lock.Unlock()

		done := core.StartObservation(ctx, o.stageHooks(string(msg.EventType)), nil)
		err := handler(ctx, msg)
		done(err)
		if err == nil {
			return nil
		}
		if errors.IsRetryable(err) {
			return err
		}
		o.failPermanently(ctx, invoiceID, msg.CorrelationID, err)
		return err
	}
}

// stageHooks reports each dispatched handler's outcome and duration under
// the event type it was subscribed to. A nil metrics instance (as in tests
// that don't construct one) makes this a no-op.
func (o *Orchestrator) stageHooks(stage string) core.ObservationHooks {
	if o.metrics == nil {
		return core.NoopObservationHooks
	}
	return core.ObservationHooks{
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			o.metrics.StageProcessedTotal.WithLabelValues("invoiced", stage, status).Inc()
			o.metrics.StageDuration.WithLabelValues("invoiced", stage).Observe(duration.Seconds())
		},
	}
}

// failPermanently transitions invoiceID to ERROR and publishes system.error.
// Transition/publish failures are logged, not returned — the original stage
// error is always what the caller sees.
func (o *Orchestrator) failPermanently(ctx context.Context, invoiceID, correlationID string, cause error) {
	inv, getErr := o.invoices.Get(ctx, invoiceID)
	if getErr != nil {
		o.log.Error(ctx, "failPermanently: invoice lookup failed", getErr, map[string]interface{}{"invoice_id": invoiceID})
		return
	}
	if workflowsvc.IsTerminal(inv.State) {
		return
	}
	if o.machine.CanFire(inv.State, workflow.ActionReportError) {
		if _, err := o.machine.Fire(ctx, invoiceID, workflow.ActionReportError, "system", cause.Error(), nil); err != nil {
			o.log.Error(ctx, "failPermanently: transition to error failed", err, map[string]interface{}{"invoice_id": invoiceID})
		}
		inv.State = invoice.StateError
		if _, err := o.invoices.Update(ctx, inv); err != nil {
			o.log.Error(ctx, "failPermanently: invoice update failed", err, map[string]interface{}{"invoice_id": invoiceID})
		}
	}

	if _, err := o.auditLog.Append(ctx, audit.Event{
		Type: audit.EventSystemError, TenantID: inv.TenantID, ResourceType: "invoice", ResourceID: invoiceID,
		Action: "stage_failure", Details: map[string]any{"error": cause.Error(), "kind": string(errors.GetKind(cause))},
	}); err != nil {
		o.log.Error(ctx, "audit append failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}

	msg := bus.NewMessage(uuid.NewString(), bus.EventSystemError, map[string]any{
		"invoice_id": invoiceID, "error": cause.Error(),
	}, bus.PriorityHigh, correlationID, o.now())
	if err := o.eventBus.Publish(ctx, msg); err != nil {
		o.log.Error(ctx, "system.error publish failed", err, map[string]interface{}{"invoice_id": invoiceID})
	}
}

// Subscribe registers handler, wrapped by Dispatch, for eventType.
func (o *Orchestrator) Subscribe(eventType bus.EventType, handler StageHandler) {
	o.eventBus.Subscribe(eventType, o.Dispatch(handler))
}
