// Package storage defines the repository interfaces the orchestrator and
// stage workers depend on. Two implementations are provided: memory (for
// tests and the in-process fallback) and postgres (durable).
package storage

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/domain/duplicate"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/pomatch"
	"github.com/R3E-Network/service_layer/internal/app/domain/sla"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
)

// InvoiceStore is the single-writer repository for invoices.
type InvoiceStore interface {
	Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	Update(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	Get(ctx context.Context, id string) (invoice.Invoice, error)
	GetByContentHash(ctx context.Context, tenantID, contentHash string) ([]invoice.Invoice, error)
	List(ctx context.Context, tenantID string, state invoice.State, limit int) ([]invoice.Invoice, error)
}

// VendorStore manages vendor statistical profiles.
type VendorStore interface {
	Upsert(ctx context.Context, profile vendor.Profile) (vendor.Profile, error)
	Get(ctx context.Context, id string) (vendor.Profile, error)
	GetByTenantAndKey(ctx context.Context, tenantID, vendorKey string) (vendor.Profile, error)
}

// ApprovalStore manages approval tasks. Invariant enforcement (at most one
// pending task per invoice) is the caller's (orchestrator's) responsibility;
// the store itself is a plain CRUD surface.
type ApprovalStore interface {
	Create(ctx context.Context, task approval.Task) (approval.Task, error)
	Update(ctx context.Context, task approval.Task) (approval.Task, error)
	Get(ctx context.Context, id string) (approval.Task, error)
	GetPendingForInvoice(ctx context.Context, invoiceID string) (*approval.Task, error)
	ListByStatus(ctx context.Context, tenantID string, status approval.Status, limit int) ([]approval.Task, error)
}

// WorkflowStore persists per-invoice workflow records.
type WorkflowStore interface {
	Get(ctx context.Context, invoiceID string) (workflow.Record, error)
	Save(ctx context.Context, record workflow.Record) (workflow.Record, error)
}

// SLAStore persists SLA records, keyed by invoice id.
type SLAStore interface {
	Upsert(ctx context.Context, record sla.Record) (sla.Record, error)
	Get(ctx context.Context, invoiceID string) (sla.Record, error)
	Delete(ctx context.Context, invoiceID string) error
	ListActive(ctx context.Context, tenantID string) ([]sla.Record, error)
}

// AuditStore is the append-only backing store for audit events.
type AuditStore interface {
	Append(ctx context.Context, event audit.Event) (audit.Event, error)
	Get(ctx context.Context, id string) (audit.Event, error)
	Query(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

// DuplicateIndexStore holds the three duplicate-detection indices described
// in spec §3: content hash, vendor+invoice-number, and recent-by-vendor for
// amount/time similarity.
type DuplicateIndexStore interface {
	RegisterByHash(ctx context.Context, tenantID, contentHash, invoiceID string) error
	LookupByHash(ctx context.Context, tenantID, contentHash string) ([]string, error)

	RegisterByVendorInvoiceNumber(ctx context.Context, tenantID, vendorKey, invoiceNumber, invoiceID string) error
	LookupByVendorInvoiceNumber(ctx context.Context, tenantID, vendorKey, invoiceNumber string) ([]string, error)

	RegisterRecentByVendor(ctx context.Context, tenantID, vendorKeyLower, invoiceID string, amount float64, at time.Time) error
	LookupRecentByVendor(ctx context.Context, tenantID, vendorKeyLower string, since time.Time) ([]duplicate.RecentInvoice, error)
}

// POStore resolves purchase orders by normalized identifier, with a fallback
// scan for fuzzy matching.
type POStore interface {
	GetByNumber(ctx context.Context, tenantID, normalizedNumber string) (*pomatch.PurchaseOrder, error)
	ListByTenant(ctx context.Context, tenantID string) ([]pomatch.PurchaseOrder, error)
}
