// Package memory provides in-memory repository implementations used by
// tests and by cmd/invoiced when no database DSN is configured.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/internal/app/domain/duplicate"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/pomatch"
	"github.com/R3E-Network/service_layer/internal/app/domain/sla"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

// InvoiceStore is an in-memory implementation of storage.InvoiceStore.
type InvoiceStore struct {
	mu       sync.RWMutex
	invoices map[string]invoice.Invoice
}

// NewInvoiceStore constructs an empty InvoiceStore.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]invoice.Invoice)}
}

func (s *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *InvoiceStore) Update(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoices[inv.ID]
	if !ok {
		return invoice.Invoice{}, errors.InvoiceNotFound(inv.ID)
	}
	inv.CreatedAt = existing.CreatedAt
	inv.UpdatedAt = time.Now().UTC()
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *InvoiceStore) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return invoice.Invoice{}, errors.InvoiceNotFound(id)
	}
	return inv, nil
}

func (s *InvoiceStore) GetByContentHash(ctx context.Context, tenantID, contentHash string) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invoice.Invoice
	for _, inv := range s.invoices {
		if inv.TenantID == tenantID && inv.ContentHash == contentHash {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InvoiceStore) List(ctx context.Context, tenantID string, state invoice.State, limit int) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invoice.Invoice
	for _, inv := range s.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if state != "" && inv.State != state {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// VendorStore is an in-memory implementation of storage.VendorStore.
type VendorStore struct {
	mu       sync.RWMutex
	profiles map[string]vendor.Profile
	byKey    map[string]string // tenantID|vendorKey -> profile id
}

func NewVendorStore() *VendorStore {
	return &VendorStore{
		profiles: make(map[string]vendor.Profile),
		byKey:    make(map[string]string),
	}
}

func vendorKeyIndex(tenantID, key string) string {
	return tenantID + "|" + strings.ToLower(key)
}

func (s *VendorStore) Upsert(ctx context.Context, profile vendor.Profile) (vendor.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	s.profiles[profile.ID] = profile
	s.byKey[vendorKeyIndex(profile.TenantID, profile.Name)] = profile.ID
	return profile, nil
}

func (s *VendorStore) Get(ctx context.Context, id string) (vendor.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return vendor.Profile{}, errors.VendorNotFound(id)
	}
	return p, nil
}

func (s *VendorStore) GetByTenantAndKey(ctx context.Context, tenantID, vendorKey string) (vendor.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[vendorKeyIndex(tenantID, vendorKey)]
	if !ok {
		return vendor.Profile{}, errors.VendorNotFound(vendorKey)
	}
	return s.profiles[id], nil
}

// ApprovalStore is an in-memory implementation of storage.ApprovalStore.
type ApprovalStore struct {
	mu    sync.RWMutex
	tasks map[string]approval.Task
}

func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{tasks: make(map[string]approval.Task)}
}

func (s *ApprovalStore) Create(ctx context.Context, task approval.Task) (approval.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = task
	return task, nil
}

func (s *ApprovalStore) Update(ctx context.Context, task approval.Task) (approval.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tasks[task.ID]
	if !ok {
		return approval.Task{}, errors.TaskNotFound(task.ID)
	}
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = time.Now().UTC()
	s.tasks[task.ID] = task
	return task, nil
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (approval.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return approval.Task{}, errors.TaskNotFound(id)
	}
	return t, nil
}

func (s *ApprovalStore) GetPendingForInvoice(ctx context.Context, invoiceID string) (*approval.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.InvoiceID == invoiceID && t.Status == approval.StatusPending {
			tCopy := t
			return &tCopy, nil
		}
	}
	return nil, nil
}

func (s *ApprovalStore) ListByStatus(ctx context.Context, tenantID string, status approval.Status, limit int) ([]approval.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []approval.Task
	for _, t := range s.tasks {
		if t.TenantID == tenantID && t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WorkflowStore is an in-memory implementation of storage.WorkflowStore.
type WorkflowStore struct {
	mu      sync.RWMutex
	records map[string]workflow.Record
}

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{records: make(map[string]workflow.Record)}
}

func (s *WorkflowStore) Get(ctx context.Context, invoiceID string) (workflow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[invoiceID]
	if !ok {
		return workflow.Record{}, errors.WorkflowNotFound(invoiceID)
	}
	return r, nil
}

func (s *WorkflowStore) Save(ctx context.Context, record workflow.Record) (workflow.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.InvoiceID] = record
	return record, nil
}

// SLAStore is an in-memory implementation of storage.SLAStore.
type SLAStore struct {
	mu      sync.RWMutex
	records map[string]sla.Record
}

func NewSLAStore() *SLAStore {
	return &SLAStore{records: make(map[string]sla.Record)}
}

func (s *SLAStore) Upsert(ctx context.Context, record sla.Record) (sla.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.InvoiceID] = record
	return record, nil
}

func (s *SLAStore) Get(ctx context.Context, invoiceID string) (sla.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[invoiceID]
	if !ok {
		return sla.Record{}, errors.New(errors.KindNotFound, errors.ErrCodeInvoiceNotFound, fmt.Sprintf("sla record not found for invoice %s", invoiceID), http.StatusNotFound)
	}
	return r, nil
}

func (s *SLAStore) Delete(ctx context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, invoiceID)
	return nil
}

func (s *SLAStore) ListActive(ctx context.Context, tenantID string) ([]sla.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sla.Record
	for _, r := range s.records {
		if r.Status != sla.StatusExpired {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu     sync.RWMutex
	events []audit.Event
	byID   map[string]audit.Event
}

func NewAuditStore() *AuditStore {
	return &AuditStore{byID: make(map[string]audit.Event)}
}

func (s *AuditStore) Append(ctx context.Context, event audit.Event) (audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	s.byID[event.ID] = event
	return event, nil
}

func (s *AuditStore) Get(ctx context.Context, id string) (audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return audit.Event{}, errors.New(errors.KindNotFound, errors.ErrCodeInvoiceNotFound, fmt.Sprintf("audit event %s not found", id), http.StatusNotFound)
	}
	return e, nil
}

func (s *AuditStore) Query(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if q.TenantID != "" && e.TenantID != q.TenantID {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.Actor != "" && e.Actor != q.Actor {
			continue
		}
		if q.ResourceType != "" && e.ResourceType != q.ResourceType {
			continue
		}
		if q.ResourceID != "" && e.ResourceID != q.ResourceID {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DuplicateIndexStore is an in-memory implementation of
// storage.DuplicateIndexStore.
type DuplicateIndexStore struct {
	mu           sync.RWMutex
	byHash       map[string][]string
	byVendorInv  map[string][]string
	recentVendor map[string][]duplicate.RecentInvoice
}

func NewDuplicateIndexStore() *DuplicateIndexStore {
	return &DuplicateIndexStore{
		byHash:       make(map[string][]string),
		byVendorInv:  make(map[string][]string),
		recentVendor: make(map[string][]duplicate.RecentInvoice),
	}
}

func hashKey(tenantID, contentHash string) string { return tenantID + "|" + contentHash }
func vendorInvKey(tenantID, vendorKey, invoiceNumber string) string {
	return tenantID + "|" + strings.ToLower(vendorKey) + "|" + strings.ToLower(invoiceNumber)
}
func recentVendorKey(tenantID, vendorKeyLower string) string { return tenantID + "|" + vendorKeyLower }

func (s *DuplicateIndexStore) RegisterByHash(ctx context.Context, tenantID, contentHash, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := hashKey(tenantID, contentHash)
	s.byHash[k] = append(s.byHash[k], invoiceID)
	return nil
}

func (s *DuplicateIndexStore) LookupByHash(ctx context.Context, tenantID, contentHash string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.byHash[hashKey(tenantID, contentHash)]...), nil
}

func (s *DuplicateIndexStore) RegisterByVendorInvoiceNumber(ctx context.Context, tenantID, vendorKey, invoiceNumber, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := vendorInvKey(tenantID, vendorKey, invoiceNumber)
	s.byVendorInv[k] = append(s.byVendorInv[k], invoiceID)
	return nil
}

func (s *DuplicateIndexStore) LookupByVendorInvoiceNumber(ctx context.Context, tenantID, vendorKey, invoiceNumber string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.byVendorInv[vendorInvKey(tenantID, vendorKey, invoiceNumber)]...), nil
}

func (s *DuplicateIndexStore) RegisterRecentByVendor(ctx context.Context, tenantID, vendorKeyLower, invoiceID string, amount float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recentVendorKey(tenantID, vendorKeyLower)
	s.recentVendor[k] = append(s.recentVendor[k], duplicate.RecentInvoice{InvoiceID: invoiceID, Amount: amount, At: at})
	return nil
}

func (s *DuplicateIndexStore) LookupRecentByVendor(ctx context.Context, tenantID, vendorKeyLower string, since time.Time) ([]duplicate.RecentInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []duplicate.RecentInvoice
	for _, r := range s.recentVendor[recentVendorKey(tenantID, vendorKeyLower)] {
		if r.At.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// POStore is an in-memory implementation of storage.POStore.
type POStore struct {
	mu  sync.RWMutex
	pos map[string]pomatch.PurchaseOrder // tenantID|number -> PO
	all map[string][]pomatch.PurchaseOrder
}

func NewPOStore() *POStore {
	return &POStore{
		pos: make(map[string]pomatch.PurchaseOrder),
		all: make(map[string][]pomatch.PurchaseOrder),
	}
}

// Seed inserts a PO directly, for tests and fixture loading.
func (s *POStore) Seed(po pomatch.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.poKey(po.TenantID, po.PONumber)
	s.pos[key] = po
	s.all[po.TenantID] = append(s.all[po.TenantID], po)
}

func (s *POStore) poKey(tenantID, number string) string {
	return tenantID + "|" + strings.ToUpper(strings.TrimSpace(number))
}

func (s *POStore) GetByNumber(ctx context.Context, tenantID, normalizedNumber string) (*pomatch.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.pos[s.poKey(tenantID, normalizedNumber)]
	if !ok {
		return nil, nil
	}
	return &po, nil
}

func (s *POStore) ListByTenant(ctx context.Context, tenantID string) ([]pomatch.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pomatch.PurchaseOrder(nil), s.all[tenantID]...), nil
}
