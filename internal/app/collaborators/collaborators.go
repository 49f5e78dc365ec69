// Package collaborators names the external systems the stage workers call
// out to (OCR, field extraction, summarization, blob storage, payment/ERP).
// Only interfaces live here — concrete adapters are out of scope (spec §6
// Non-goals); production wiring supplies its own implementations.
package collaborators

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
)

// BoundingBox is a word's location on the source page, normalized to
// [0,1]x[0,1].
type BoundingBox struct {
	X, Y, Width, Height float64
}

// OCRResult is the output of running optical character recognition over one
// uploaded document.
type OCRResult struct {
	FullText            string
	PerWordConfidences  []float64
	BoundingBoxes       []BoundingBox
	OverallConfidence   float64
}

// OCR recognizes text from a scanned invoice image or PDF.
type OCR interface {
	Recognize(ctx context.Context, fileBytes []byte, language string) (OCRResult, error)
}

// ExtractedFields is the structured data a field-extraction call derives
// from OCR text.
type ExtractedFields struct {
	VendorName    string
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       time.Time
	PONumber      string
	Subtotal      string
	TaxAmount     string
	TotalAmount   string
	Currency      string
	LineItems     []invoice.LineItem
	PaymentTerms  string
	Confidence    float64
}

// FieldExtractor derives structured invoice fields from OCR text.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (ExtractedFields, error)
}

// Summary is the output of a best-effort natural-language summarization
// call; failure is non-fatal and callers fall back to a template.
type Summary struct {
	Text       string
	Confidence float64
}

// Summarizer produces a role-specific natural-language summary of an
// invoice for a reviewer or approver.
type Summarizer interface {
	Summarize(ctx context.Context, inv invoice.Invoice, role, context string) (Summary, error)
}

// BlobStore persists and retrieves the raw uploaded document bytes, keyed
// as "[tenant/]YYYY/MM/DD/<document_id>.<ext>".
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (path string, err error)
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Delete(ctx context.Context, key string) (ok bool, err error)
	Exists(ctx context.Context, key string) (bool, error)
}

// PaymentResult is returned by PaymentAdapter.CreatePayment.
type PaymentResult struct {
	TransactionID string
	Status        string
}

// PaymentAdapter initiates payment once an invoice is approved.
type PaymentAdapter interface {
	CreatePayment(ctx context.Context, inv invoice.Invoice) (PaymentResult, error)
}

// ERPAdapter synchronizes invoices with an external accounting/ERP system.
type ERPAdapter interface {
	SyncInvoice(ctx context.Context, inv invoice.Invoice) error
	PullInvoice(ctx context.Context, externalID string) (invoice.Invoice, error)
}
