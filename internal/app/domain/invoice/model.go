// Package invoice holds the central entity of the processing pipeline: the
// Invoice itself, its line items, and the lifecycle states it moves through.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the invoice lifecycle state. Transitions are owned exclusively by
// the workflow state machine (internal/app/services/workflow).
type State string

const (
	StateUploaded       State = "uploaded"
	StateProcessing     State = "processing"
	StateOCRComplete    State = "ocr_complete"
	StateExtracted      State = "extracted"
	StateValidated      State = "validated"
	StateReviewPending  State = "review_pending"
	StateApproved       State = "approved"
	StateRejected       State = "rejected"
	StatePaymentPending State = "payment_pending"
	StatePaid           State = "paid"
	StateArchived       State = "archived"
	StateError          State = "error"
)

// LineItem is one billed item on an invoice.
type LineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	TaxRate     *decimal.Decimal
}

// Invoice is the central entity: an uploaded document tracked through OCR,
// extraction, risk scoring, PO matching, approval, and payment.
//
// ID is immutable once assigned. State transitions only via the workflow
// state machine. ContentHash (64 hex chars, sha256 of the source bytes) is
// set at upload and uniquely identifies the source document's bytes.
type Invoice struct {
	ID         string
	DocumentID string
	TenantID   string
	State      State

	VendorID      string
	VendorName    string
	VendorAddress string

	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       time.Time
	Currency      string

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal

	LineItems []LineItem

	PONumber string

	RiskScore            float64
	AnomalyTags          []string
	ExtractionConfidence float64

	ContentHash string
	Filename    string
	SizeBytes   int64

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// TotalsBalance reports whether Total equals Subtotal+Tax within the given
// rounding tolerance (currency-unit absolute difference).
func (i Invoice) TotalsBalance(tolerance decimal.Decimal) bool {
	expected := i.Subtotal.Add(i.Tax)
	diff := expected.Sub(i.Total).Abs()
	return diff.LessThanOrEqual(tolerance)
}

// HasAnomaly reports whether the given tag is already recorded.
func (i Invoice) HasAnomaly(tag string) bool {
	for _, t := range i.AnomalyTags {
		if t == tag {
			return true
		}
	}
	return false
}
