// Package pomatch holds the purchase order entity and the variance/match
// result types produced by the PO matcher.
package pomatch

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is the counterpart record an invoice is matched against.
type PurchaseOrder struct {
	ID         string
	TenantID   string
	PONumber   string
	VendorName string
	Currency   string
	Total      decimal.Decimal
	Tax        decimal.Decimal
	LineItems  []POLineItem
	CreatedAt  time.Time
}

// POLineItem is one line on a purchase order.
type POLineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Severity classifies a detected variance.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Variance is one discrepancy between an invoice field and its PO
// counterpart.
type Variance struct {
	Field      string
	Severity   Severity
	Expected   string
	Actual     string
	Difference decimal.Decimal
}

// Status is the outcome of a PO match attempt.
type Status string

const (
	StatusMatched    Status = "matched"
	StatusPartial    Status = "partial"
	StatusMismatch   Status = "mismatch"
	StatusNoPO       Status = "no_po"
	StatusPONotFound Status = "po_not_found"
)

// LineMatch pairs one invoice line index with one PO line index.
type LineMatch struct {
	InvoiceLineIndex int
	POLineIndex      int
	QuantityVariance *Variance
	PriceVariance    *Variance
}

// MatchResult is the full output of matching one invoice against a PO.
type MatchResult struct {
	Status              Status
	PO                  *PurchaseOrder
	HeaderVariances      []Variance
	LineMatches          []LineMatch
	UnmatchedInvoiceLines []int
	UnmatchedPOLines      []int
	TotalVarianceAmount  decimal.Decimal
	Confidence           float64
	Recommendation       string
}
