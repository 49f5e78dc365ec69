// Package duplicate holds the duplicate-match result type. The detection
// algorithm and the index storage live in internal/app/services/duplicate
// and internal/app/storage, respectively.
package duplicate

import "time"

// MatchType names which of the three detection strategies produced a match.
type MatchType string

const (
	MatchExactHash           MatchType = "exact_hash"
	MatchVendorInvoiceNumber MatchType = "vendor_invoice_number"
	MatchSimilarAmount       MatchType = "similar_amount"
)

// Match is one candidate duplicate, ranked by Confidence descending.
type Match struct {
	InvoiceID  string
	MatchType  MatchType
	Confidence float64
	Reason     string
}

// RecentInvoice is one entry in the per-vendor recent-invoice index used for
// the similar_amount strategy.
type RecentInvoice struct {
	InvoiceID string
	Amount    float64
	At        time.Time
}
