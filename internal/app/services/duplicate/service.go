// Package duplicate implements the three-strategy duplicate detector
// (component C2): exact content hash, vendor + invoice number, and
// recent-similar-amount, run in that priority order and combined.
package duplicate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/duplicate"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// similarAmountWindow is the lookback window for the recent-similar-amount
// strategy.
const similarAmountWindow = 7 * 24 * time.Hour

// similarAmountThreshold is the maximum relative difference two amounts may
// have and still be considered similar: |a-b|/max(a,b) <= threshold.
const similarAmountThreshold = 0.01

// Detector runs all three strategies against the duplicate indices.
type Detector struct {
	index storage.DuplicateIndexStore
}

func New(index storage.DuplicateIndexStore) *Detector {
	return &Detector{index: index}
}

// Detect returns every duplicate candidate for inv, sorted by confidence
// descending. It never returns an error for malformed input: a strategy
// that cannot run on missing fields simply contributes no matches.
func (d *Detector) Detect(ctx context.Context, inv invoice.Invoice) ([]duplicate.Match, error) {
	var matches []duplicate.Match

	if inv.ContentHash != "" {
		ids, err := d.index.LookupByHash(ctx, inv.TenantID, inv.ContentHash)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id == inv.ID {
				continue
			}
			matches = append(matches, duplicate.Match{
				InvoiceID:  id,
				MatchType:  duplicate.MatchExactHash,
				Confidence: 1.0,
				Reason:     "identical source document content hash",
			})
		}
	}

	vendorKey := normalizeVendorKey(inv.VendorName)
	if vendorKey != "" && inv.InvoiceNumber != "" {
		ids, err := d.index.LookupByVendorInvoiceNumber(ctx, inv.TenantID, vendorKey, inv.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id == inv.ID {
				continue
			}
			matches = append(matches, duplicate.Match{
				InvoiceID:  id,
				MatchType:  duplicate.MatchVendorInvoiceNumber,
				Confidence: 0.95,
				Reason:     "same vendor and invoice number",
			})
		}
	}

	if vendorKey != "" && !inv.Total.IsZero() {
		recent, err := d.index.LookupRecentByVendor(ctx, inv.TenantID, vendorKey, time.Now().Add(-similarAmountWindow))
		if err != nil {
			return nil, err
		}
		amount, _ := inv.Total.Float64()
		for _, r := range recent {
			if r.InvoiceID == inv.ID {
				continue
			}
			if amountSimilarity(amount, r.Amount) <= similarAmountThreshold {
				matches = append(matches, duplicate.Match{
					InvoiceID:  r.InvoiceID,
					MatchType:  duplicate.MatchSimilarAmount,
					Confidence: 0.7,
					Reason:     "similar amount from the same vendor within the last 7 days",
				})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches, nil
}

// Register appends inv to every applicable duplicate index so future
// invoices can be checked against it.
func (d *Detector) Register(ctx context.Context, inv invoice.Invoice) error {
	if inv.ContentHash != "" {
		if err := d.index.RegisterByHash(ctx, inv.TenantID, inv.ContentHash, inv.ID); err != nil {
			return err
		}
	}

	vendorKey := normalizeVendorKey(inv.VendorName)
	if vendorKey != "" && inv.InvoiceNumber != "" {
		if err := d.index.RegisterByVendorInvoiceNumber(ctx, inv.TenantID, vendorKey, inv.InvoiceNumber, inv.ID); err != nil {
			return err
		}
	}
	if vendorKey != "" && !inv.Total.IsZero() {
		amount, _ := inv.Total.Float64()
		at := inv.InvoiceDate
		if at.IsZero() {
			at = inv.CreatedAt
		}
		if err := d.index.RegisterRecentByVendor(ctx, inv.TenantID, vendorKey, inv.ID, amount, at); err != nil {
			return err
		}
	}
	return nil
}

func normalizeVendorKey(vendorName string) string {
	return strings.ToLower(strings.TrimSpace(vendorName))
}

// amountSimilarity returns |a-b| / max(a,b), treating non-positive inputs
// as dissimilar (never a false-positive duplicate).
func amountSimilarity(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 1.0
	}
	max := a
	if b > max {
		max = b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / max
}
