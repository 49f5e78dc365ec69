// Package pomatch implements the purchase-order matcher (component C4):
// locating an invoice's PO by normalized number (with a similarity
// fallback), comparing headers and line items, and scoring match
// confidence.
package pomatch

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/pomatch"
	"github.com/R3E-Network/service_layer/internal/app/services/textsim"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

const (
	poNumberSimilarityFloor  = 0.8
	vendorNameSimilarityFloor = 0.9
	vendorNameCriticalFloor   = 0.7
	lineDescriptionFloor      = 0.7
)

var nonAlnumHyphen = regexp.MustCompile(`[^A-Z0-9-]`)

// ToleranceConfig holds the tenant-configurable header comparison
// tolerances.
type ToleranceConfig struct {
	AmountTolerance float64 // default 0.05
	TaxTolerance    float64 // absolute currency units, default 1.0
}

func DefaultToleranceConfig() ToleranceConfig {
	return ToleranceConfig{AmountTolerance: 0.05, TaxTolerance: 1.0}
}

// Matcher resolves purchase orders and produces MatchResults.
type Matcher struct {
	store storage.POStore
	cfg   ToleranceConfig
}

func New(store storage.POStore, cfg ToleranceConfig) *Matcher {
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = DefaultToleranceConfig().AmountTolerance
	}
	if cfg.TaxTolerance <= 0 {
		cfg.TaxTolerance = DefaultToleranceConfig().TaxTolerance
	}
	return &Matcher{store: store, cfg: cfg}
}

// NormalizePONumber strips vendor-specific prefixes and punctuation so
// "PO# 2024-0017" and "po-2024-0017" resolve to the same key.
func NormalizePONumber(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	upper = strings.TrimPrefix(upper, "PO#")
	upper = strings.TrimPrefix(upper, "PO-")
	upper = strings.TrimPrefix(upper, "PO")
	upper = strings.TrimSpace(upper)
	return nonAlnumHyphen.ReplaceAllString(upper, "")
}

// Match resolves inv's PO and produces the full comparison result.
func (m *Matcher) Match(ctx context.Context, inv invoice.Invoice) (pomatch.MatchResult, error) {
	if strings.TrimSpace(inv.PONumber) == "" {
		return pomatch.MatchResult{Status: pomatch.StatusNoPO, Recommendation: "no purchase order reference on invoice"}, nil
	}

	po, err := m.resolve(ctx, inv)
	if err != nil {
		return pomatch.MatchResult{}, err
	}
	if po == nil {
		return pomatch.MatchResult{Status: pomatch.StatusPONotFound, Recommendation: "referenced purchase order could not be located"}, nil
	}

	headerVariances := m.compareHeaders(inv, *po)
	lineMatches, unmatchedInv, unmatchedPO := matchLines(inv.LineItems, po.LineItems)

	var totalVariance decimal.Decimal
	for _, v := range headerVariances {
		totalVariance = totalVariance.Add(v.Difference.Abs())
	}
	for _, lm := range lineMatches {
		if lm.QuantityVariance != nil {
			totalVariance = totalVariance.Add(lm.QuantityVariance.Difference.Abs())
		}
		if lm.PriceVariance != nil {
			totalVariance = totalVariance.Add(lm.PriceVariance.Difference.Abs())
		}
	}

	status := classifyStatus(headerVariances, lineMatches, unmatchedInv, len(inv.LineItems))
	confidence := computeConfidence(headerVariances, lineMatches, len(inv.LineItems), len(po.LineItems))

	return pomatch.MatchResult{
		Status:                status,
		PO:                    po,
		HeaderVariances:       headerVariances,
		LineMatches:           lineMatches,
		UnmatchedInvoiceLines: unmatchedInv,
		UnmatchedPOLines:      unmatchedPO,
		TotalVarianceAmount:   totalVariance,
		Confidence:            confidence,
		Recommendation:        recommendationFor(status, confidence),
	}, nil
}

// resolve tries an exact normalized-number lookup first, then falls back to
// sequence-ratio similarity across the tenant's PO store.
func (m *Matcher) resolve(ctx context.Context, inv invoice.Invoice) (*pomatch.PurchaseOrder, error) {
	normalized := NormalizePONumber(inv.PONumber)
	po, err := m.store.GetByNumber(ctx, inv.TenantID, normalized)
	if err != nil {
		return nil, err
	}
	if po != nil {
		return po, nil
	}

	candidates, err := m.store.ListByTenant(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	var best *pomatch.PurchaseOrder
	bestRatio := poNumberSimilarityFloor
	for i := range candidates {
		ratio := textsim.Ratio(normalized, NormalizePONumber(candidates[i].PONumber))
		if ratio >= bestRatio {
			bestRatio = ratio
			best = &candidates[i]
		}
	}
	return best, nil
}

func (m *Matcher) compareHeaders(inv invoice.Invoice, po pomatch.PurchaseOrder) []pomatch.Variance {
	var variances []pomatch.Variance

	if ratio := textsim.Ratio(inv.VendorName, po.VendorName); ratio < vendorNameSimilarityFloor {
		sev := pomatch.SeverityWarning
		if ratio < vendorNameCriticalFloor {
			sev = pomatch.SeverityCritical
		}
		variances = append(variances, pomatch.Variance{
			Field: "vendor_name", Severity: sev,
			Expected: po.VendorName, Actual: inv.VendorName,
		})
	}

	if !po.Total.IsZero() {
		diff := inv.Total.Sub(po.Total)
		relDiff := diff.Abs().Div(po.Total)
		relDiffF, _ := relDiff.Float64()
		if relDiffF > m.cfg.AmountTolerance {
			sev := pomatch.SeverityWarning
			if relDiffF > 2*m.cfg.AmountTolerance {
				sev = pomatch.SeverityCritical
			}
			variances = append(variances, pomatch.Variance{
				Field: "total", Severity: sev,
				Expected: po.Total.String(), Actual: inv.Total.String(), Difference: diff,
			})
		}
	}

	taxDiff := inv.Tax.Sub(po.Tax)
	if taxDiffF, _ := taxDiff.Abs().Float64(); taxDiffF > m.cfg.TaxTolerance {
		variances = append(variances, pomatch.Variance{
			Field: "tax", Severity: pomatch.SeverityWarning,
			Expected: po.Tax.String(), Actual: inv.Tax.String(), Difference: taxDiff,
		})
	}

	if inv.Currency != "" && po.Currency != "" && !strings.EqualFold(inv.Currency, po.Currency) {
		variances = append(variances, pomatch.Variance{
			Field: "currency", Severity: pomatch.SeverityCritical,
			Expected: po.Currency, Actual: inv.Currency,
		})
	}

	return variances
}

// matchLines greedily pairs invoice lines to PO lines, highest
// description-similarity first, each side used at most once.
func matchLines(invLines []invoice.LineItem, poLines []pomatch.POLineItem) ([]pomatch.LineMatch, []int, []int) {
	type candidate struct {
		invIdx, poIdx int
		ratio         float64
	}
	var candidates []candidate
	for i, il := range invLines {
		for j, pl := range poLines {
			ratio := textsim.Ratio(il.Description, pl.Description)
			if ratio >= lineDescriptionFloor {
				candidates = append(candidates, candidate{i, j, ratio})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].ratio > candidates[b].ratio })

	usedInv := make(map[int]bool)
	usedPO := make(map[int]bool)
	var matches []pomatch.LineMatch
	for _, c := range candidates {
		if usedInv[c.invIdx] || usedPO[c.poIdx] {
			continue
		}
		usedInv[c.invIdx] = true
		usedPO[c.poIdx] = true
		matches = append(matches, lineMatchFor(c.invIdx, c.poIdx, invLines[c.invIdx], poLines[c.poIdx]))
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].InvoiceLineIndex < matches[b].InvoiceLineIndex })

	var unmatchedInv, unmatchedPO []int
	for i := range invLines {
		if !usedInv[i] {
			unmatchedInv = append(unmatchedInv, i)
		}
	}
	for j := range poLines {
		if !usedPO[j] {
			unmatchedPO = append(unmatchedPO, j)
		}
	}
	return matches, unmatchedInv, unmatchedPO
}

func lineMatchFor(invIdx, poIdx int, il invoice.LineItem, pl pomatch.POLineItem) pomatch.LineMatch {
	lm := pomatch.LineMatch{InvoiceLineIndex: invIdx, POLineIndex: poIdx}

	if !pl.Quantity.IsZero() {
		diff := il.Quantity.Sub(pl.Quantity)
		relDiff, _ := diff.Abs().Div(pl.Quantity).Float64()
		if relDiff > 0.10 {
			lm.QuantityVariance = &pomatch.Variance{
				Field: "quantity", Severity: pomatch.SeverityWarning,
				Expected: pl.Quantity.String(), Actual: il.Quantity.String(), Difference: diff,
			}
		}
	}

	priceDiff := il.UnitPrice.Sub(pl.UnitPrice)
	if !pl.UnitPrice.IsZero() {
		relDiff, _ := priceDiff.Abs().Div(pl.UnitPrice).Float64()
		if relDiff > 0.02 {
			sev := pomatch.SeverityWarning
			if relDiff > 0.10 {
				sev = pomatch.SeverityCritical
			}
			lm.PriceVariance = &pomatch.Variance{
				Field: "unit_price", Severity: sev,
				Expected: pl.UnitPrice.String(), Actual: il.UnitPrice.String(), Difference: priceDiff,
			}
		}
	}
	return lm
}

func classifyStatus(headerVariances []pomatch.Variance, lineMatches []pomatch.LineMatch, unmatchedInv []int, invLineCount int) pomatch.Status {
	hasCritical := false
	hasWarning := false
	for _, v := range headerVariances {
		if v.Severity == pomatch.SeverityCritical {
			hasCritical = true
		} else {
			hasWarning = true
		}
	}
	for _, lm := range lineMatches {
		if lm.QuantityVariance != nil {
			hasWarning = hasWarning || lm.QuantityVariance.Severity == pomatch.SeverityWarning
			hasCritical = hasCritical || lm.QuantityVariance.Severity == pomatch.SeverityCritical
		}
		if lm.PriceVariance != nil {
			hasWarning = hasWarning || lm.PriceVariance.Severity == pomatch.SeverityWarning
			hasCritical = hasCritical || lm.PriceVariance.Severity == pomatch.SeverityCritical
		}
	}

	switch {
	case hasCritical:
		return pomatch.StatusMismatch
	case hasWarning || len(unmatchedInv) > 0 || invLineCount == 0:
		return pomatch.StatusPartial
	default:
		return pomatch.StatusMatched
	}
}

func computeConfidence(headerVariances []pomatch.Variance, lineMatches []pomatch.LineMatch, invLineCount, poLineCount int) float64 {
	confidence := 1.0
	for _, v := range headerVariances {
		if v.Severity == pomatch.SeverityCritical {
			confidence -= 0.3
		} else {
			confidence -= 0.1
		}
	}
	for _, lm := range lineMatches {
		for _, v := range []*pomatch.Variance{lm.QuantityVariance, lm.PriceVariance} {
			if v == nil {
				continue
			}
			if v.Severity == pomatch.SeverityCritical {
				confidence -= 0.3
			} else {
				confidence -= 0.1
			}
		}
	}

	maxLines := invLineCount
	if poLineCount > maxLines {
		maxLines = poLineCount
	}
	if maxLines > 0 {
		floor := float64(len(lineMatches))/float64(maxLines) + 0.3
		if confidence < floor {
			confidence = floor
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func recommendationFor(status pomatch.Status, confidence float64) string {
	switch status {
	case pomatch.StatusNoPO:
		return "no purchase order reference on invoice"
	case pomatch.StatusPONotFound:
		return "referenced purchase order could not be located"
	case pomatch.StatusMatched:
		return "invoice matches the purchase order within tolerance"
	case pomatch.StatusPartial:
		return "invoice partially matches the purchase order; manual review recommended"
	case pomatch.StatusMismatch:
		return "invoice diverges critically from the purchase order; hold for review"
	default:
		if confidence < 0.5 {
			return "low confidence match; manual review recommended"
		}
		return "match evaluated"
	}
}
