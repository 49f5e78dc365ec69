package risk

import (
	"strings"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/risk"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
)

// FieldTree is the restricted, explicitly-built value tree rule conditions
// resolve dotted paths against. It is built once per evaluation from the
// concrete domain structs — no reflection is used, so only the fields
// listed here are ever reachable from a rule.
type FieldTree map[string]any

// BuildFieldTree assembles the resolvable view of one invoice for rule
// evaluation. assessment may be nil if risk scoring has not run yet.
func BuildFieldTree(inv invoice.Invoice, vendorProfile *vendor.Profile, assessment *risk.Assessment) FieldTree {
	tree := FieldTree{
		"id":                inv.ID,
		"invoice_number":    inv.InvoiceNumber,
		"po_number":         inv.PONumber,
		"currency":          inv.Currency,
		"amount":            mustFloat(inv.Total),
		"subtotal":          mustFloat(inv.Subtotal),
		"tax":               mustFloat(inv.Tax),
		"extraction_confidence": inv.ExtractionConfidence,
		"anomaly_tags":      anySlice(inv.AnomalyTags),
		"vendor": map[string]any{
			"id":      inv.VendorID,
			"name":    inv.VendorName,
			"address": inv.VendorAddress,
		},
	}
	if vendorProfile != nil {
		tree["vendor"].(map[string]any)["risk_level"] = string(vendorProfile.RiskLevel)
		tree["vendor"].(map[string]any)["verified"] = vendorProfile.Verified
		tree["vendor"].(map[string]any)["total_invoices"] = vendorProfile.TotalInvoices
	}
	if assessment != nil {
		tree["risk"] = map[string]any{
			"overall_score":   assessment.OverallScore,
			"level":           string(assessment.Level),
			"requires_review": assessment.RequiresReview,
		}
	}
	return tree
}

func mustFloat(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	return f
}

func anySlice(tags []string) []any {
	out := make([]any, len(tags))
	for i, t := range tags {
		out[i] = t
	}
	return out
}

// Resolve walks a dotted field path ("vendor.risk_level") against tree.
// Returns (nil, false) for any segment that is missing or not a nested map
// — an unresolvable path never panics, it just fails the condition.
func Resolve(tree FieldTree, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = map[string]any(tree)
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
