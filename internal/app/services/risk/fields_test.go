package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/risk"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
)

func TestResolveScalarAndNestedPaths(t *testing.T) {
	inv := invoice.Invoice{
		ID: "inv-1", Total: decimal.NewFromFloat(1500), VendorName: "Acme",
	}
	profile := &vendor.Profile{RiskLevel: vendor.RiskHigh, Verified: true}
	assessment := &risk.Assessment{OverallScore: 0.65, Level: risk.LevelHigh, RequiresReview: true}

	tree := BuildFieldTree(inv, profile, assessment)

	if v, ok := Resolve(tree, "amount"); !ok || v.(float64) != 1500 {
		t.Fatalf("expected amount 1500, got %v ok=%v", v, ok)
	}
	if v, ok := Resolve(tree, "vendor.risk_level"); !ok || v != "high" {
		t.Fatalf("expected vendor.risk_level high, got %v ok=%v", v, ok)
	}
	if v, ok := Resolve(tree, "risk.requires_review"); !ok || v != true {
		t.Fatalf("expected risk.requires_review true, got %v ok=%v", v, ok)
	}
}

func TestResolveMissingPathFailsCleanly(t *testing.T) {
	tree := BuildFieldTree(invoice.Invoice{}, nil, nil)

	if _, ok := Resolve(tree, "vendor.nonexistent.deeper"); ok {
		t.Fatalf("expected unresolvable path to fail")
	}
	if _, ok := Resolve(tree, "risk.level"); ok {
		t.Fatalf("expected risk subtree absent when assessment is nil")
	}
}
