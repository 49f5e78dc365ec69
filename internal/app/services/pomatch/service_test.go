package pomatch

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/pomatch"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

func TestNormalizePONumberStripsPrefixAndPunctuation(t *testing.T) {
	cases := map[string]string{
		"PO-2024-0017":  "2024-0017",
		"po# 2024 0017": "20240017",
		"PO2024-0017":   "2024-0017",
		"  2024-0017  ": "2024-0017",
	}
	for in, want := range cases {
		if got := NormalizePONumber(in); got != want {
			t.Errorf("NormalizePONumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchNoPOReference(t *testing.T) {
	m := New(memory.NewPOStore(), DefaultToleranceConfig())
	result, err := m.Match(context.Background(), invoice.Invoice{TenantID: "t1"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Status != pomatch.StatusNoPO {
		t.Fatalf("expected NO_PO, got %s", result.Status)
	}
}

func TestMatchPONotFound(t *testing.T) {
	m := New(memory.NewPOStore(), DefaultToleranceConfig())
	result, err := m.Match(context.Background(), invoice.Invoice{TenantID: "t1", PONumber: "PO-9999"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Status != pomatch.StatusPONotFound {
		t.Fatalf("expected PO_NOT_FOUND, got %s", result.Status)
	}
}

func TestMatchExactAndClean(t *testing.T) {
	store := memory.NewPOStore()
	store.Seed(pomatch.PurchaseOrder{
		TenantID: "t1", PONumber: "2024-0017", VendorName: "Acme Corp",
		Currency: "USD", Total: decimal.NewFromFloat(500), Tax: decimal.NewFromFloat(40),
		LineItems: []pomatch.POLineItem{
			{Description: "Widget A", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromFloat(45)},
		},
	})
	m := New(store, DefaultToleranceConfig())

	inv := invoice.Invoice{
		TenantID: "t1", PONumber: "PO-2024-0017", VendorName: "Acme Corp",
		Currency: "USD", Total: decimal.NewFromFloat(500), Tax: decimal.NewFromFloat(40),
		LineItems: []invoice.LineItem{
			{Description: "Widget A", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromFloat(45)},
		},
	}
	result, err := m.Match(context.Background(), inv)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Status != pomatch.StatusMatched {
		t.Fatalf("expected MATCHED, got %s (%+v)", result.Status, result.HeaderVariances)
	}
	if result.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", result.Confidence)
	}
}

func TestMatchCriticalAmountMismatch(t *testing.T) {
	store := memory.NewPOStore()
	store.Seed(pomatch.PurchaseOrder{
		TenantID: "t1", PONumber: "2024-0020", VendorName: "Acme Corp",
		Currency: "USD", Total: decimal.NewFromFloat(500), Tax: decimal.NewFromFloat(40),
	})
	m := New(store, DefaultToleranceConfig())

	inv := invoice.Invoice{
		TenantID: "t1", PONumber: "2024-0020", VendorName: "Acme Corp",
		Currency: "USD", Total: decimal.NewFromFloat(700), Tax: decimal.NewFromFloat(40),
	}
	result, err := m.Match(context.Background(), inv)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Status != pomatch.StatusMismatch {
		t.Fatalf("expected MISMATCH, got %s (%+v)", result.Status, result.HeaderVariances)
	}
	if result.Confidence > 0.7 {
		t.Fatalf("expected confidence to drop to 0.7 or below, got %v", result.Confidence)
	}
}

func TestMatchPartialOnUnmatchedLine(t *testing.T) {
	store := memory.NewPOStore()
	store.Seed(pomatch.PurchaseOrder{
		TenantID: "t1", PONumber: "2024-0030", VendorName: "Acme Corp",
		Currency: "USD", Total: decimal.NewFromFloat(100),
		LineItems: []pomatch.POLineItem{
			{Description: "Widget A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(100)},
		},
	})
	m := New(store, DefaultToleranceConfig())

	inv := invoice.Invoice{
		TenantID: "t1", PONumber: "2024-0030", VendorName: "Acme Corp",
		Currency: "USD", Total: decimal.NewFromFloat(100),
		LineItems: []invoice.LineItem{
			{Description: "Widget A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(100)},
			{Description: "Completely unrelated gadget", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(50)},
		},
	}
	result, err := m.Match(context.Background(), inv)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Status != pomatch.StatusPartial {
		t.Fatalf("expected PARTIAL, got %s", result.Status)
	}
	if len(result.UnmatchedInvoiceLines) != 1 || result.UnmatchedInvoiceLines[0] != 1 {
		t.Fatalf("expected invoice line 1 unmatched, got %+v", result.UnmatchedInvoiceLines)
	}
}

func TestMatchFuzzyPONumberFallback(t *testing.T) {
	store := memory.NewPOStore()
	store.Seed(pomatch.PurchaseOrder{TenantID: "t1", PONumber: "2024-0017", VendorName: "Acme Corp", Currency: "USD"})
	m := New(store, DefaultToleranceConfig())

	inv := invoice.Invoice{TenantID: "t1", PONumber: "2024-O017", VendorName: "Acme Corp", Currency: "USD"}
	result, err := m.Match(context.Background(), inv)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Status == pomatch.StatusPONotFound {
		t.Fatalf("expected fuzzy fallback to resolve the PO, got PO_NOT_FOUND")
	}
}
