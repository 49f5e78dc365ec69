package duplicate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/internal/app/domain/duplicate"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

func TestDetectFindsExactHashMatch(t *testing.T) {
	ctx := context.Background()
	index := memory.NewDuplicateIndexStore()
	det := New(index)

	first := invoice.Invoice{ID: "inv-1", TenantID: "t1", ContentHash: "hash-a", VendorName: "Acme"}
	if err := det.Register(ctx, first); err != nil {
		t.Fatalf("register: %v", err)
	}

	candidate := invoice.Invoice{ID: "inv-2", TenantID: "t1", ContentHash: "hash-a", VendorName: "Acme"}
	matches, err := det.Detect(ctx, candidate)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(matches) == 0 || matches[0].MatchType != duplicate.MatchExactHash || matches[0].Confidence != 1.0 {
		t.Fatalf("expected exact hash match first, got %+v", matches)
	}
}

func TestDetectFindsSimilarAmountWithinWindow(t *testing.T) {
	ctx := context.Background()
	index := memory.NewDuplicateIndexStore()
	det := New(index)

	first := invoice.Invoice{
		ID: "inv-1", TenantID: "t1", VendorName: "Acme",
		Total: decimal.NewFromFloat(1000), InvoiceDate: time.Now().Add(-2 * 24 * time.Hour),
	}
	if err := det.Register(ctx, first); err != nil {
		t.Fatalf("register: %v", err)
	}

	candidate := invoice.Invoice{ID: "inv-2", TenantID: "t1", VendorName: "acme", Total: decimal.NewFromFloat(1002)}
	matches, err := det.Detect(ctx, candidate)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	found := false
	for _, m := range matches {
		if m.MatchType == duplicate.MatchSimilarAmount && m.InvoiceID == "inv-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected similar-amount match, got %+v", matches)
	}
}

func TestDetectIgnoresMissingFieldsWithoutError(t *testing.T) {
	ctx := context.Background()
	det := New(memory.NewDuplicateIndexStore())

	matches, err := det.Detect(ctx, invoice.Invoice{ID: "inv-1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("expected no error on empty invoice, got %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}
