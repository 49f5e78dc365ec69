package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/risk"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
)

func TestScoreNewVendorNoHistoryRequiresReview(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	inv := invoice.Invoice{Total: decimal.NewFromFloat(2500), PONumber: "PO-1"}

	assessment := s.Score(inv, nil, false)

	foundNewVendor := false
	for _, ind := range assessment.Indicators {
		if ind.Factor == risk.FactorNewVendor {
			foundNewVendor = true
		}
	}
	if !foundNewVendor {
		t.Fatalf("expected NEW_VENDOR indicator, got %+v", assessment.Indicators)
	}
}

func TestScoreRoundAmountAndMissingPO(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	profile := &vendor.Profile{TotalInvoices: 10, AverageAmount: decimal.NewFromFloat(5000)}
	inv := invoice.Invoice{Total: decimal.NewFromFloat(5000)}

	assessment := s.Score(inv, profile, false)

	factors := map[risk.Factor]bool{}
	for _, ind := range assessment.Indicators {
		factors[ind.Factor] = true
	}
	if !factors[risk.FactorRoundAmount] {
		t.Errorf("expected ROUND_AMOUNT indicator")
	}
	if !factors[risk.FactorMissingPO] {
		t.Errorf("expected MISSING_PO indicator")
	}
}

func TestScoreDuplicateSignalInjectsIndicatorAndBucketsCritical(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	inv := invoice.Invoice{Total: decimal.NewFromFloat(100), PONumber: "PO-1"}

	assessment := s.Score(inv, nil, true)

	if assessment.Level != risk.LevelCritical && assessment.Level != risk.LevelHigh {
		t.Fatalf("expected duplicate signal to push level up, got %s (score %v)", assessment.Level, assessment.OverallScore)
	}
	var found bool
	for _, ind := range assessment.Indicators {
		if ind.Factor == risk.FactorDuplicateSuspect && ind.Score == 1.0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected DUPLICATE_SUSPECTED indicator with score 1.0")
	}
}

func TestScoreNoIndicatorsYieldsZeroAndNoReview(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	profile := &vendor.Profile{TotalInvoices: 50, AverageAmount: decimal.NewFromFloat(777), RiskLevel: vendor.RiskNormal}
	inv := invoice.Invoice{Total: decimal.NewFromFloat(777), PONumber: "PO-9"}

	assessment := s.Score(inv, profile, false)

	if assessment.OverallScore != 0 {
		t.Fatalf("expected zero score, got %v (%+v)", assessment.OverallScore, assessment.Indicators)
	}
	if assessment.RequiresReview {
		t.Fatalf("did not expect review requirement")
	}
	if assessment.Level != risk.LevelLow {
		t.Fatalf("expected low level, got %s", assessment.Level)
	}
}

func TestScoreRushPaymentTerms(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	profile := &vendor.Profile{TotalInvoices: 10, PaymentTerms: "Due Upon Receipt", AverageAmount: decimal.NewFromFloat(100)}
	inv := invoice.Invoice{Total: decimal.NewFromFloat(100), PONumber: "PO-1", InvoiceDate: time.Now()}

	assessment := s.Score(inv, profile, false)

	found := false
	for _, ind := range assessment.Indicators {
		if ind.Factor == risk.FactorRushPayment {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected RUSH_PAYMENT indicator, got %+v", assessment.Indicators)
	}
}
