// Package risk implements the weighted risk scorer and the programmable
// approval rules engine (component C3).
package risk

import (
	"math"
	"strings"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/risk"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
)

// rushPaymentTerms are substrings of a vendor's payment terms that flag a
// request for unusually fast settlement.
var rushPaymentTerms = []string{"immediate", "due upon receipt", "urgent", "asap", "net 0"}

// ScorerConfig holds the tenant-configurable knobs the scorer reads.
// ApprovalThresholds are the configured approval-level amount boundaries T
// the THRESHOLD_SPLITTING check probes against.
type ScorerConfig struct {
	ReviewThreshold    float64
	ApprovalThresholds []float64
}

// DefaultScorerConfig matches the spec defaults plus a representative
// three-tier approval ladder; tenants override ApprovalThresholds with
// their own configured amounts.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		ReviewThreshold:    0.5,
		ApprovalThresholds: []float64{1000, 5000, 10000},
	}
}

// Scorer produces a risk.Assessment from an invoice plus optional vendor
// history. DuplicateSignal, when true, injects the DUPLICATE_SUSPECTED
// indicator the orchestrator computes from the duplicate detector (C2) —
// the scorer itself never calls C2.
type Scorer struct {
	cfg ScorerConfig
}

func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = 0.5
	}
	if len(cfg.ApprovalThresholds) == 0 {
		cfg.ApprovalThresholds = DefaultScorerConfig().ApprovalThresholds
	}
	return &Scorer{cfg: cfg}
}

// Score evaluates every independent indicator check and aggregates the
// result. vendorProfile may be nil (new vendor, no history yet).
func (s *Scorer) Score(inv invoice.Invoice, vendorProfile *vendor.Profile, duplicateSignal bool) risk.Assessment {
	amount, _ := inv.Total.Float64()

	var indicators []risk.Indicator
	if ind, ok := s.amountDeviation(amount, vendorProfile); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := s.newVendor(vendorProfile); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := s.missingPO(inv, amount); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := s.roundAmount(amount); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := s.rushPayment(vendorProfile); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := s.thresholdSplitting(amount); ok {
		indicators = append(indicators, ind)
	}
	if duplicateSignal {
		indicators = append(indicators, risk.Indicator{
			Factor: risk.FactorDuplicateSuspect,
			Score:  1.0,
			Detail: "duplicate detector flagged a candidate match",
		})
	}
	if ind, ok := s.vendorRisk(vendorProfile); ok {
		indicators = append(indicators, ind)
	}

	overall := aggregate(indicators)
	level := bucketLevel(overall)
	assessment := risk.Assessment{
		OverallScore:    overall,
		Level:           level,
		Indicators:      indicators,
		RequiresReview:  overall >= s.cfg.ReviewThreshold,
		Recommendations: recommendationsFor(indicators),
	}
	return assessment
}

func (s *Scorer) amountDeviation(amount float64, vendorProfile *vendor.Profile) (risk.Indicator, bool) {
	if vendorProfile == nil || vendorProfile.AverageAmount.IsZero() {
		return risk.Indicator{}, false
	}
	avg, _ := vendorProfile.AverageAmount.Float64()
	if avg == 0 {
		return risk.Indicator{}, false
	}
	deviation := math.Abs(amount-avg) / avg
	if deviation <= 0.5 {
		return risk.Indicator{}, false
	}
	score := deviation
	if score > 1.0 {
		score = 1.0
	}
	return risk.Indicator{
		Factor: risk.FactorAmountDeviation,
		Score:  score,
		Detail: "amount deviates from vendor's historical average by more than 50%",
	}, true
}

func (s *Scorer) newVendor(vendorProfile *vendor.Profile) (risk.Indicator, bool) {
	count := 0
	if vendorProfile != nil {
		count = vendorProfile.TotalInvoices
	}
	switch {
	case count == 0:
		return risk.Indicator{Factor: risk.FactorNewVendor, Score: 0.7, Detail: "no prior invoices from this vendor"}, true
	case count <= 2:
		return risk.Indicator{Factor: risk.FactorNewVendor, Score: 0.4, Detail: "fewer than three prior invoices from this vendor"}, true
	default:
		return risk.Indicator{}, false
	}
}

func (s *Scorer) missingPO(inv invoice.Invoice, amount float64) (risk.Indicator, bool) {
	if inv.PONumber != "" || amount <= 1000 {
		return risk.Indicator{}, false
	}
	return risk.Indicator{Factor: risk.FactorMissingPO, Score: 0.6, Detail: "no purchase order reference on an invoice over 1000"}, true
}

func (s *Scorer) roundAmount(amount float64) (risk.Indicator, bool) {
	if amount < 1000 || math.Mod(amount, 1000) != 0 {
		return risk.Indicator{}, false
	}
	return risk.Indicator{Factor: risk.FactorRoundAmount, Score: 0.3, Detail: "amount is a round multiple of 1000"}, true
}

func (s *Scorer) rushPayment(vendorProfile *vendor.Profile) (risk.Indicator, bool) {
	if vendorProfile == nil {
		return risk.Indicator{}, false
	}
	terms := strings.ToLower(vendorProfile.PaymentTerms)
	for _, needle := range rushPaymentTerms {
		if strings.Contains(terms, needle) {
			return risk.Indicator{Factor: risk.FactorRushPayment, Score: 0.5, Detail: "payment terms request unusually fast settlement"}, true
		}
	}
	return risk.Indicator{}, false
}

func (s *Scorer) thresholdSplitting(amount float64) (risk.Indicator, bool) {
	for _, t := range s.cfg.ApprovalThresholds {
		if t <= 0 {
			continue
		}
		if amount >= 0.85*t && amount < 0.98*t {
			return risk.Indicator{Factor: risk.FactorThresholdSplit, Score: 0.6, Detail: "amount sits just under an approval threshold"}, true
		}
	}
	return risk.Indicator{}, false
}

func (s *Scorer) vendorRisk(vendorProfile *vendor.Profile) (risk.Indicator, bool) {
	if vendorProfile == nil {
		return risk.Indicator{}, false
	}
	var score float64
	switch vendorProfile.RiskLevel {
	case vendor.RiskCritical:
		score = 1.0
	case vendor.RiskHigh:
		score = 0.7
	case vendor.RiskNormal:
		return risk.Indicator{}, false
	case vendor.RiskLow:
		return risk.Indicator{}, false
	default:
		return risk.Indicator{}, false
	}
	return risk.Indicator{Factor: risk.FactorVendorRisk, Score: score, Detail: "vendor's own risk level is " + string(vendorProfile.RiskLevel)}, true
}

// aggregate computes Σ(score·weight) / Σ(weight) across produced
// indicators, rounded to 3 decimals.
func aggregate(indicators []risk.Indicator) float64 {
	if len(indicators) == 0 {
		return 0
	}
	var weighted, totalWeight float64
	for _, ind := range indicators {
		w := risk.Weight[ind.Factor]
		weighted += ind.Score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	overall := weighted / totalWeight
	return math.Round(overall*1000) / 1000
}

// bucketLevel applies the strictly increasing thresholds in ascending
// order; the first bucket satisfying overall <= threshold wins.
func bucketLevel(overall float64) risk.Level {
	switch {
	case overall <= 0.3:
		return risk.LevelLow
	case overall <= 0.5:
		return risk.LevelMedium
	case overall <= 0.7:
		return risk.LevelHigh
	default:
		return risk.LevelCritical
	}
}

func recommendationsFor(indicators []risk.Indicator) []string {
	var out []string
	for _, ind := range indicators {
		switch ind.Factor {
		case risk.FactorAmountDeviation:
			out = append(out, "verify the amount against vendor history before approving")
		case risk.FactorNewVendor:
			out = append(out, "confirm vendor identity and banking details for this new relationship")
		case risk.FactorMissingPO:
			out = append(out, "request a purchase order reference from the requester")
		case risk.FactorThresholdSplit:
			out = append(out, "review for possible approval-threshold splitting")
		case risk.FactorDuplicateSuspect:
			out = append(out, "resolve the duplicate candidate before payment")
		case risk.FactorVendorRisk:
			out = append(out, "escalate to a senior approver given this vendor's risk standing")
		}
	}
	return out
}
