package emode_test

import (
	"math"
	"strings"
	"testing"

	"lendrisk/internal/emode"
	"lendrisk/internal/position"
)

func stableCategory() emode.Category {
	return emode.Category{
		CategoryID:           "stablecoins",
		Label:                "Stablecoins",
		MaxLTV:               0.93,
		LiquidationThreshold: 0.95,
		LiquidationPenalty:   2.0,
		EligibleAssets:       []string{"USDC", "USDT", "DAI"},
	}
}

func deposit(coin string, valueUSD, ltv, liq float64) position.DepositPosition {
	return position.DepositPosition{
		CoinType:             coin,
		ValueUSD:             valueUSD,
		LoanToValue:          ltv,
		LiquidationThreshold: liq,
		IsCollateral:         true,
	}
}

// ============================================================================
// Test: CanEnter
// ============================================================================

func TestCanEnter_AllAssetsEligible(t *testing.T) {
	deposits := []position.DepositPosition{
		deposit("USDC", 1000, 0.8, 0.85),
		deposit("USDT", 500, 0.8, 0.85),
	}

	got := emode.CanEnter(deposits, stableCategory())
	if !got.CanEnter {
		t.Errorf("all-stable portfolio should qualify, got reason %q", got.Reason)
	}
	if got.Reason != "" {
		t.Errorf("qualifying entry should carry no reason, got %q", got.Reason)
	}
}

func TestCanEnter_IneligibleAssetBlocksEntry(t *testing.T) {
	deposits := []position.DepositPosition{
		deposit("USDC", 1000, 0.8, 0.85),
		deposit("SUI", 200, 0.7, 0.75),
	}

	got := emode.CanEnter(deposits, stableCategory())
	if got.CanEnter {
		t.Error("portfolio with SUI must not qualify for stablecoins category")
	}
	if !strings.Contains(got.Reason, "SUI") {
		t.Errorf("reason should name the blocking asset, got %q", got.Reason)
	}
}

func TestCanEnter_EmptyPortfolioQualifies(t *testing.T) {
	got := emode.CanEnter(nil, stableCategory())
	if !got.CanEnter {
		t.Errorf("empty portfolio should qualify, got reason %q", got.Reason)
	}
}

// ============================================================================
// Test: Evaluate
// ============================================================================

func TestEvaluate_BorrowingPowerImprovement(t *testing.T) {
	deposits := []position.DepositPosition{deposit("USDC", 1000, 0.8, 0.85)}

	b := emode.Evaluate(deposits, nil, stableCategory())
	if b.NormalBorrowingPowerUSD != 800 {
		t.Errorf("normal power: got %v, want 800", b.NormalBorrowingPowerUSD)
	}
	if b.EnhancedBorrowingPowerUSD != 930 {
		t.Errorf("enhanced power: got %v, want 930", b.EnhancedBorrowingPowerUSD)
	}
	if math.Abs(b.ImprovementUSD-130) > 1e-9 {
		t.Errorf("improvement: got %v, want 130", b.ImprovementUSD)
	}
	if math.Abs(b.ImprovementPct-16.25) > 1e-9 {
		t.Errorf("improvement pct: got %v, want 16.25", b.ImprovementPct)
	}
	if b.Recommendation != emode.RecommendationModerate {
		t.Errorf("16.25%% improvement should be %q, got %q", emode.RecommendationModerate, b.Recommendation)
	}
}

func TestEvaluate_RecommendationBands(t *testing.T) {
	cases := []struct {
		name      string
		normalLTV float64
		want      string
	}{
		{"highly recommended above 20pct", 0.7, emode.RecommendationHigh},      // 0.93/0.7 → ~32.9%
		{"recommended above 10pct", 0.8, emode.RecommendationModerate},          // ~16.3%
		{"optional at or below 10pct", 0.9, emode.RecommendationOptional},       // ~3.3%
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deposits := []position.DepositPosition{deposit("USDC", 1000, tc.normalLTV, tc.normalLTV+0.05)}
			b := emode.Evaluate(deposits, nil, stableCategory())
			if b.Recommendation != tc.want {
				t.Errorf("LTV %v: got %q (%.2f%%), want %q", tc.normalLTV, b.Recommendation, b.ImprovementPct, tc.want)
			}
		})
	}
}

func TestEvaluate_RiskLevelHeuristic(t *testing.T) {
	cases := []struct {
		penalty float64
		want    emode.RiskLevel
	}{
		{2.0, emode.RiskLower},
		{5.0, emode.RiskSame},
		{7.5, emode.RiskHigher},
	}
	for _, tc := range cases {
		c := stableCategory()
		c.LiquidationPenalty = tc.penalty
		b := emode.Evaluate(nil, nil, c)
		if b.RiskLevel != tc.want {
			t.Errorf("penalty %v: got %v, want %v", tc.penalty, b.RiskLevel, tc.want)
		}
	}
}

func TestEvaluate_ProjectedHealthFactor(t *testing.T) {
	deposits := []position.DepositPosition{deposit("USDC", 1000, 0.8, 0.85)}
	borrows := []position.BorrowPosition{{CoinType: "USDT", ValueUSD: 500, BorrowFactor: 1.0}}

	b := emode.Evaluate(deposits, borrows, stableCategory())
	want := 1000 * 0.95 / 500
	if math.Abs(float64(b.ProjectedHealthFactor)-want) > 1e-9 {
		t.Errorf("projected HF: got %v, want %v", b.ProjectedHealthFactor, want)
	}

	noDebt := emode.Evaluate(deposits, nil, stableCategory())
	if !noDebt.ProjectedHealthFactor.IsInf() {
		t.Errorf("no debt: projected HF should be +Inf, got %v", noDebt.ProjectedHealthFactor)
	}
}

func TestEvaluate_ZeroCollateralPercent(t *testing.T) {
	b := emode.Evaluate(nil, nil, stableCategory())
	if b.ImprovementPct != 0 {
		t.Errorf("no collateral should report 0%% improvement, got %v", b.ImprovementPct)
	}
	if b.Recommendation != emode.RecommendationOptional {
		t.Errorf("no collateral should be optional, got %q", b.Recommendation)
	}
}

// ============================================================================
// Test: category table
// ============================================================================

func TestLookup(t *testing.T) {
	c, ok := emode.Lookup(emode.DefaultCategories, "eth-correlated")
	if !ok {
		t.Fatal("eth-correlated should exist in the default table")
	}
	if !c.Eligible("STETH") {
		t.Error("STETH should be eligible for eth-correlated")
	}
	if c.Eligible("USDC") {
		t.Error("USDC should not be eligible for eth-correlated")
	}

	if _, ok := emode.Lookup(emode.DefaultCategories, "memecoins"); ok {
		t.Error("unknown category should not resolve")
	}
}

func TestDefaultCategories_EnhancedParamsAreConsistent(t *testing.T) {
	for _, c := range emode.DefaultCategories {
		if c.LiquidationThreshold < c.MaxLTV {
			t.Errorf("category %s: liquidation threshold %v below max LTV %v",
				c.CategoryID, c.LiquidationThreshold, c.MaxLTV)
		}
		if len(c.EligibleAssets) == 0 {
			t.Errorf("category %s: empty eligible asset set", c.CategoryID)
		}
	}
}
