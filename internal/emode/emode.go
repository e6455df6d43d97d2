// Package emode evaluates Efficiency Mode: opt-in correlated-asset risk
// categories that grant a higher loan-to-value when every held collateral
// asset belongs to the category. Only one category may be active at a time;
// exiting reverts each asset to its normal risk parameters.
package emode

import (
	"fmt"
	"math"

	"lendrisk/internal/position"
	"lendrisk/internal/risk"
)

// Category is one correlated-asset risk category with enhanced parameters.
type Category struct {
	CategoryID           string   `json:"categoryId"`
	Label                string   `json:"label"`
	MaxLTV               float64  `json:"maxLTV"`               // decimal fraction
	LiquidationThreshold float64  `json:"liquidationThreshold"` // decimal fraction
	LiquidationPenalty   float64  `json:"liquidationPenalty"`   // percent
	EligibleAssets       []string `json:"eligibleAssets"`
}

// Eligibility is the structured result of an entry check. Ineligible
// collateral blocks entry with a reason — never partial entry, never an error.
type Eligibility struct {
	CanEnter bool   `json:"canEnter"`
	Reason   string `json:"reason,omitempty"`
}

// RiskLevel compares the category's liquidation penalty to normal mode.
type RiskLevel int

const (
	RiskLower RiskLevel = iota
	RiskSame
	RiskHigher
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLower:
		return "lower"
	case RiskSame:
		return "same"
	case RiskHigher:
		return "higher"
	default:
		return "unknown"
	}
}

func (r RiskLevel) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Recommendation bands for the borrowing-power improvement.
const (
	RecommendationHigh     = "highly recommended"
	RecommendationModerate = "recommended"
	RecommendationOptional = "optional"

	highBenefitPct     = 20.0
	moderateBenefitPct = 10.0

	// penaltyRiskPivot is the liquidation-penalty percentage that separates
	// "lower" from "higher" risk. The cutoff matches observed client
	// behavior and is not a documented protocol rule.
	penaltyRiskPivot = 5.0
)

// Benefit quantifies what entering a category is worth.
type Benefit struct {
	CategoryID                string     `json:"categoryId"`
	NormalBorrowingPowerUSD   float64    `json:"normalBorrowingPowerUSD"`
	EnhancedBorrowingPowerUSD float64    `json:"enhancedBorrowingPowerUSD"`
	ImprovementUSD            float64    `json:"improvementUSD"`
	ImprovementPct            float64    `json:"improvementPct"`
	Recommendation            string     `json:"recommendation"`
	RiskLevel                 RiskLevel  `json:"riskLevel"`
	ProjectedHealthFactor     risk.Ratio `json:"projectedHealthFactor"`
}

// Eligible reports whether a coin type belongs to the category.
func (c Category) Eligible(coinType string) bool {
	for _, a := range c.EligibleAssets {
		if a == coinType {
			return true
		}
	}
	return false
}

// CanEnter checks whether every held deposit is eligible for the category.
// Any ineligible asset blocks entry with an explanatory reason.
func CanEnter(deposits []position.DepositPosition, c Category) Eligibility {
	for _, d := range deposits {
		if !c.Eligible(d.CoinType) {
			return Eligibility{
				CanEnter: false,
				Reason:   fmt.Sprintf("%s is not eligible for category %s", d.CoinType, c.CategoryID),
			}
		}
	}
	return Eligibility{CanEnter: true}
}

// Evaluate compares borrowing power under each deposit's normal LTV against
// the category's enhanced LTV and projects the health factor under the
// category's liquidation threshold.
func Evaluate(deposits []position.DepositPosition, borrows []position.BorrowPosition, c Category) Benefit {
	normal := risk.BorrowingPower(deposits)

	var enhanced, enhancedWeighted float64
	for _, d := range deposits {
		enhanced += d.ValueUSD * c.MaxLTV
		enhancedWeighted += d.ValueUSD * c.LiquidationThreshold
	}

	improvement := enhanced - normal
	pct := 0.0
	if normal > 0 {
		pct = improvement / normal * 100
	}

	projected := math.Inf(1)
	if adjustedDebt := risk.AdjustedBorrowValue(borrows); adjustedDebt > 0 {
		projected = enhancedWeighted / adjustedDebt
	}

	return Benefit{
		CategoryID:                c.CategoryID,
		NormalBorrowingPowerUSD:   normal,
		EnhancedBorrowingPowerUSD: enhanced,
		ImprovementUSD:            improvement,
		ImprovementPct:            pct,
		Recommendation:            recommend(pct),
		RiskLevel:                 penaltyRiskLevel(c.LiquidationPenalty),
		ProjectedHealthFactor:     risk.Ratio(projected),
	}
}

func recommend(improvementPct float64) string {
	switch {
	case improvementPct > highBenefitPct:
		return RecommendationHigh
	case improvementPct > moderateBenefitPct:
		return RecommendationModerate
	default:
		return RecommendationOptional
	}
}

func penaltyRiskLevel(penalty float64) RiskLevel {
	switch {
	case penalty < penaltyRiskPivot:
		return RiskLower
	case penalty > penaltyRiskPivot:
		return RiskHigher
	default:
		return RiskSame
	}
}
