// Package portfolio aggregates per-position APRs into a value-weighted net
// rate for the whole account, with reward APRs offsetting base rates on both
// sides.
package portfolio

import (
	"math"

	"lendrisk/internal/position"
)

// NetAPRResult summarizes the portfolio's earning rate. Weighted APRs are
// decimal fractions; NetAPR follows the display convention and is a percent.
type NetAPRResult struct {
	WeightedSupplyAPR    float64 `json:"weightedSupplyAPR"`
	WeightedBorrowAPR    float64 `json:"weightedBorrowAPR"`
	NetAPR               float64 `json:"netAPR"` // percent
	NetAnnualEarningsUSD float64 `json:"netAnnualEarningsUSD"`
	TotalSuppliedUSD     float64 `json:"totalSuppliedUSD"`
	TotalBorrowedUSD     float64 `json:"totalBorrowedUSD"`
}

// WeightedSupplyAPR returns the value-weighted supply rate including rewards:
// Σ(valueUSD × (supplyAPR + rewardAPR)) / ΣvalueUSD, or 0 for an empty set.
func WeightedSupplyAPR(deposits []position.DepositPosition) float64 {
	var total, weighted float64
	for _, d := range deposits {
		total += d.ValueUSD
		weighted += d.ValueUSD * (d.CurrentAPR + d.RewardAPR)
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// WeightedBorrowAPR returns the value-weighted borrow rate with rewards
// reducing the effective cost: Σ(valueUSD × (borrowAPR − rewardAPR)) / ΣvalueUSD.
func WeightedBorrowAPR(borrows []position.BorrowPosition) float64 {
	var total, weighted float64
	for _, b := range borrows {
		total += b.ValueUSD
		weighted += b.ValueUSD * (b.CurrentAPR - b.RewardAPR)
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// NetAPR computes annual earnings across all positions:
// supply earnings (with rewards) minus borrow costs (net of rewards), divided
// by the total value at work on both sides.
func NetAPR(deposits []position.DepositPosition, borrows []position.BorrowPosition) NetAPRResult {
	var totalSupplied, totalBorrowed float64
	var supplyEarnings, borrowCosts float64

	for _, d := range deposits {
		totalSupplied += d.ValueUSD
		supplyEarnings += d.ValueUSD * (d.CurrentAPR + d.RewardAPR)
	}
	for _, b := range borrows {
		totalBorrowed += b.ValueUSD
		borrowCosts += b.ValueUSD * (b.CurrentAPR - b.RewardAPR)
	}

	netEarnings := supplyEarnings - borrowCosts

	netAPR := 0.0
	if base := totalSupplied + totalBorrowed; base > 0 {
		netAPR = netEarnings / base * 100
	}

	return NetAPRResult{
		WeightedSupplyAPR:    WeightedSupplyAPR(deposits),
		WeightedBorrowAPR:    WeightedBorrowAPR(borrows),
		NetAPR:               netAPR,
		NetAnnualEarningsUSD: netEarnings,
		TotalSuppliedUSD:     totalSupplied,
		TotalBorrowedUSD:     totalBorrowed,
	}
}

// APRToAPY converts a simple annual rate to its compounded equivalent:
// (1 + apr/periods)^periods − 1.
func APRToAPY(apr float64, periods int) float64 {
	if periods <= 0 {
		return apr
	}
	return math.Pow(1+apr/float64(periods), float64(periods)) - 1
}
