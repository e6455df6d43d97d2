// Package solver inverts the health-factor formula to answer "how much can I
// safely withdraw or borrow?". The results are the values behind MAX buttons:
// feeding a solved amount back through the simulator reproduces the requested
// target health factor within floating-point tolerance.
package solver

import (
	"math"

	"lendrisk/internal/position"
	"lendrisk/internal/risk"
)

// MaxSafeAmount is the solved transaction ceiling for one asset.
type MaxSafeAmount struct {
	CoinType              string     `json:"coinType"`
	MaxAmountUSD          float64    `json:"maxAmountUSD"`
	MaxAmountDisplay      float64    `json:"maxAmountDisplay"` // token display units
	ResultingHealthFactor risk.Ratio `json:"resultingHealthFactor"`
	TargetHealthFactor    float64    `json:"targetHealthFactor"`
}

// MaxSafeWithdrawal solves for the largest withdrawal of coinType that keeps
// the projected health factor at or above targetHF.
//
// With debt outstanding, the collateral that must remain is
// adjustedBorrowUSD × targetHF; the headroom above that converts back to the
// asset through its own liquidation threshold, then clamps to the actually
// held value. With no debt the full deposit is withdrawable.
func MaxSafeWithdrawal(deposits []position.DepositPosition, borrows []position.BorrowPosition, coinType string, targetHF float64) MaxSafeAmount {
	held, ok := findDeposit(deposits, coinType)
	result := MaxSafeAmount{
		CoinType:           coinType,
		TargetHealthFactor: targetHF,
	}
	if !ok {
		result.ResultingHealthFactor = risk.Ratio(risk.HealthFactor(deposits, borrows))
		return result
	}

	adjustedDebt := risk.AdjustedBorrowValue(borrows)
	if adjustedDebt == 0 {
		result.MaxAmountUSD = held.ValueUSD
		result.MaxAmountDisplay = held.HumanAmount()
		result.ResultingHealthFactor = risk.Ratio(math.Inf(1))
		return result
	}

	weighted := risk.WeightedCollateral(deposits)
	required := adjustedDebt * targetHF
	headroom := weighted - required

	var maxUSD float64
	if held.LiquidationThreshold > 0 {
		maxUSD = headroom / held.LiquidationThreshold
	} else {
		// The asset does not back any debt; removing it cannot hurt the
		// health factor.
		maxUSD = held.ValueUSD
	}

	maxUSD = math.Min(math.Max(maxUSD, 0), held.ValueUSD)

	result.MaxAmountUSD = maxUSD
	result.MaxAmountDisplay = displayFraction(held, maxUSD)
	result.ResultingHealthFactor = risk.Ratio(withdrawalHealthFactor(weighted, adjustedDebt, held, maxUSD))
	return result
}

// MaxSafeBorrow solves for the largest additional borrow of an asset that
// keeps the projected health factor at or above targetHF. The asset need not
// be borrowed yet, so its price, borrow factor, and decimals come from the
// reserve rather than an existing position.
func MaxSafeBorrow(
	deposits []position.DepositPosition,
	borrows []position.BorrowPosition,
	coinType string,
	priceUSD float64,
	borrowFactor float64,
	decimals int,
	targetHF float64,
) MaxSafeAmount {
	result := MaxSafeAmount{
		CoinType:           coinType,
		TargetHealthFactor: targetHF,
	}

	if borrowFactor <= 0 || borrowFactor > 1 {
		borrowFactor = 1
	}

	weighted := risk.WeightedCollateral(deposits)
	adjustedDebt := risk.AdjustedBorrowValue(borrows)

	var budget float64
	if targetHF > 0 {
		budget = weighted / targetHF
	}
	spare := budget - adjustedDebt
	if spare < 0 {
		spare = 0
	}

	maxUSD := spare * borrowFactor
	result.MaxAmountUSD = maxUSD
	if priceUSD > 0 {
		result.MaxAmountDisplay = maxUSD / priceUSD
	}
	_ = decimals // display units are price-derived; base units are the caller's concern

	projectedDebt := adjustedDebt + maxUSD/borrowFactor
	if projectedDebt == 0 {
		result.ResultingHealthFactor = risk.Ratio(math.Inf(1))
	} else {
		result.ResultingHealthFactor = risk.Ratio(weighted / projectedDebt)
	}
	return result
}

func findDeposit(deposits []position.DepositPosition, coinType string) (position.DepositPosition, bool) {
	for _, d := range deposits {
		if d.CoinType == coinType {
			return d, true
		}
	}
	return position.DepositPosition{}, false
}

// displayFraction converts a USD amount of a held deposit into display units
// using the position's own implied price.
func displayFraction(held position.DepositPosition, amountUSD float64) float64 {
	if held.ValueUSD <= 0 {
		return 0
	}
	return held.HumanAmount() * (amountUSD / held.ValueUSD)
}

func withdrawalHealthFactor(weighted, adjustedDebt float64, held position.DepositPosition, withdrawnUSD float64) float64 {
	remaining := weighted - withdrawnUSD*held.LiquidationThreshold
	if adjustedDebt == 0 {
		return math.Inf(1)
	}
	return remaining / adjustedDebt
}
