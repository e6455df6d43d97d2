package risk

import (
	"math"

	"lendrisk/internal/position"
)

// Thresholds holds the health-factor cutoffs used for status classification.
// They are passed explicitly so call sites and tests never depend on hidden
// globals.
type Thresholds struct {
	Liquidation float64 `json:"liquidation"` // below this the position can be seized
	Danger      float64 `json:"danger"`
	Warning     float64 `json:"warning"`
}

// DefaultThresholds returns the protocol-standard classification cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Liquidation: 1.0,
		Danger:      1.2,
		Warning:     1.5,
	}
}

// RiskMetrics is the aggregated solvency snapshot for one account.
type RiskMetrics struct {
	HealthFactor       Ratio   `json:"healthFactor"`
	CurrentLTV         float64 `json:"currentLTV"`
	BorrowCapacityUSD  float64 `json:"borrowCapacityUSD"`
	BorrowCapacityUsed float64 `json:"borrowCapacityUsed"` // [0,1]
	TotalSuppliedUSD   float64 `json:"totalSuppliedUSD"`
	TotalBorrowedUSD   float64 `json:"totalBorrowedUSD"`
	Status             Status  `json:"status"`
}

// HealthFactor returns risk-weighted collateral over risk-weighted debt:
//
//	HF = Σ(valueUSD_i × liquidationThreshold_i) / Σ(valueUSD_j / borrowFactor_j)
//
// Dividing each debt by its borrow factor inflates the effective debt of
// assets the protocol considers riskier to borrow. With no debt the account
// carries no liquidation risk and the result is +Inf.
func HealthFactor(deposits []position.DepositPosition, borrows []position.BorrowPosition) float64 {
	adjustedDebt := AdjustedBorrowValue(borrows)
	if adjustedDebt == 0 {
		return math.Inf(1)
	}
	return WeightedCollateral(deposits) / adjustedDebt
}

// CurrentLTV returns total borrow value over total deposit value,
// or 0 when there is no collateral.
func CurrentLTV(deposits []position.DepositPosition, borrows []position.BorrowPosition) float64 {
	supplied := TotalDepositValue(deposits)
	if supplied == 0 {
		return 0
	}
	return TotalBorrowValue(borrows) / supplied
}

// BorrowingPower returns the USD ceiling the account could legally borrow
// against its current collateral, independent of what it already owes.
func BorrowingPower(deposits []position.DepositPosition) float64 {
	var power float64
	for _, d := range deposits {
		power += d.ValueUSD * d.LoanToValue
	}
	return power
}

// WeightedCollateral returns Σ(valueUSD × liquidationThreshold), the
// numerator of the health factor.
func WeightedCollateral(deposits []position.DepositPosition) float64 {
	var sum float64
	for _, d := range deposits {
		sum += d.ValueUSD * d.LiquidationThreshold
	}
	return sum
}

// AdjustedBorrowValue returns Σ(valueUSD / borrowFactor), the denominator of
// the health factor. Borrows with a non-positive factor are counted at face
// value rather than dividing by zero; the model validator rejects them
// upstream.
func AdjustedBorrowValue(borrows []position.BorrowPosition) float64 {
	var sum float64
	for _, b := range borrows {
		if b.BorrowFactor > 0 {
			sum += b.ValueUSD / b.BorrowFactor
		} else {
			sum += b.ValueUSD
		}
	}
	return sum
}

// TotalDepositValue returns the raw USD sum of all deposits.
func TotalDepositValue(deposits []position.DepositPosition) float64 {
	var sum float64
	for _, d := range deposits {
		sum += d.ValueUSD
	}
	return sum
}

// TotalBorrowValue returns the raw USD sum of all borrows.
func TotalBorrowValue(borrows []position.BorrowPosition) float64 {
	var sum float64
	for _, b := range borrows {
		sum += b.ValueUSD
	}
	return sum
}

// PortfolioRisk combines the solvency calculations into one snapshot.
func PortfolioRisk(deposits []position.DepositPosition, borrows []position.BorrowPosition, th Thresholds) RiskMetrics {
	borrowed := TotalBorrowValue(borrows)
	power := BorrowingPower(deposits)

	capacityUsed := 0.0
	if power > 0 {
		capacityUsed = borrowed / power
	}

	hf := HealthFactor(deposits, borrows)

	return RiskMetrics{
		HealthFactor:       Ratio(hf),
		CurrentLTV:         CurrentLTV(deposits, borrows),
		BorrowCapacityUSD:  power,
		BorrowCapacityUsed: capacityUsed,
		TotalSuppliedUSD:   TotalDepositValue(deposits),
		TotalBorrowedUSD:   borrowed,
		Status:             th.Classify(hf),
	}
}

// Classify maps a health factor onto a Status band.
func (th Thresholds) Classify(healthFactor float64) Status {
	switch {
	case healthFactor < th.Liquidation:
		return StatusLiquidatable
	case healthFactor < th.Danger:
		return StatusDanger
	case healthFactor < th.Warning:
		return StatusWarning
	default:
		return StatusSafe
	}
}
