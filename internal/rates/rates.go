// Package rates implements the kinked two-segment interest-rate model.
// Below the optimal utilization point the borrow rate climbs gently from the
// minimum toward the optimal rate; above it, steeply toward the maximum.
package rates

import "lendrisk/internal/position"

// BorrowAPR evaluates the kinked curve at the given utilization.
// Both segments meet exactly at cfg.OptimalBorrowRate when
// utilization == cfg.OptimalUtilization.
func BorrowAPR(utilization float64, cfg position.InterestRateConfig) float64 {
	utilization = clamp01(utilization)
	optimal := cfg.OptimalUtilization

	// Degenerate kink placements collapse to a single linear segment rather
	// than dividing by zero.
	if optimal <= 0 {
		return cfg.OptimalBorrowRate + (cfg.MaxBorrowRate-cfg.OptimalBorrowRate)*utilization
	}
	if optimal >= 1 {
		return cfg.MinBorrowRate + (cfg.OptimalBorrowRate-cfg.MinBorrowRate)*utilization
	}

	if utilization <= optimal {
		return cfg.MinBorrowRate + (cfg.OptimalBorrowRate-cfg.MinBorrowRate)*(utilization/optimal)
	}
	return cfg.OptimalBorrowRate + (cfg.MaxBorrowRate-cfg.OptimalBorrowRate)*((utilization-optimal)/(1-optimal))
}

// SupplyAPR returns the rate passed through to suppliers. Suppliers only earn
// on the borrowed fraction of the pool, minus the protocol's reserve-factor
// skim.
func SupplyAPR(borrowAPR, utilization, reserveFactor float64) float64 {
	return borrowAPR * clamp01(utilization) * (1 - clamp01(reserveFactor))
}

// ReserveRates evaluates both sides of the curve for a reserve's current
// utilization.
func ReserveRates(r position.Reserve) (borrowAPR, supplyAPR float64) {
	borrowAPR = BorrowAPR(r.Utilization, r.InterestRateConfig)
	supplyAPR = SupplyAPR(borrowAPR, r.Utilization, r.ReserveFactor)
	return borrowAPR, supplyAPR
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
