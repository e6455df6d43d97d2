package solver_test

import (
	"math"
	"testing"

	"lendrisk/internal/position"
	"lendrisk/internal/risk"
	"lendrisk/internal/simulate"
	"lendrisk/internal/solver"
)

const targetHF = 1.2

func fixture() ([]position.DepositPosition, []position.BorrowPosition) {
	deposits := []position.DepositPosition{
		{
			CoinType:             "SUI",
			Decimals:             9,
			UnderlyingAmount:     500_000_000_000,
			ValueUSD:             1000,
			LoanToValue:          0.7,
			LiquidationThreshold: 0.75,
			IsCollateral:         true,
		},
	}
	borrows := []position.BorrowPosition{
		{
			CoinType:       "USDC",
			Decimals:       6,
			BorrowedAmount: 300_000_000,
			ValueUSD:       300,
			BorrowFactor:   1.0,
		},
	}
	return deposits, borrows
}

// ============================================================================
// Test: MaxSafeWithdrawal
// ============================================================================

func TestMaxSafeWithdrawal_NoDebtReturnsFullDeposit(t *testing.T) {
	deposits, _ := fixture()

	got := solver.MaxSafeWithdrawal(deposits, nil, "SUI", targetHF)
	if got.MaxAmountUSD != 1000 {
		t.Errorf("max USD: got %v, want 1000", got.MaxAmountUSD)
	}
	if got.MaxAmountDisplay != 500 {
		t.Errorf("max display: got %v, want 500 SUI", got.MaxAmountDisplay)
	}
	if !got.ResultingHealthFactor.IsInf() {
		t.Errorf("resulting HF should be +Inf, got %v", got.ResultingHealthFactor)
	}
}

func TestMaxSafeWithdrawal_HitsTargetHealthFactor(t *testing.T) {
	deposits, borrows := fixture()

	got := solver.MaxSafeWithdrawal(deposits, borrows, "SUI", targetHF)

	// headroom = 750 - 300*1.2 = 390; / 0.75 = 520 USD withdrawable.
	if math.Abs(got.MaxAmountUSD-520) > 1e-9 {
		t.Errorf("max USD: got %v, want 520", got.MaxAmountUSD)
	}
	if math.Abs(float64(got.ResultingHealthFactor)-targetHF) > 1e-9 {
		t.Errorf("resulting HF: got %v, want %v", got.ResultingHealthFactor, targetHF)
	}
}

func TestMaxSafeWithdrawal_RoundTripsThroughSimulator(t *testing.T) {
	deposits, borrows := fixture()

	got := solver.MaxSafeWithdrawal(deposits, borrows, "SUI", targetHF)

	// Feed the solved amount back through the simulator: the projected HF
	// must land on the target within floating-point tolerance.
	pricePerToken := deposits[0].ValueUSD / deposits[0].HumanAmount()
	sim := simulate.Simulate(deposits, borrows, simulate.Request{
		Action:   simulate.ActionWithdraw,
		CoinType: "SUI",
		Amount:   position.BaseUnits(got.MaxAmountDisplay, 9),
		Decimals: 9,
		PriceUSD: pricePerToken,
	}, risk.DefaultThresholds())

	if math.Abs(float64(sim.ProjectedHealthFactor)-targetHF) > 1e-6 {
		t.Errorf("simulator disagrees with solver: projected HF %v, want %v", sim.ProjectedHealthFactor, targetHF)
	}
}

func TestMaxSafeWithdrawal_ClampsToHeldValue(t *testing.T) {
	deposits, _ := fixture()
	// A second deposit keeps the position overcollateralized even after the
	// full SUI withdrawal, so the clamp to held value applies.
	deposits = append(deposits, position.DepositPosition{
		CoinType:             "USDC",
		Decimals:             6,
		UnderlyingAmount:     1000_000_000,
		ValueUSD:             1000,
		LoanToValue:          0.77,
		LiquidationThreshold: 0.8,
		IsCollateral:         true,
	})
	borrows := []position.BorrowPosition{
		{CoinType: "USDT", ValueUSD: 10, BorrowFactor: 1.0},
	}

	got := solver.MaxSafeWithdrawal(deposits, borrows, "SUI", targetHF)
	if got.MaxAmountUSD != 1000 {
		t.Errorf("should clamp to held value 1000, got %v", got.MaxAmountUSD)
	}
}

func TestMaxSafeWithdrawal_NegativeHeadroomClampsToZero(t *testing.T) {
	deposits, _ := fixture()
	borrows := []position.BorrowPosition{
		{CoinType: "USDC", ValueUSD: 700, BorrowFactor: 1.0},
	}

	got := solver.MaxSafeWithdrawal(deposits, borrows, "SUI", targetHF)
	if got.MaxAmountUSD != 0 {
		t.Errorf("underwater position should solve to 0, got %v", got.MaxAmountUSD)
	}
}

func TestMaxSafeWithdrawal_UnknownAsset(t *testing.T) {
	deposits, borrows := fixture()

	got := solver.MaxSafeWithdrawal(deposits, borrows, "DOGE", targetHF)
	if got.MaxAmountUSD != 0 || got.MaxAmountDisplay != 0 {
		t.Errorf("unheld asset should solve to 0, got %+v", got)
	}
}

// ============================================================================
// Test: MaxSafeBorrow
// ============================================================================

func TestMaxSafeBorrow_HitsTargetHealthFactor(t *testing.T) {
	deposits, borrows := fixture()

	got := solver.MaxSafeBorrow(deposits, borrows, "USDC", 1.0, 1.0, 6, targetHF)

	// budget = 750/1.2 = 625; spare = 625-300 = 325.
	if math.Abs(got.MaxAmountUSD-325) > 1e-9 {
		t.Errorf("max USD: got %v, want 325", got.MaxAmountUSD)
	}
	if math.Abs(float64(got.ResultingHealthFactor)-targetHF) > 1e-9 {
		t.Errorf("resulting HF: got %v, want %v", got.ResultingHealthFactor, targetHF)
	}
}

func TestMaxSafeBorrow_RoundTripsThroughSimulator(t *testing.T) {
	deposits, borrows := fixture()

	got := solver.MaxSafeBorrow(deposits, borrows, "USDC", 1.0, 1.0, 6, targetHF)

	sim := simulate.Simulate(deposits, borrows, simulate.Request{
		Action:   simulate.ActionBorrow,
		CoinType: "USDC",
		Amount:   position.BaseUnits(got.MaxAmountDisplay, 6),
		Decimals: 6,
		PriceUSD: 1.0,
	}, risk.DefaultThresholds())

	if math.Abs(float64(sim.ProjectedHealthFactor)-targetHF) > 1e-6 {
		t.Errorf("simulator disagrees with solver: projected HF %v, want %v", sim.ProjectedHealthFactor, targetHF)
	}
}

func TestMaxSafeBorrow_BorrowFactorShrinksBudget(t *testing.T) {
	deposits, borrows := fixture()

	full := solver.MaxSafeBorrow(deposits, borrows, "ALT", 1.0, 1.0, 6, targetHF)
	risky := solver.MaxSafeBorrow(deposits, borrows, "ALT", 1.0, 0.5, 6, targetHF)

	if math.Abs(risky.MaxAmountUSD-full.MaxAmountUSD/2) > 1e-9 {
		t.Errorf("halving the borrow factor should halve the budget: %v vs %v", risky.MaxAmountUSD, full.MaxAmountUSD)
	}
}

func TestMaxSafeBorrow_ExhaustedCapacityClampsToZero(t *testing.T) {
	deposits, _ := fixture()
	borrows := []position.BorrowPosition{
		{CoinType: "USDC", ValueUSD: 700, BorrowFactor: 1.0},
	}

	got := solver.MaxSafeBorrow(deposits, borrows, "USDC", 1.0, 1.0, 6, targetHF)
	if got.MaxAmountUSD != 0 {
		t.Errorf("no spare capacity should solve to 0, got %v", got.MaxAmountUSD)
	}
}

func TestMaxSafeBorrow_TokenConversion(t *testing.T) {
	deposits, _ := fixture()

	got := solver.MaxSafeBorrow(deposits, nil, "SUI", 2.0, 1.0, 9, targetHF)
	// budget = 750/1.2 = 625 USD at $2/token.
	if math.Abs(got.MaxAmountDisplay-312.5) > 1e-9 {
		t.Errorf("display amount: got %v, want 312.5", got.MaxAmountDisplay)
	}
}
