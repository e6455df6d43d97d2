// Package simulate projects the risk calculator's output after a hypothetical
// supply, withdraw, borrow, or repay — before anything is submitted on-chain.
// Each call is a fresh before/after comparison; nothing is persisted and the
// caller's position slices are never mutated.
package simulate

import (
	"lendrisk/internal/position"
	"lendrisk/internal/risk"
)

// Action is the kind of transaction being projected.
type Action int

const (
	ActionSupply Action = iota
	ActionWithdraw
	ActionBorrow
	ActionRepay
)

func (a Action) String() string {
	switch a {
	case ActionSupply:
		return "supply"
	case ActionWithdraw:
		return "withdraw"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// Warning strings surfaced to the transaction-preparation layer.
const (
	WarningLiquidatable = "would make position liquidatable"
	WarningDangerZone   = "danger zone"
)

// Request describes the hypothetical transaction. Amount is in base units and
// is converted to USD via PriceUSD and Decimals. The risk-parameter fields
// only matter when the account does not already hold the asset: simulation
// never rejects an unknown asset, it treats the position as newly created
// with the supplied parameters.
type Request struct {
	Action   Action  `json:"-"`
	CoinType string  `json:"coinType"`
	Amount   int64   `json:"amount"` // base units
	Decimals int     `json:"decimals"`
	PriceUSD float64 `json:"priceUSD"`

	RepayAll        bool `json:"repayAll,omitempty"`
	UseAsCollateral bool `json:"useAsCollateral,omitempty"`

	// Parameters for a position not yet held.
	LoanToValue          float64 `json:"loanToValue,omitempty"`
	LiquidationThreshold float64 `json:"liquidationThreshold,omitempty"`
	BorrowFactor         float64 `json:"borrowFactor,omitempty"`
}

// HealthFactorSimulation is the before/after comparison handed back to the
// caller. IsSafe means the projected health factor stays at or above the
// liquidation threshold.
type HealthFactorSimulation struct {
	CurrentHealthFactor   risk.Ratio  `json:"currentHealthFactor"`
	ProjectedHealthFactor risk.Ratio  `json:"projectedHealthFactor"`
	CurrentStatus         risk.Status `json:"currentStatus"`
	ProjectedStatus       risk.Status `json:"projectedStatus"`
	IsSafe                bool        `json:"isSafe"`
	Warning               string      `json:"warning,omitempty"`
}

// AmountUSD converts the base-unit amount to USD.
func (r Request) AmountUSD() float64 {
	v := float64(r.Amount)
	for i := 0; i < r.Decimals; i++ {
		v /= 10
	}
	return v * r.PriceUSD
}

// Simulate clones the account's positions, applies the hypothetical delta,
// and classifies the current and projected health factors with the same
// thresholds the portfolio snapshot uses.
func Simulate(deposits []position.DepositPosition, borrows []position.BorrowPosition, req Request, th risk.Thresholds) HealthFactorSimulation {
	current := risk.HealthFactor(deposits, borrows)

	projDeposits := position.CloneDeposits(deposits)
	projBorrows := position.CloneBorrows(borrows)

	switch req.Action {
	case ActionSupply:
		projDeposits = applySupply(projDeposits, req)
	case ActionWithdraw:
		projDeposits = applyWithdraw(projDeposits, req)
	case ActionBorrow:
		projBorrows = applyBorrow(projBorrows, req)
	case ActionRepay:
		projBorrows = applyRepay(projBorrows, req)
	}

	projected := risk.HealthFactor(projDeposits, projBorrows)

	sim := HealthFactorSimulation{
		CurrentHealthFactor:   risk.Ratio(current),
		ProjectedHealthFactor: risk.Ratio(projected),
		CurrentStatus:         th.Classify(current),
		ProjectedStatus:       th.Classify(projected),
		IsSafe:                projected >= th.Liquidation,
	}

	// Repaying debt cannot worsen the health factor, so it is always
	// reported safe even for an already-liquidatable account.
	if req.Action == ActionRepay {
		sim.IsSafe = true
		return sim
	}

	if req.Action == ActionWithdraw || req.Action == ActionBorrow {
		switch {
		case projected < th.Liquidation:
			sim.Warning = WarningLiquidatable
		case projected < th.Danger:
			sim.Warning = WarningDangerZone
		}
	}

	return sim
}

func applySupply(deposits []position.DepositPosition, req Request) []position.DepositPosition {
	amountUSD := req.AmountUSD()
	for i := range deposits {
		if deposits[i].CoinType == req.CoinType {
			deposits[i].UnderlyingAmount += req.Amount
			deposits[i].ValueUSD += amountUSD
			return deposits
		}
	}

	// Asset not yet held: create the position from the request parameters.
	d := position.DepositPosition{
		CoinType:             req.CoinType,
		Decimals:             req.Decimals,
		UnderlyingAmount:     req.Amount,
		ValueUSD:             amountUSD,
		LoanToValue:          req.LoanToValue,
		LiquidationThreshold: req.LiquidationThreshold,
		IsCollateral:         req.UseAsCollateral,
	}
	if !req.UseAsCollateral {
		d.LoanToValue = 0
		d.LiquidationThreshold = 0
	}
	return append(deposits, d)
}

func applyWithdraw(deposits []position.DepositPosition, req Request) []position.DepositPosition {
	amountUSD := req.AmountUSD()
	for i := range deposits {
		if deposits[i].CoinType != req.CoinType {
			continue
		}
		deposits[i].UnderlyingAmount -= req.Amount
		deposits[i].ValueUSD -= amountUSD
		if deposits[i].ValueUSD <= 0 || deposits[i].UnderlyingAmount <= 0 {
			return append(deposits[:i], deposits[i+1:]...)
		}
		return deposits
	}
	// Withdrawing an asset that is not held projects no change.
	return deposits
}

func applyBorrow(borrows []position.BorrowPosition, req Request) []position.BorrowPosition {
	amountUSD := req.AmountUSD()
	for i := range borrows {
		if borrows[i].CoinType == req.CoinType {
			borrows[i].BorrowedAmount += req.Amount
			borrows[i].ValueUSD += amountUSD
			return borrows
		}
	}

	factor := req.BorrowFactor
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	return append(borrows, position.BorrowPosition{
		CoinType:       req.CoinType,
		Decimals:       req.Decimals,
		BorrowedAmount: req.Amount,
		ValueUSD:       amountUSD,
		BorrowFactor:   factor,
	})
}

func applyRepay(borrows []position.BorrowPosition, req Request) []position.BorrowPosition {
	amountUSD := req.AmountUSD()
	for i := range borrows {
		if borrows[i].CoinType != req.CoinType {
			continue
		}
		if req.RepayAll || amountUSD >= borrows[i].ValueUSD {
			return append(borrows[:i], borrows[i+1:]...)
		}
		borrows[i].BorrowedAmount -= req.Amount
		borrows[i].ValueUSD -= amountUSD
		return borrows
	}
	// Repaying a debt that does not exist projects no change.
	return borrows
}
