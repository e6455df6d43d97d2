package position

import "fmt"

// DepositPosition is one normalized supply-side position of an account.
// All risk parameters use one scaling convention: decimal fractions in [0,1].
// Upstream parsers that receive basis points must convert before constructing
// a DepositPosition — the engine never guesses a scale.
type DepositPosition struct {
	CoinType             string  `json:"coinType"`
	Decimals             int     `json:"decimals"`
	UnderlyingAmount     int64   `json:"underlyingAmount"` // base units
	ValueUSD             float64 `json:"valueUSD"`
	LoanToValue          float64 `json:"loanToValue"`
	LiquidationThreshold float64 `json:"liquidationThreshold"`
	// IsCollateral mirrors the on-chain collateral toggle. When an account
	// disables collateral for an asset the normalization layer zeroes
	// LoanToValue and LiquidationThreshold, so the risk formulas need no
	// special casing here.
	IsCollateral bool    `json:"isCollateral"`
	CurrentAPR   float64 `json:"currentAPR"`
	RewardAPR    float64 `json:"rewardAPR"`
}

// BorrowPosition is one normalized debt position of an account.
type BorrowPosition struct {
	CoinType       string  `json:"coinType"`
	Decimals       int     `json:"decimals"`
	BorrowedAmount int64   `json:"borrowedAmount"` // base units
	ValueUSD       float64 `json:"valueUSD"`
	BorrowFactor   float64 `json:"borrowFactor"` // (0,1]; lower = riskier debt
	CurrentAPR     float64 `json:"currentAPR"`
	RewardAPR      float64 `json:"rewardAPR"`
}

// InterestRateConfig describes a reserve's two-segment ("kinked") rate curve.
type InterestRateConfig struct {
	MinBorrowRate      float64 `json:"minBorrowRate"`
	OptimalBorrowRate  float64 `json:"optimalBorrowRate"`
	MaxBorrowRate      float64 `json:"maxBorrowRate"`
	OptimalUtilization float64 `json:"optimalUtilization"` // (0,1)
}

// Reserve is the per-asset protocol configuration plus current pool state.
// ReserveFactor is the canonical name for the protocol's interest skim;
// upstream payloads spelling it reserve_ratio are normalized to this field
// at the ingestion boundary.
type Reserve struct {
	CoinType           string             `json:"coinType"`
	Decimals           int                `json:"decimals"`
	Utilization        float64            `json:"utilization"` // [0,1]
	InterestRateConfig InterestRateConfig `json:"interestRateConfig"`
	ReserveFactor      float64            `json:"reserveFactor"` // [0,1]
	PriceUSD           float64            `json:"priceUSD"`
}

// HumanAmount converts the base-unit amount to display units.
func (d DepositPosition) HumanAmount() float64 {
	return scaleDown(d.UnderlyingAmount, d.Decimals)
}

// HumanAmount converts the base-unit amount to display units.
func (b BorrowPosition) HumanAmount() float64 {
	return scaleDown(b.BorrowedAmount, b.Decimals)
}

func scaleDown(amount int64, decimals int) float64 {
	v := float64(amount)
	for i := 0; i < decimals; i++ {
		v /= 10
	}
	return v
}

// BaseUnits converts a display-unit amount to base units, truncating.
func BaseUnits(amount float64, decimals int) int64 {
	for i := 0; i < decimals; i++ {
		amount *= 10
	}
	return int64(amount)
}

// Validate checks the deposit invariants.
func (d DepositPosition) Validate() error {
	if d.CoinType == "" {
		return fmt.Errorf("deposit: coin_type is required")
	}
	if d.LoanToValue < 0 || d.LoanToValue > 1 {
		return fmt.Errorf("deposit %s: loan_to_value %v outside [0,1]", d.CoinType, d.LoanToValue)
	}
	if d.LiquidationThreshold < 0 || d.LiquidationThreshold > 1 {
		return fmt.Errorf("deposit %s: liquidation_threshold %v outside [0,1]", d.CoinType, d.LiquidationThreshold)
	}
	if d.LiquidationThreshold < d.LoanToValue {
		return fmt.Errorf("deposit %s: liquidation_threshold %v < loan_to_value %v",
			d.CoinType, d.LiquidationThreshold, d.LoanToValue)
	}
	if d.ValueUSD < 0 {
		return fmt.Errorf("deposit %s: value_usd must be >= 0, got %v", d.CoinType, d.ValueUSD)
	}
	return nil
}

// Validate checks the borrow invariants.
func (b BorrowPosition) Validate() error {
	if b.CoinType == "" {
		return fmt.Errorf("borrow: coin_type is required")
	}
	if b.BorrowFactor <= 0 || b.BorrowFactor > 1 {
		return fmt.Errorf("borrow %s: borrow_factor %v outside (0,1]", b.CoinType, b.BorrowFactor)
	}
	if b.ValueUSD < 0 {
		return fmt.Errorf("borrow %s: value_usd must be >= 0, got %v", b.CoinType, b.ValueUSD)
	}
	return nil
}

// Validate checks the reserve invariants.
func (r Reserve) Validate() error {
	if r.CoinType == "" {
		return fmt.Errorf("reserve: coin_type is required")
	}
	if r.Utilization < 0 || r.Utilization > 1 {
		return fmt.Errorf("reserve %s: utilization %v outside [0,1]", r.CoinType, r.Utilization)
	}
	if r.ReserveFactor < 0 || r.ReserveFactor > 1 {
		return fmt.Errorf("reserve %s: reserve_factor %v outside [0,1]", r.CoinType, r.ReserveFactor)
	}
	c := r.InterestRateConfig
	if c.MinBorrowRate > c.OptimalBorrowRate || c.OptimalBorrowRate > c.MaxBorrowRate {
		return fmt.Errorf("reserve %s: rate curve must satisfy min <= optimal <= max, got %v/%v/%v",
			r.CoinType, c.MinBorrowRate, c.OptimalBorrowRate, c.MaxBorrowRate)
	}
	if c.OptimalUtilization <= 0 || c.OptimalUtilization >= 1 {
		return fmt.Errorf("reserve %s: optimal_utilization %v outside (0,1)", r.CoinType, c.OptimalUtilization)
	}
	if r.PriceUSD < 0 {
		return fmt.Errorf("reserve %s: price_usd must be >= 0, got %v", r.CoinType, r.PriceUSD)
	}
	return nil
}

// CloneDeposits returns a copy the caller may mutate freely.
func CloneDeposits(deposits []DepositPosition) []DepositPosition {
	out := make([]DepositPosition, len(deposits))
	copy(out, deposits)
	return out
}

// CloneBorrows returns a copy the caller may mutate freely.
func CloneBorrows(borrows []BorrowPosition) []BorrowPosition {
	out := make([]BorrowPosition, len(borrows))
	copy(out, borrows)
	return out
}
