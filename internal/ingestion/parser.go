package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lendrisk/internal/position"
	"lendrisk/internal/store"
)

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	CoinType             string  `json:"coin_type"`
	Decimals             int     `json:"decimals"`
	UnderlyingAmount     int64   `json:"underlying_amount"`
	ValueUSD             float64 `json:"value_usd"`
	LoanToValue          float64 `json:"loan_to_value"`
	LiquidationThreshold float64 `json:"liquidation_threshold"`
	IsCollateral         *bool   `json:"is_collateral"` // absent means true
	CurrentAPR           float64 `json:"current_apr"`
	RewardAPR            float64 `json:"reward_apr"`
}

type borrowJSON struct {
	CoinType       string  `json:"coin_type"`
	Decimals       int     `json:"decimals"`
	BorrowedAmount int64   `json:"borrowed_amount"`
	ValueUSD       float64 `json:"value_usd"`
	BorrowFactor   float64 `json:"borrow_factor"`
	CurrentAPR     float64 `json:"current_apr"`
	RewardAPR      float64 `json:"reward_apr"`
}

type portfolioJSON struct {
	AccountID   string        `json:"account_id"`
	Deposits    []depositJSON `json:"deposits"`
	Borrows     []borrowJSON  `json:"borrows"`
	TimestampUs int64         `json:"timestamp_us"`
}

type reserveJSON struct {
	CoinType    string  `json:"coin_type"`
	Decimals    int     `json:"decimals"`
	Utilization float64 `json:"utilization"`

	MinBorrowRate      float64 `json:"min_borrow_rate"`
	OptimalBorrowRate  float64 `json:"optimal_borrow_rate"`
	MaxBorrowRate      float64 `json:"max_borrow_rate"`
	OptimalUtilization float64 `json:"optimal_utilization"`

	// Some producers publish reserve_factor, older ones reserve_ratio.
	// Both mean the protocol's interest skim; reserve_factor wins when
	// both are present.
	ReserveFactor *float64 `json:"reserve_factor"`
	ReserveRatio  *float64 `json:"reserve_ratio"`

	PriceUSD float64 `json:"price_usd"`
}

type priceJSON struct {
	CoinType    string  `json:"coin_type"`
	PriceUSD    float64 `json:"price_usd"`
	TimestampUs int64   `json:"timestamp_us"`
}

// ParsePortfolio converts a positions payload into a validated store.Portfolio.
func ParsePortfolio(data []byte) (store.Portfolio, error) {
	var j portfolioJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return store.Portfolio{}, fmt.Errorf("parse portfolio: %w", err)
	}

	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return store.Portfolio{}, fmt.Errorf("parse account_id: %w", err)
	}

	p := store.Portfolio{
		AccountID: accountID,
		Deposits:  make([]position.DepositPosition, 0, len(j.Deposits)),
		Borrows:   make([]position.BorrowPosition, 0, len(j.Borrows)),
		UpdatedAt: time.UnixMicro(j.TimestampUs),
	}
	if j.TimestampUs == 0 {
		p.UpdatedAt = time.Now()
	}

	for _, dj := range j.Deposits {
		d := position.DepositPosition{
			CoinType:             dj.CoinType,
			Decimals:             dj.Decimals,
			UnderlyingAmount:     dj.UnderlyingAmount,
			ValueUSD:             dj.ValueUSD,
			LoanToValue:          dj.LoanToValue,
			LiquidationThreshold: dj.LiquidationThreshold,
			IsCollateral:         dj.IsCollateral == nil || *dj.IsCollateral,
			CurrentAPR:           dj.CurrentAPR,
			RewardAPR:            dj.RewardAPR,
		}
		// Disabled collateral contributes nothing to borrowing power.
		if !d.IsCollateral {
			d.LoanToValue = 0
			d.LiquidationThreshold = 0
		}
		if err := d.Validate(); err != nil {
			return store.Portfolio{}, err
		}
		p.Deposits = append(p.Deposits, d)
	}

	for _, bj := range j.Borrows {
		b := position.BorrowPosition{
			CoinType:       bj.CoinType,
			Decimals:       bj.Decimals,
			BorrowedAmount: bj.BorrowedAmount,
			ValueUSD:       bj.ValueUSD,
			BorrowFactor:   bj.BorrowFactor,
			CurrentAPR:     bj.CurrentAPR,
			RewardAPR:      bj.RewardAPR,
		}
		if err := b.Validate(); err != nil {
			return store.Portfolio{}, err
		}
		p.Borrows = append(p.Borrows, b)
	}

	return p, nil
}

// ParseReserve converts a reserves payload into a validated position.Reserve.
func ParseReserve(data []byte) (position.Reserve, error) {
	var j reserveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return position.Reserve{}, fmt.Errorf("parse reserve: %w", err)
	}

	var factor float64
	switch {
	case j.ReserveFactor != nil:
		factor = *j.ReserveFactor
	case j.ReserveRatio != nil:
		factor = *j.ReserveRatio
	}

	r := position.Reserve{
		CoinType:    j.CoinType,
		Decimals:    j.Decimals,
		Utilization: j.Utilization,
		InterestRateConfig: position.InterestRateConfig{
			MinBorrowRate:      j.MinBorrowRate,
			OptimalBorrowRate:  j.OptimalBorrowRate,
			MaxBorrowRate:      j.MaxBorrowRate,
			OptimalUtilization: j.OptimalUtilization,
		},
		ReserveFactor: factor,
		PriceUSD:      j.PriceUSD,
	}
	if err := r.Validate(); err != nil {
		return position.Reserve{}, err
	}
	return r, nil
}

// PriceUpdate is one parsed oracle price tick.
type PriceUpdate struct {
	CoinType  string
	PriceUSD  float64
	Timestamp time.Time
}

// ParsePrice converts a prices payload into a PriceUpdate.
func ParsePrice(data []byte) (PriceUpdate, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return PriceUpdate{}, fmt.Errorf("parse price: %w", err)
	}
	if j.CoinType == "" {
		return PriceUpdate{}, fmt.Errorf("price: coin_type is required")
	}
	if j.PriceUSD <= 0 {
		return PriceUpdate{}, fmt.Errorf("price %s: price_usd must be > 0, got %v", j.CoinType, j.PriceUSD)
	}
	return PriceUpdate{
		CoinType:  j.CoinType,
		PriceUSD:  j.PriceUSD,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
