package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"lendrisk/internal/position"
)

func suiDeposit(amount int64, price float64) position.DepositPosition {
	return position.DepositPosition{
		CoinType:             "SUI",
		Decimals:             9,
		UnderlyingAmount:     amount,
		ValueUSD:             float64(amount) / 1e9 * price,
		LoanToValue:          0.7,
		LiquidationThreshold: 0.75,
		IsCollateral:         true,
	}
}

// ============================================================================
// Test: copy-on-read isolation
// ============================================================================

func TestPortfolioReadIsACopy(t *testing.T) {
	s := New()
	id := uuid.New()
	s.PutPortfolio(Portfolio{
		AccountID: id,
		Deposits:  []position.DepositPosition{suiDeposit(1e9, 2)},
		UpdatedAt: time.Now(),
	})

	got, ok := s.Portfolio(id)
	if !ok {
		t.Fatal("portfolio not found")
	}
	got.Deposits[0].ValueUSD = 999

	again, _ := s.Portfolio(id)
	if again.Deposits[0].ValueUSD == 999 {
		t.Error("mutation through a read leaked into the store")
	}
}

func TestPutPortfolioCopiesInput(t *testing.T) {
	s := New()
	id := uuid.New()
	deposits := []position.DepositPosition{suiDeposit(1e9, 2)}
	s.PutPortfolio(Portfolio{AccountID: id, Deposits: deposits})

	deposits[0].ValueUSD = 999
	got, _ := s.Portfolio(id)
	if got.Deposits[0].ValueUSD == 999 {
		t.Error("store shares the caller's slice")
	}
}

func TestUnknownAccount(t *testing.T) {
	s := New()
	if _, ok := s.Portfolio(uuid.New()); ok {
		t.Error("unknown account should not be found")
	}
}

// ============================================================================
// Test: reserves
// ============================================================================

func TestReservesSorted(t *testing.T) {
	s := New()
	s.PutReserve(position.Reserve{CoinType: "USDC"})
	s.PutReserve(position.Reserve{CoinType: "BTC"})
	s.PutReserve(position.Reserve{CoinType: "SUI"})

	all := s.Reserves()
	if len(all) != 3 {
		t.Fatalf("got %d reserves", len(all))
	}
	if all[0].CoinType != "BTC" || all[1].CoinType != "SUI" || all[2].CoinType != "USDC" {
		t.Errorf("not sorted: %v %v %v", all[0].CoinType, all[1].CoinType, all[2].CoinType)
	}
}

// ============================================================================
// Test: repricing
// ============================================================================

func TestRepriceAllRecomputesUSDValues(t *testing.T) {
	s := New()
	id := uuid.New()
	// 3 SUI at $2 = $6.
	s.PutPortfolio(Portfolio{
		AccountID: id,
		Deposits:  []position.DepositPosition{suiDeposit(3e9, 2)},
		Borrows: []position.BorrowPosition{{
			CoinType:       "SUI",
			Decimals:       9,
			BorrowedAmount: 1e9,
			ValueUSD:       2,
			BorrowFactor:   1,
		}},
	})
	s.PutReserve(position.Reserve{CoinType: "SUI", PriceUSD: 2})

	touched := s.RepriceAll("SUI", 3)
	if len(touched) != 1 || touched[0] != id {
		t.Fatalf("touched = %v, want [%v]", touched, id)
	}

	p, _ := s.Portfolio(id)
	if p.Deposits[0].ValueUSD != 9 {
		t.Errorf("deposit value: got %v, want 9", p.Deposits[0].ValueUSD)
	}
	if p.Borrows[0].ValueUSD != 3 {
		t.Errorf("borrow value: got %v, want 3", p.Borrows[0].ValueUSD)
	}

	r, _ := s.Reserve("SUI")
	if r.PriceUSD != 3 {
		t.Errorf("reserve price: got %v, want 3", r.PriceUSD)
	}
}

func TestRepriceAllSkipsUnrelatedAccounts(t *testing.T) {
	s := New()
	id := uuid.New()
	s.PutPortfolio(Portfolio{
		AccountID: id,
		Deposits: []position.DepositPosition{{
			CoinType: "USDC", Decimals: 6, UnderlyingAmount: 1e6, ValueUSD: 1,
		}},
	})

	if touched := s.RepriceAll("SUI", 3); len(touched) != 0 {
		t.Errorf("accounts without the asset should not be touched, got %v", touched)
	}
}
