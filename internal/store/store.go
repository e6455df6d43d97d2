package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lendrisk/internal/position"
)

// Portfolio is one account's current positions as last reported upstream.
type Portfolio struct {
	AccountID uuid.UUID
	Deposits  []position.DepositPosition
	Borrows   []position.BorrowPosition
	UpdatedAt time.Time
}

// Store holds the latest portfolio and reserve snapshots in memory.
// The ingestion pipeline writes, the HTTP handlers read. All reads return
// copies so handlers can hand slices to the engine without racing the
// pipeline.
type Store struct {
	mu         sync.RWMutex
	portfolios map[uuid.UUID]Portfolio
	reserves   map[string]position.Reserve
}

func New() *Store {
	return &Store{
		portfolios: make(map[uuid.UUID]Portfolio),
		reserves:   make(map[string]position.Reserve),
	}
}

// PutPortfolio replaces an account's portfolio snapshot.
func (s *Store) PutPortfolio(p Portfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.AccountID] = Portfolio{
		AccountID: p.AccountID,
		Deposits:  position.CloneDeposits(p.Deposits),
		Borrows:   position.CloneBorrows(p.Borrows),
		UpdatedAt: p.UpdatedAt,
	}
}

// Portfolio returns a copy of the account's latest snapshot.
func (s *Store) Portfolio(accountID uuid.UUID) (Portfolio, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[accountID]
	if !ok {
		return Portfolio{}, false
	}
	return Portfolio{
		AccountID: p.AccountID,
		Deposits:  position.CloneDeposits(p.Deposits),
		Borrows:   position.CloneBorrows(p.Borrows),
		UpdatedAt: p.UpdatedAt,
	}, true
}

// AccountCount returns the number of tracked accounts.
func (s *Store) AccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.portfolios)
}

// PutReserve replaces one reserve's parameter snapshot.
func (s *Store) PutReserve(r position.Reserve) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[r.CoinType] = r
}

// Reserve returns one reserve's latest snapshot.
func (s *Store) Reserve(coinType string) (position.Reserve, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reserves[coinType]
	return r, ok
}

// Reserves returns all reserve snapshots sorted by coin type.
func (s *Store) Reserves() []position.Reserve {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]position.Reserve, 0, len(s.reserves))
	for _, r := range s.reserves {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoinType < out[j].CoinType })
	return out
}

// ReserveCount returns the number of tracked reserves.
func (s *Store) ReserveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reserves)
}

// RepriceAll applies a new oracle price to one asset across every tracked
// portfolio and the reserve, recomputing USD values from base-unit amounts.
// Returns the account IDs whose portfolios changed so the caller can
// recompute their risk.
func (s *Store) RepriceAll(coinType string, priceUSD float64) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.reserves[coinType]; ok {
		r.PriceUSD = priceUSD
		s.reserves[coinType] = r
	}

	var touched []uuid.UUID
	for id, p := range s.portfolios {
		changed := false
		for i := range p.Deposits {
			if p.Deposits[i].CoinType == coinType {
				p.Deposits[i].ValueUSD = p.Deposits[i].HumanAmount() * priceUSD
				changed = true
			}
		}
		for i := range p.Borrows {
			if p.Borrows[i].CoinType == coinType {
				p.Borrows[i].ValueUSD = p.Borrows[i].HumanAmount() * priceUSD
				changed = true
			}
		}
		if changed {
			s.portfolios[id] = p
			touched = append(touched, id)
		}
	}
	return touched
}
