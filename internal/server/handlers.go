package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lendrisk/internal/emode"
	"lendrisk/internal/persistence"
	"lendrisk/internal/portfolio"
	"lendrisk/internal/position"
	"lendrisk/internal/rates"
	"lendrisk/internal/risk"
	"lendrisk/internal/simulate"
	"lendrisk/internal/solver"
)

// compoundingPeriods is the convention used when quoting APY next to an APR.
const compoundingPeriods = 365

type positionsRequest struct {
	Deposits []position.DepositPosition `json:"deposits"`
	Borrows  []position.BorrowPosition  `json:"borrows"`
}

func (pr positionsRequest) validate() error {
	for _, d := range pr.Deposits {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	for _, b := range pr.Borrows {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// handleRisk computes the full solvency snapshot for the supplied positions.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	metrics := risk.PortfolioRisk(req.Deposits, req.Borrows, s.thresholds)
	s.observeCompute("portfolio_risk", start)

	s.writeJSON(w, http.StatusOK, metrics)
}

type simulateRequest struct {
	Deposits []position.DepositPosition `json:"deposits"`
	Borrows  []position.BorrowPosition  `json:"borrows"`
	Action   string                     `json:"action"`
	simulate.Request
}

// handleSimulate projects the health factor after a hypothetical transaction.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := (positionsRequest{req.Deposits, req.Borrows}).validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action, ok := parseAction(req.Action)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "action must be one of supply, withdraw, borrow, repay")
		return
	}
	if req.CoinType == "" {
		s.writeError(w, http.StatusBadRequest, "coinType is required")
		return
	}

	txReq := req.Request
	txReq.Action = action

	start := time.Now()
	sim := simulate.Simulate(req.Deposits, req.Borrows, txReq, s.thresholds)
	s.observeCompute("simulate", start)

	s.writeJSON(w, http.StatusOK, sim)
}

type maxSafeRequest struct {
	Deposits []position.DepositPosition `json:"deposits"`
	Borrows  []position.BorrowPosition  `json:"borrows"`
	Action   string                     `json:"action"` // "withdraw" or "borrow"
	CoinType string                     `json:"coinType"`

	// Zero means the configured default target.
	TargetHealthFactor float64 `json:"targetHealthFactor,omitempty"`

	// Borrow-side parameters; ignored for withdrawals.
	PriceUSD     float64 `json:"priceUSD,omitempty"`
	BorrowFactor float64 `json:"borrowFactor,omitempty"`
	Decimals     int     `json:"decimals,omitempty"`
}

// handleMaxSafe solves the largest withdrawal or borrow that holds the target
// health factor.
func (s *Server) handleMaxSafe(w http.ResponseWriter, r *http.Request) {
	var req maxSafeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := (positionsRequest{req.Deposits, req.Borrows}).validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CoinType == "" {
		s.writeError(w, http.StatusBadRequest, "coinType is required")
		return
	}

	targetHF := req.TargetHealthFactor
	if targetHF == 0 {
		targetHF = s.defaultTargetHF
	}
	if targetHF < s.thresholds.Liquidation {
		s.writeError(w, http.StatusBadRequest, "targetHealthFactor below liquidation threshold")
		return
	}

	start := time.Now()
	var result solver.MaxSafeAmount
	switch req.Action {
	case "withdraw":
		result = solver.MaxSafeWithdrawal(req.Deposits, req.Borrows, req.CoinType, targetHF)
	case "borrow":
		result = solver.MaxSafeBorrow(req.Deposits, req.Borrows, req.CoinType,
			req.PriceUSD, req.BorrowFactor, req.Decimals, targetHF)
	default:
		s.writeError(w, http.StatusBadRequest, "action must be withdraw or borrow")
		return
	}
	s.observeCompute("max_safe_"+req.Action, start)

	s.writeJSON(w, http.StatusOK, result)
}

// handleNetAPR aggregates position APRs into the portfolio net rate.
func (s *Server) handleNetAPR(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result := portfolio.NetAPR(req.Deposits, req.Borrows)
	s.observeCompute("net_apr", start)

	s.writeJSON(w, http.StatusOK, result)
}

type ratesRequest struct {
	Utilization        float64                     `json:"utilization"`
	InterestRateConfig position.InterestRateConfig `json:"interestRateConfig"`
	ReserveFactor      float64                     `json:"reserveFactor"`
}

type ratesResponse struct {
	Utilization float64 `json:"utilization"`
	BorrowAPR   float64 `json:"borrowAPR"`
	SupplyAPR   float64 `json:"supplyAPR"`
	BorrowAPY   float64 `json:"borrowAPY"`
	SupplyAPY   float64 `json:"supplyAPY"`
}

// handleRates evaluates the kinked curve for an arbitrary configuration.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if !s.decode(w, r, &req) {
		return
	}

	start := time.Now()
	borrowAPR := rates.BorrowAPR(req.Utilization, req.InterestRateConfig)
	supplyAPR := rates.SupplyAPR(borrowAPR, req.Utilization, req.ReserveFactor)
	s.observeCompute("rates", start)

	s.writeJSON(w, http.StatusOK, ratesResponse{
		Utilization: req.Utilization,
		BorrowAPR:   borrowAPR,
		SupplyAPR:   supplyAPR,
		BorrowAPY:   portfolio.APRToAPY(borrowAPR, compoundingPeriods),
		SupplyAPY:   portfolio.APRToAPY(supplyAPR, compoundingPeriods),
	})
}

type emodeCheckRequest struct {
	Deposits   []position.DepositPosition `json:"deposits"`
	CategoryID string                     `json:"categoryId"`
}

// handleEModeCheck reports whether the collateral set may enter a category.
func (s *Server) handleEModeCheck(w http.ResponseWriter, r *http.Request) {
	var req emodeCheckRequest
	if !s.decode(w, r, &req) {
		return
	}

	category, ok := emode.Lookup(s.categories, req.CategoryID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown category: "+req.CategoryID)
		return
	}

	start := time.Now()
	eligibility := emode.CanEnter(req.Deposits, category)
	s.observeCompute("emode_check", start)

	s.writeJSON(w, http.StatusOK, eligibility)
}

type emodeBenefitRequest struct {
	Deposits   []position.DepositPosition `json:"deposits"`
	Borrows    []position.BorrowPosition  `json:"borrows"`
	CategoryID string                     `json:"categoryId"`
}

// handleEModeBenefit quantifies the borrowing-power gain from a category.
func (s *Server) handleEModeBenefit(w http.ResponseWriter, r *http.Request) {
	var req emodeBenefitRequest
	if !s.decode(w, r, &req) {
		return
	}

	category, ok := emode.Lookup(s.categories, req.CategoryID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown category: "+req.CategoryID)
		return
	}

	start := time.Now()
	benefit := emode.Evaluate(req.Deposits, req.Borrows, category)
	s.observeCompute("emode_benefit", start)

	s.writeJSON(w, http.StatusOK, benefit)
}

func (s *Server) handleEModeCategories(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.categories)
}

type accountRiskResponse struct {
	AccountID string           `json:"accountId"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Risk      risk.RiskMetrics `json:"risk"`
}

// handleAccountRisk evaluates the tracked snapshot of one account.
func (s *Server) handleAccountRisk(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	p, ok := s.store.Portfolio(accountID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "account not tracked")
		return
	}

	start := time.Now()
	metrics := risk.PortfolioRisk(p.Deposits, p.Borrows, s.thresholds)
	s.observeCompute("portfolio_risk", start)

	s.writeJSON(w, http.StatusOK, accountRiskResponse{
		AccountID: accountID.String(),
		UpdatedAt: p.UpdatedAt,
		Risk:      metrics,
	})
}

type historyEntry struct {
	HealthFactor     *float64  `json:"healthFactor"` // null when the account had no debt
	CurrentLTV       float64   `json:"currentLTV"`
	TotalSuppliedUSD float64   `json:"totalSuppliedUSD"`
	TotalBorrowedUSD float64   `json:"totalBorrowedUSD"`
	Status           string    `json:"status"`
	ComputedAt       time.Time `json:"computedAt"`
}

// handleAccountHistory returns the persisted risk trail, newest first.
func (s *Server) handleAccountHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	rows, err := s.history.LoadRecent(r.Context(), accountID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID.String()).Msg("load risk history")
		s.writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	entries := make([]historyEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toHistoryEntry(row))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID.String(),
		"entries":   entries,
	})
}

func toHistoryEntry(row persistence.RiskRow) historyEntry {
	e := historyEntry{
		CurrentLTV:       row.CurrentLTV,
		TotalSuppliedUSD: row.TotalSuppliedUSD,
		TotalBorrowedUSD: row.TotalBorrowedUSD,
		Status:           row.Status,
		ComputedAt:       row.ComputedAt,
	}
	if row.HealthFactor.Valid {
		hf := row.HealthFactor.Float64
		e.HealthFactor = &hf
	}
	return e
}

type reserveRatesResponse struct {
	CoinType    string  `json:"coinType"`
	Utilization float64 `json:"utilization"`
	BorrowAPR   float64 `json:"borrowAPR"`
	SupplyAPR   float64 `json:"supplyAPR"`
	BorrowAPY   float64 `json:"borrowAPY"`
	SupplyAPY   float64 `json:"supplyAPY"`
	PriceUSD    float64 `json:"priceUSD"`
}

// handleReserves lists every tracked reserve with its current rates.
func (s *Server) handleReserves(w http.ResponseWriter, r *http.Request) {
	all := s.store.Reserves()
	out := make([]reserveRatesResponse, 0, len(all))
	for _, reserve := range all {
		out = append(out, reserveToRates(reserve))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleReserveRates evaluates the curve for one tracked reserve.
func (s *Server) handleReserveRates(w http.ResponseWriter, r *http.Request) {
	coinType := chi.URLParam(r, "coinType")
	reserve, ok := s.store.Reserve(coinType)
	if !ok {
		s.writeError(w, http.StatusNotFound, "reserve not tracked: "+coinType)
		return
	}

	start := time.Now()
	resp := reserveToRates(reserve)
	s.observeCompute("rates", start)

	s.writeJSON(w, http.StatusOK, resp)
}

func reserveToRates(reserve position.Reserve) reserveRatesResponse {
	borrowAPR, supplyAPR := rates.ReserveRates(reserve)
	return reserveRatesResponse{
		CoinType:    reserve.CoinType,
		Utilization: reserve.Utilization,
		BorrowAPR:   borrowAPR,
		SupplyAPR:   supplyAPR,
		BorrowAPY:   portfolio.APRToAPY(borrowAPR, compoundingPeriods),
		SupplyAPY:   portfolio.APRToAPY(supplyAPR, compoundingPeriods),
		PriceUSD:    reserve.PriceUSD,
	}
}

func parseAction(s string) (simulate.Action, bool) {
	switch s {
	case "supply":
		return simulate.ActionSupply, true
	case "withdraw":
		return simulate.ActionWithdraw, true
	case "borrow":
		return simulate.ActionBorrow, true
	case "repay":
		return simulate.ActionRepay, true
	default:
		return 0, false
	}
}

func (s *Server) observeCompute(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ComputeTotal.WithLabelValues(operation).Inc()
	s.metrics.ComputeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
