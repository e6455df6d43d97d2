package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lendrisk/internal/observability"
	"lendrisk/internal/persistence"
	"lendrisk/internal/risk"
	"lendrisk/internal/store"
)

// Pipeline drains raw snapshots from NATS, applies them to the in-memory
// store, recomputes risk for the affected accounts, and emits history rows.
//
// Ack discipline: a message is acked once the store reflects it. Parse and
// validation failures are acked too (redelivery cannot fix a bad payload);
// only shutdown mid-flight naks.
type Pipeline struct {
	store       *store.Store
	thresholds  risk.Thresholds
	snapChan    <-chan RawSnapshot
	historyChan chan<- persistence.RiskRow
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewPipeline(
	st *store.Store,
	thresholds risk.Thresholds,
	snapChan <-chan RawSnapshot,
	historyChan chan<- persistence.RiskRow,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		store:       st,
		thresholds:  thresholds,
		snapChan:    snapChan,
		historyChan: historyChan,
		metrics:     metrics,
		log:         log,
	}
}

// Run drains the snapshot channel until ctx is cancelled or the channel
// closes.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-p.snapChan:
			if !ok {
				return nil
			}
			p.handle(ctx, raw)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, raw RawSnapshot) {
	switch raw.Kind {
	case KindPositions:
		p.handlePositions(ctx, raw)
	case KindReserves:
		p.handleReserves(raw)
	case KindPrices:
		p.handlePrices(ctx, raw)
	default:
		p.log.Warn().Str("subject", raw.Subject).Str("kind", raw.Kind).Msg("unknown snapshot kind")
		raw.AckFunc()
	}
}

func (p *Pipeline) handlePositions(ctx context.Context, raw RawSnapshot) {
	portfolio, err := ParsePortfolio(raw.Data)
	if err != nil {
		p.rejectSnapshot(raw, err)
		return
	}

	p.store.PutPortfolio(portfolio)
	raw.AckFunc()

	p.recordIngest(raw)
	p.recomputeRisk(ctx, portfolio.AccountID, raw.ReceivedAt)
	p.metrics.AccountsTracked.Set(float64(p.store.AccountCount()))
}

func (p *Pipeline) handleReserves(raw RawSnapshot) {
	reserve, err := ParseReserve(raw.Data)
	if err != nil {
		p.rejectSnapshot(raw, err)
		return
	}

	p.store.PutReserve(reserve)
	raw.AckFunc()

	p.recordIngest(raw)
	p.metrics.ReservesTracked.Set(float64(p.store.ReserveCount()))
}

func (p *Pipeline) handlePrices(ctx context.Context, raw RawSnapshot) {
	price, err := ParsePrice(raw.Data)
	if err != nil {
		p.rejectSnapshot(raw, err)
		return
	}

	touched := p.store.RepriceAll(price.CoinType, price.PriceUSD)
	raw.AckFunc()

	p.recordIngest(raw)
	for _, accountID := range touched {
		p.recomputeRisk(ctx, accountID, raw.ReceivedAt)
	}
}

// recomputeRisk evaluates the account's current snapshot and queues a
// history row. The send blocks: a slow database backpressures ingestion
// rather than silently losing history.
func (p *Pipeline) recomputeRisk(ctx context.Context, accountID uuid.UUID, receivedAt time.Time) {
	portfolio, ok := p.store.Portfolio(accountID)
	if !ok {
		return
	}

	start := time.Now()
	metrics := risk.PortfolioRisk(portfolio.Deposits, portfolio.Borrows, p.thresholds)
	p.metrics.ComputeDuration.WithLabelValues("portfolio_risk").Observe(time.Since(start).Seconds())
	p.metrics.ComputeTotal.WithLabelValues("portfolio_risk").Inc()
	p.metrics.RiskStatusTotal.WithLabelValues(metrics.Status.String()).Inc()
	p.metrics.IngestToCompute.Observe(time.Since(receivedAt).Seconds())

	if metrics.Status == risk.StatusLiquidatable {
		p.log.Warn().
			Str("account_id", accountID.String()).
			Float64("health_factor", float64(metrics.HealthFactor)).
			Msg("account liquidatable")
	}

	row := persistence.NewRiskRow(accountID, metrics, time.Now().UTC())
	select {
	case p.historyChan <- row:
	case <-ctx.Done():
	}
}

func (p *Pipeline) rejectSnapshot(raw RawSnapshot, err error) {
	p.log.Warn().Err(err).Str("subject", raw.Subject).Str("kind", raw.Kind).Msg("snapshot rejected")
	p.metrics.SnapshotParseErrors.WithLabelValues(raw.Kind).Inc()
	raw.AckFunc()
}

func (p *Pipeline) recordIngest(raw RawSnapshot) {
	p.metrics.SnapshotsIngested.WithLabelValues(raw.Kind).Inc()
}
