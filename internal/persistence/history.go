package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lendrisk/internal/observability"
	"lendrisk/internal/risk"
)

// RiskRow is one row in risk_history: an account's computed risk snapshot
// at a point in time. HealthFactor is NULL when the account has no debt
// (the engine reports +Inf, which Postgres numeric cannot hold).
type RiskRow struct {
	AccountID        uuid.UUID
	HealthFactor     sql.NullFloat64
	CurrentLTV       float64
	TotalSuppliedUSD float64
	TotalBorrowedUSD float64
	Status           string
	ComputedAt       time.Time
}

// NewRiskRow converts engine metrics into a persistable row.
func NewRiskRow(accountID uuid.UUID, m risk.RiskMetrics, at time.Time) RiskRow {
	hf := sql.NullFloat64{Float64: float64(m.HealthFactor), Valid: true}
	if m.HealthFactor.IsInf() || math.IsNaN(float64(m.HealthFactor)) {
		hf = sql.NullFloat64{}
	}
	return RiskRow{
		AccountID:        accountID,
		HealthFactor:     hf,
		CurrentLTV:       m.CurrentLTV,
		TotalSuppliedUSD: m.TotalSuppliedUSD,
		TotalBorrowedUSD: m.TotalBorrowedUSD,
		Status:           m.Status.String(),
		ComputedAt:       at,
	}
}

// HistoryWriter writes risk snapshots to Postgres using multi-row INSERT.
type HistoryWriter struct {
	db *sql.DB
}

func NewHistoryWriter(db *sql.DB) *HistoryWriter {
	return &HistoryWriter{db: db}
}

// WriteBatch inserts a batch of risk rows. Re-deliveries produce the same
// (account_id, computed_at) pair, so conflicts are dropped.
func (w *HistoryWriter) WriteBatch(ctx context.Context, rows []RiskRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO risk_history
		(account_id, health_factor, current_ltv, total_supplied_usd, total_borrowed_usd, status, computed_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)

	for i, r := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			r.AccountID, r.HealthFactor, r.CurrentLTV,
			r.TotalSuppliedUSD, r.TotalBorrowedUSD, r.Status, r.ComputedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (account_id, computed_at) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// LoadRecent returns an account's most recent risk snapshots, newest first.
func (w *HistoryWriter) LoadRecent(ctx context.Context, accountID uuid.UUID, limit int) ([]RiskRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT account_id, health_factor, current_ltv, total_supplied_usd, total_borrowed_usd, status, computed_at
		FROM risk_history
		WHERE account_id = $1
		ORDER BY computed_at DESC
		LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query risk history: %w", err)
	}
	defer rows.Close()

	var out []RiskRow
	for rows.Next() {
		var r RiskRow
		if err := rows.Scan(
			&r.AccountID, &r.HealthFactor, &r.CurrentLTV,
			&r.TotalSuppliedUSD, &r.TotalBorrowedUSD, &r.Status, &r.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan risk history row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HistoryWorker drains the history channel and batch-writes to Postgres.
// It runs independently from the ingestion pipeline; a slow database stalls
// history writes but never risk computation or the API.
type HistoryWorker struct {
	writer       *HistoryWriter
	inputChan    <-chan RiskRow
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewHistoryWorker(
	db *sql.DB,
	inputChan <-chan RiskRow,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *HistoryWorker {
	return &HistoryWorker{
		writer:       NewHistoryWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run starts the worker loop. It batches incoming rows and flushes either
// when the batch is full or the flush timeout expires. Blocks until ctx is
// cancelled or the input channel is closed.
func (hw *HistoryWorker) Run(ctx context.Context) error {
	batch := make([]RiskRow, 0, hw.batchSize)

	timer := time.NewTimer(hw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := hw.writer.WriteBatch(context.Background(), batch); err != nil {
					hw.log.Error().Err(err).Int("rows", len(batch)).Msg("final history flush failed")
				}
			}
			return ctx.Err()

		case row, ok := <-hw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := hw.writer.WriteBatch(context.Background(), batch); err != nil {
						hw.log.Error().Err(err).Int("rows", len(batch)).Msg("final history flush failed")
					}
				}
				return nil
			}

			batch = append(batch, row)

			if len(batch) >= hw.batchSize {
				hw.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(hw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				hw.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(hw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. Rows are never
// dropped: it retries until the write succeeds or the context is cancelled,
// in which case one final attempt runs on a background context.
func (hw *HistoryWorker) flushWithRetry(ctx context.Context, rows []RiskRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			hw.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("rows", len(rows)).
				Msg("history write retry")
			if hw.metrics != nil {
				hw.metrics.HistoryRetries.Inc()
			}
			select {
			case <-ctx.Done():
				if err := hw.writer.WriteBatch(context.Background(), rows); err != nil {
					hw.log.Error().Err(err).Msg("final history flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		start := time.Now()
		err := hw.writer.WriteBatch(ctx, rows)
		if err == nil {
			if hw.metrics != nil {
				hw.metrics.HistoryBatchDur.Observe(time.Since(start).Seconds())
				hw.metrics.HistoryBatchSize.Observe(float64(len(rows)))
				hw.metrics.HistoryRowsWritten.Add(float64(len(rows)))
			}
			if attempt > 0 {
				hw.log.Info().Int("retries", attempt).Msg("history flush succeeded after retries")
			}
			return
		}

		if hw.metrics != nil {
			hw.metrics.HistoryErrors.WithLabelValues("write").Inc()
		}
	}
}

// Writer exposes the underlying writer for the query API.
func (hw *HistoryWorker) Writer() *HistoryWriter {
	return hw.writer
}
