package persistence

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lendrisk/internal/risk"
	"lendrisk/internal/testutil"
)

// ============================================================================
// Test: NewRiskRow conversion
// ============================================================================

func TestNewRiskRow(t *testing.T) {
	id := uuid.New()
	m := risk.RiskMetrics{
		HealthFactor:     risk.Ratio(1.5),
		CurrentLTV:       0.5,
		TotalSuppliedUSD: 1000,
		TotalBorrowedUSD: 500,
		Status:           risk.StatusSafe,
	}
	at := time.Now().UTC()

	row := NewRiskRow(id, m, at)
	if !row.HealthFactor.Valid || row.HealthFactor.Float64 != 1.5 {
		t.Errorf("health_factor: got %+v", row.HealthFactor)
	}
	if row.Status != "safe" {
		t.Errorf("status: got %q", row.Status)
	}
	if row.AccountID != id || !row.ComputedAt.Equal(at) {
		t.Errorf("identity fields: got %+v", row)
	}
}

func TestNewRiskRow_InfinityBecomesNull(t *testing.T) {
	m := risk.RiskMetrics{
		HealthFactor: risk.Ratio(math.Inf(1)),
		Status:       risk.StatusSafe,
	}
	row := NewRiskRow(uuid.New(), m, time.Now())
	if row.HealthFactor.Valid {
		t.Error("infinite health factor must map to NULL")
	}
}

// ============================================================================
// Test: Postgres round-trip (integration)
// ============================================================================

func TestHistoryWriterRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := setupHistoryDB(t)
	defer cleanup()

	ctx := context.Background()
	w := NewHistoryWriter(db)
	id := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)

	rows := []RiskRow{
		{
			AccountID:        id,
			HealthFactor:     sql.NullFloat64{Float64: 1.5, Valid: true},
			CurrentLTV:       0.5,
			TotalSuppliedUSD: 1000,
			TotalBorrowedUSD: 500,
			Status:           "safe",
			ComputedAt:       base,
		},
		{
			AccountID:  id,
			Status:     "safe", // no debt: NULL health factor
			ComputedAt: base.Add(time.Second),
		},
	}

	if err := w.WriteBatch(ctx, rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	// Duplicate write is a no-op, not an error.
	if err := w.WriteBatch(ctx, rows); err != nil {
		t.Fatalf("duplicate write batch: %v", err)
	}

	got, err := w.LoadRecent(ctx, id, 10)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	// Newest first.
	if got[0].HealthFactor.Valid {
		t.Error("newest row should carry NULL health factor")
	}
	if !got[1].HealthFactor.Valid || got[1].HealthFactor.Float64 != 1.5 {
		t.Errorf("oldest row health factor: got %+v", got[1].HealthFactor)
	}
}

func TestHistoryWorkerFlushesBatch(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := setupHistoryDB(t)
	defer cleanup()

	in := make(chan RiskRow, 16)
	worker := NewHistoryWorker(db, in, 4, 50*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	id := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		in <- RiskRow{
			AccountID:    id,
			HealthFactor: sql.NullFloat64{Float64: 2.0, Valid: true},
			Status:       "safe",
			ComputedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}
	}

	// One full batch flushes immediately; the remainder on the flush timer.
	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	got, err := worker.Writer().LoadRecent(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("got %d rows, want 5", len(got))
	}
}

func setupHistoryDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)

	m := NewMigrator(db, migrationsDir(), zerolog.Nop())
	if err := m.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return db, cleanup
}

func migrationsDir() string {
	return "../../migrations"
}
