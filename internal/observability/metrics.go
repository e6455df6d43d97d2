package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the risk engine service.
type Metrics struct {
	// --- Engine computations ---
	ComputeTotal    *prometheus.CounterVec
	ComputeDuration *prometheus.HistogramVec
	RiskStatusTotal *prometheus.CounterVec

	// --- Snapshot ingestion ---
	SnapshotsIngested   *prometheus.CounterVec
	SnapshotParseErrors *prometheus.CounterVec
	IngestToCompute     prometheus.Histogram
	AccountsTracked     prometheus.Gauge
	ReservesTracked     prometheus.Gauge

	// --- Risk history persistence ---
	HistoryRowsWritten prometheus.Counter
	HistoryBatchSize   prometheus.Histogram
	HistoryBatchDur    prometheus.Histogram
	HistoryErrors      *prometheus.CounterVec
	HistoryRetries     prometheus.Counter

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	computeBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001,
	}

	httpBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5,
	}

	return &Metrics{
		ComputeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendrisk_compute_total",
			Help: "Engine computations performed",
		}, []string{"operation"}),

		ComputeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendrisk_compute_duration_seconds",
			Help:    "Time per engine computation",
			Buckets: computeBuckets,
		}, []string{"operation"}),

		RiskStatusTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendrisk_risk_status_total",
			Help: "Portfolio risk computations by resulting status",
		}, []string{"status"}),

		SnapshotsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendrisk_snapshots_ingested_total",
			Help: "Snapshots accepted from NATS",
		}, []string{"kind"}),

		SnapshotParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendrisk_snapshot_parse_errors_total",
			Help: "Snapshots rejected by the parser or validator",
		}, []string{"kind"}),

		IngestToCompute: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendrisk_ingest_to_compute_seconds",
			Help:    "NATS receive to risk snapshot computed",
			Buckets: httpBuckets,
		}),

		AccountsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lendrisk_accounts_tracked",
			Help: "Accounts with a portfolio snapshot in the store",
		}),

		ReservesTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lendrisk_reserves_tracked",
			Help: "Reserves with a parameter snapshot in the store",
		}),

		HistoryRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendrisk_history_rows_written_total",
			Help: "Risk history rows written to Postgres",
		}),

		HistoryBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendrisk_history_batch_size",
			Help:    "Rows per history batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		HistoryBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendrisk_history_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		HistoryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendrisk_history_errors_total",
			Help: "Risk history persistence errors",
		}, []string{"error_type"}),

		HistoryRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendrisk_history_retries_total",
			Help: "Risk history write retries",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendrisk_http_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendrisk_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: httpBuckets,
		}, []string{"endpoint"}),
	}
}
