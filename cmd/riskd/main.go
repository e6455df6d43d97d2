package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendrisk/internal/config"
	"lendrisk/internal/emode"
	"lendrisk/internal/ingestion"
	"lendrisk/internal/observability"
	"lendrisk/internal/persistence"
	"lendrisk/internal/server"
	"lendrisk/internal/store"
)

func main() {
	configPath := flag.String("config", "riskd.toml", "path to the TOML config file")
	flag.Parse()

	log := observability.NewLogger("riskd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- In-memory store ---
	st := store.New()

	// --- NATS ---
	nc, js, err := ingestion.Connect(cfg.NATSURL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure nats streams")
	}

	snapChan := make(chan ingestion.RawSnapshot, cfg.SnapshotChanSize)
	subscriber := ingestion.NewSubscriber(js, snapChan, observability.NewLogger("subscriber"))
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	// --- History worker ---
	historyChan := make(chan persistence.RiskRow, cfg.HistoryChanSize)
	historyWorker := persistence.NewHistoryWorker(
		db, historyChan, cfg.HistoryBatchSize, cfg.HistoryFlushTimeout(),
		metrics, observability.NewLogger("history"),
	)

	// --- Pipeline ---
	pipeline := ingestion.NewPipeline(
		st, cfg.Thresholds(), snapChan, historyChan,
		metrics, observability.NewLogger("pipeline"),
	)

	// --- HTTP API ---
	api := server.New(cfg.HTTPAddr, &server.Deps{
		Store:           st,
		History:         historyWorker.Writer(),
		Thresholds:      cfg.Thresholds(),
		DefaultTargetHF: cfg.Risk.DefaultTargetHF,
		Categories:      emode.DefaultCategories,
		Health:          health,
		Metrics:         metrics,
		Log:             observability.NewLogger("http"),
	})

	// --- Start goroutines ---
	errChan := make(chan error, 4)

	go func() { errChan <- historyWorker.Run(ctx) }()
	go func() { errChan <- pipeline.Run(ctx) }()
	go func() { errChan <- api.Run(ctx) }()

	// Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	health.SetReady(true)
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("riskd ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("goroutine failed, shutting down")
		}
	}

	health.SetReady(false)
	cancel()
	subscriber.Stop()

	// Give the history worker time to flush its final batch.
	time.Sleep(500 * time.Millisecond)
	close(historyChan)

	log.Info().Msg("riskd shutdown complete")
}
