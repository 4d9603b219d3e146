package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/station-demand-service/internal/adapter/blob"
	"github.com/couchcryptid/station-demand-service/internal/adapter/duckdb"
	httpadapter "github.com/couchcryptid/station-demand-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/station-demand-service/internal/adapter/kafka"
	"github.com/couchcryptid/station-demand-service/internal/config"
	"github.com/couchcryptid/station-demand-service/internal/observability"
	"github.com/couchcryptid/station-demand-service/internal/pipeline"
	"github.com/couchcryptid/station-demand-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := duckdb.Open(ctx, cfg.DuckDBPath, logger)
	if err != nil {
		logger.Error("failed to open demand store", "error", err, "path", cfg.DuckDBPath)
		os.Exit(1)
	}

	blobs, err := blob.Open(blob.Options{Dir: cfg.BlobPath, TTL: cfg.BlobURLTTL, BaseURL: cfg.PublicBaseURL}, logger)
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	breaker := store.NewBreaker(store.DefaultBreakerConfig("duckdb"), logger, metrics)
	reader := store.NewPagedReader(store.Guard(db, breaker), cfg.StorePageLimit, cfg.StoreConcurrency, logger, metrics)
	analyzer := pipeline.NewAnalyzer(reader, db, pipeline.OptionsFromConfig(cfg.Analysis), nil, logger, metrics)

	publishers := []pipeline.ReportPublisher{pipeline.NewReportArchive(blobs, logger, metrics)}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		publishers = append(publishers, writer)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(analyzer, cfg.AnalysisInterval, nil, logger, metrics, publishers...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:    readiness{pipeline: p, db: db},
		Analyzer: analyzer,
		Latest:   p,
		Stations: pipeline.NewStationService(db),
		Demand:   pipeline.NewDemandService(reader, db, blobs, logger, metrics),
		Blobs:    blobs,
		PageSize: cfg.ExportPageSize,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduled analysis.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := blobs.Close(); err != nil {
		logger.Error("blob store close error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("demand store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// readiness requires a reachable demand store and a completed scheduled run.
type readiness struct {
	pipeline *pipeline.Pipeline
	db       *duckdb.Store
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("demand store: %w", err)
	}
	return r.pipeline.CheckReadiness(ctx)
}
