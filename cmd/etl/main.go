package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/geojson"
	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/health-dashboard-etl/internal/adapter/kafka"
	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/source"
	"github.com/couchcryptid/health-dashboard-etl/internal/config"
	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/observability"
	"github.com/couchcryptid/health-dashboard-etl/internal/pipeline"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	loader := source.NewLoader(os.DirFS(cfg.DataDir), source.Files{
		Obesity:   cfg.ObesityFile,
		Hospitals: cfg.HospitalFile,
		Coverage:  cfg.CoverageFile,
		Education: cfg.EducationFile,
	}, logger)
	store := snapshot.NewStore(loader, nil, logger)

	regions := domain.DefaultRegions()
	aggregator := pipeline.NewAggregator(regions, domain.ValueDomain{Min: cfg.DomainFallbackMin, Max: cfg.DomainFallbackMax})
	logger.Info("region table loaded", "version", domain.RegionTableVersion, "regions", regions.Len())

	// Boundary layer for the choropleth route (optional via STATES_GEOJSON_FILE).
	var boundaries *geojson.Layer
	if cfg.StatesGeoJSONFile != "" {
		boundaries, err = loadBoundaries(filepath.Join(cfg.DataDir, cfg.StatesGeoJSONFile), regions)
		if err != nil {
			logger.Error("failed to load boundary layer", "error", err)
			os.Exit(1)
		}
		logger.Info("boundary layer loaded", "features", boundaries.Len(), "unresolved", boundaries.Unresolved())
	}

	// Aggregate publisher (feature-flagged via KAFKA_ENABLED).
	var publisher pipeline.ViewPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, nil, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(store, aggregator, publisher, logger, metrics, nil, cfg.RefreshInterval)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.Deps{
		Snapshots:  store,
		Aggregator: aggregator,
		Boundaries: boundaries,
		Cache:      httpadapter.NewCache(cfg.CacheSize, metrics.CacheLookups),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh pipeline.
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

	logger.Info("shutdown complete")
}

func loadBoundaries(path string, regions *domain.RegionTable) (*geojson.Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return geojson.Load(f, regions)
}
