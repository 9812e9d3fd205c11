package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfscout/backend/config"
	httpDelivery "github.com/shelfscout/backend/internal/delivery/http"
	"github.com/shelfscout/backend/internal/domain"
	"github.com/shelfscout/backend/internal/infrastructure/cache"
	"github.com/shelfscout/backend/internal/infrastructure/csvexport"
	"github.com/shelfscout/backend/internal/infrastructure/feed"
	"github.com/shelfscout/backend/internal/infrastructure/filesource"
	"github.com/shelfscout/backend/internal/infrastructure/logging"
	"github.com/shelfscout/backend/internal/infrastructure/postgres"
	"github.com/shelfscout/backend/internal/infrastructure/sqlite"
	"github.com/shelfscout/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	logger.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Type).
		Int("sources", len(cfg.Sources)).
		Msg("starting ShelfScout backend v1.0.0")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Initialize infrastructure dependencies
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	exporters, closeExporters, err := openExporters(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeExporters()

	sources := map[string]domain.RawListingSource{
		"feed": feed.NewClient(feed.ClientConfig{
			Timeout:           cfg.Feed.Timeout,
			RequestsPerSecond: cfg.Feed.RequestsPerSecond,
			Burst:             cfg.Feed.Burst,
			MaxRetries:        cfg.Feed.MaxRetries,
			UserAgent:         cfg.Feed.UserAgent,
		}, logger),
		"file": filesource.New(logger),
	}

	// Initialize usecase layer
	settings, err := cfg.PipelineSettings()
	if err != nil {
		return err
	}
	pipeline, err := usecase.NewPipeline(settings, logger)
	if err != nil {
		return err
	}

	effective := pipeline.Config()
	logger.Info().
		Int("workers", effective.Workers).
		Float64("similarity_threshold", effective.SimilarityThreshold).
		Float64("price_tolerance", effective.PriceTolerance).
		Float64("markup", effective.Markup).
		Str("currency", effective.WorkingCurrency).
		Str("rules", effective.Rules.Version).
		Msg("pipeline configured")

	runs := usecase.NewRunService(pipeline, sources, repo, exporters, usecase.RunServiceConfig{
		Sources:      cfg.Sources,
		HistoryLimit: cfg.Storage.HistoryLimit,
	}, logger)
	trends := usecase.NewTrendService(repo, logger)

	// Create HTTP handler and router
	handler := httpDelivery.NewHandler(runs, trends, cfg.Ranking.DefaultTopK, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRepository(ctx context.Context, cfg *config.Config) (domain.SnapshotRepository, func(), error) {
	switch cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := cache.NewSnapshotStore(cfg.Storage.SnapshotTTL, cfg.Storage.Capacity)
		return store, func() { _ = store.Close() }, nil
	}
}

func openExporters(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]domain.Exporter, func(), error) {
	var exporters []domain.Exporter
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Export.CSVDir != "" {
		exporters = append(exporters, csvexport.NewFileExporter(cfg.Export.CSVDir, usecase.SnapshotRows))
		logger.Info().Str("dir", cfg.Export.CSVDir).Msg("csv export enabled")
	}

	if cfg.Export.PostgresDSN != "" {
		pg, err := postgres.NewExporter(ctx, postgres.Config{
			DSN:       cfg.Export.PostgresDSN,
			Schema:    cfg.Export.PostgresSchema,
			BatchSize: cfg.Export.BatchSize,
		}, usecase.SnapshotRows, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		exporters = append(exporters, pg)
		logger.Info().Str("schema", cfg.Export.PostgresSchema).Msg("postgres export enabled")
	}

	return exporters, closeAll, nil
}
