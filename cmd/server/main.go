// Package main provides the entry point for the acquisition service HTTP server.
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

	"github.com/spinalsurgery-research/acquisition-service/internal/config"
	"github.com/spinalsurgery-research/acquisition-service/internal/database"
	"github.com/spinalsurgery-research/acquisition-service/internal/extract"
	"github.com/spinalsurgery-research/acquisition-service/internal/observability"
	"github.com/spinalsurgery-research/acquisition-service/internal/pdf"
	"github.com/spinalsurgery-research/acquisition-service/internal/pipeline"
	"github.com/spinalsurgery-research/acquisition-service/internal/progress"
	"github.com/spinalsurgery-research/acquisition-service/internal/registry"
	httpserver "github.com/spinalsurgery-research/acquisition-service/internal/server/http"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources/arxiv"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources/pubmed"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources/semanticscholar"
	"github.com/spinalsurgery-research/acquisition-service/internal/storage"
	"github.com/spinalsurgery-research/acquisition-service/internal/translate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// requestRate converts a minimum request spacing into the
// requests-per-second limit the source clients take. Zero defers to the
// client's own default.
func requestRate(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(interval)
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("acquisition-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Set up metrics.
	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Set up the artifact store.
	store, err := storage.NewStore(cfg.Storage.Root, logger)
	if err != nil {
		return fmt.Errorf("create artifact store: %w", err)
	}
	logger.Info().Str("root", store.Root()).Msg("artifact store ready")

	// Create the job registry backed by Postgres.
	jobs := registry.NewPgJobRegistry(db.Pool())

	// Register academic source adapters.
	srcs := sources.NewRegistry()
	srcs.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.Sources.PubMed.BaseURL,
		APIKey:     cfg.Sources.PubMed.APIKey,
		Timeout:    cfg.Sources.PubMed.Timeout,
		RateLimit:  requestRate(cfg.Sources.PubMed.MinRequestInterval),
		MaxResults: cfg.Pipeline.PageSize,
		Enabled:    cfg.Sources.PubMed.Enabled,
	}))
	srcs.Register(arxiv.New(arxiv.Config{
		BaseURL:    cfg.Sources.ArXiv.BaseURL,
		Timeout:    cfg.Sources.ArXiv.Timeout,
		RateLimit:  requestRate(cfg.Sources.ArXiv.MinRequestInterval),
		MaxResults: cfg.Pipeline.PageSize,
		Enabled:    cfg.Sources.ArXiv.Enabled,
	}))
	srcs.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL:    cfg.Sources.SemanticScholar.BaseURL,
		APIKey:     cfg.Sources.SemanticScholar.APIKey,
		Timeout:    cfg.Sources.SemanticScholar.Timeout,
		RateLimit:  requestRate(cfg.Sources.SemanticScholar.MinRequestInterval),
		MaxResults: cfg.Pipeline.PageSize,
		Enabled:    cfg.Sources.SemanticScholar.Enabled,
	}))

	// In-process progress bus for streaming subscribers.
	bus := progress.NewBus(progress.DefaultQueueSize, logger)

	// Optional Kafka mirror of progress events.
	var sink pipeline.EventSink
	if cfg.Events.KafkaEnabled {
		kafkaSink := progress.NewKafkaSink(progress.KafkaSinkConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		}, logger)
		defer func() {
			if closeErr := kafkaSink.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka sink")
			}
		}()
		sink = kafkaSink
		logger.Info().
			Strs("brokers", cfg.Events.KafkaBrokers).
			Str("topic", cfg.Events.KafkaTopic).
			Msg("kafka progress sink enabled")
	}

	// Pipeline stage workers.
	downloader := pdf.NewDownloader(pdf.Config{
		Timeout:       cfg.Downloader.Timeout,
		MaxSizeBytes:  cfg.Downloader.MaxSizeBytes,
		MaxConcurrent: cfg.Downloader.MaxConcurrent,
		MaxAttempts:   cfg.Downloader.MaxAttempts,
		UserAgent:     cfg.Downloader.UserAgent,
	})
	extractor := extract.NewExtractor(extract.Config{
		MaxPages: cfg.Extractor.MaxPages,
	}, logger)
	translator := translate.NewTranslator(
		translate.NewHTTPProvider(translate.HTTPProviderConfig{
			Endpoint: cfg.Translator.Endpoint,
			APIKey:   cfg.Translator.APIKey,
			Timeout:  cfg.Translator.Timeout,
		}),
		translate.Config{
			ChunkSize:       cfg.Translator.ChunkSize,
			MinCallInterval: cfg.Translator.MinCallInterval,
			MaxRetries:      cfg.Translator.MaxRetries,
		},
		logger,
	)

	// Wire the orchestrator.
	manager := pipeline.NewManager(pipeline.ManagerConfig{
		MaxConcurrentJobs: cfg.Pipeline.MaxConcurrentJobs,
		MaxPagesPerSource: cfg.Pipeline.MaxPagesPerSource,
		PageSize:          cfg.Pipeline.PageSize,
		MaxDownloads:      int(cfg.Downloader.MaxConcurrent),
	}, jobs, store, srcs, bus, sink, downloader, extractor, translator, metrics, logger)

	// Pick up jobs left running by a previous process.
	if err := manager.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile interrupted jobs: %w", err)
	}

	// HTTP server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    5 * time.Minute, // Long timeout for streaming subscribers.
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, manager, store, bus, db, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", httpCfg.Address).Msg("HTTP server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("acquisition-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down acquisition-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Stop running jobs; they resume from their checkpoints on restart.
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("pipeline shutdown error")
	}

	logger.Info().Msg("acquisition-service shutdown complete")
	return nil
}
