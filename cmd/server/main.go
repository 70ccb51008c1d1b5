package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/bluesky-monitor/internal/bluesky"
	"github.com/blackmichael/bluesky-monitor/internal/config"
	"github.com/blackmichael/bluesky-monitor/internal/domain"
	"github.com/blackmichael/bluesky-monitor/internal/firehose"
	"github.com/blackmichael/bluesky-monitor/internal/httpserver"
	"github.com/blackmichael/bluesky-monitor/internal/metrics"
	"github.com/blackmichael/bluesky-monitor/internal/sqlite"
)

const summarizeInterval = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Normalizer construction validates the exclusion pattern and time
	// zone, so bad configuration fails before any fetch or storage call.
	normalizer, err := domain.NewNormalizer(cfg.ExcludePattern, cfg.Timezone)
	if err != nil {
		return fmt.Errorf("create normalizer: %w", err)
	}

	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("connected to database", "path", cfg.DatabasePath)

	m := metrics.New()
	client := bluesky.NewClient(cfg.PDS, cfg.Handle, cfg.AppPassword)

	pipeline := domain.NewPipeline(
		domain.PipelineConfig{
			Query:       cfg.SearchQuery,
			Actor:       cfg.Handle,
			SearchLimit: cfg.SearchLimit,
			FeedLimit:   cfg.FeedLimit,
		},
		client,
		normalizer,
		repo,
		repo,
		m,
		logger,
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Run the ingestion pipeline on its schedule in the background
	go pipeline.StartSchedule(ctx, cfg.IngestInterval)

	// Run the stubbed summarization job
	go domain.NewSummarizeJob(logger).Start(ctx, summarizeInterval)

	// Optionally tail the live firehose into the same dedup path
	if cfg.FirehoseURL != "" {
		ingestor, err := domain.NewLiveIngestor([]string{cfg.SearchQuery}, normalizer, repo, logger)
		if err != nil {
			return fmt.Errorf("create live ingestor: %w", err)
		}
		subscriber := firehose.NewSubscriber(cfg.FirehoseURL, ingestor, repo, m, logger)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("firehose subscriber exited with error", "error", err)
			}
		}()
	}

	// Start the HTTP server
	server := httpserver.NewServer(cfg, repo, m, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "interval", cfg.IngestInterval)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
