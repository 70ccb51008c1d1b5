package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/blackmichael/bluesky-monitor/internal/bluesky"
	"github.com/blackmichael/bluesky-monitor/internal/domain"
	"github.com/blackmichael/bluesky-monitor/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		handle       string
		password     string
		pds          string
		databasePath string
		exclude      string
		timezone     string
		query        string
		searchLimit  int
		feedLimit    int
	)

	flag.StringVar(&handle, "handle", envOrDefault("BLUESKY_HANDLE", ""), "BlueSky handle (e.g. user.bsky.social)")
	flag.StringVar(&password, "password", envOrDefault("BLUESKY_APP_PASSWORD", ""), "BlueSky app password")
	flag.StringVar(&pds, "pds", envOrDefault("BLUESKY_PDS", "https://bsky.social"), "PDS service URL")
	flag.StringVar(&databasePath, "db", envOrDefault("DATABASE_PATH", ""), "SQLite database path")
	flag.StringVar(&exclude, "exclude", envOrDefault("HARD_EXCLUDE_REGEX", ""), "Hard-exclusion regular expression")
	flag.StringVar(&timezone, "timezone", envOrDefault("TIMEZONE", "America/Chicago"), "IANA time zone for local-day bucketing")
	flag.StringVar(&query, "query", envOrDefault("SEARCH_QUERY", "ICE Chicago"), "Keyword search query")
	flag.IntVar(&searchLimit, "search-limit", 50, "Max keyword search results")
	flag.IntVar(&feedLimit, "feed-limit", 30, "Max author feed results")
	flag.Parse()

	if handle == "" || password == "" {
		return fmt.Errorf("--handle and --password are required (or set BLUESKY_HANDLE and BLUESKY_APP_PASSWORD)")
	}
	if databasePath == "" {
		return fmt.Errorf("--db is required (or set DATABASE_PATH)")
	}
	if exclude == "" {
		return fmt.Errorf("--exclude is required (or set HARD_EXCLUDE_REGEX)")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	normalizer, err := domain.NewNormalizer(exclude, timezone)
	if err != nil {
		return fmt.Errorf("create normalizer: %w", err)
	}

	repo, err := sqlite.NewRepository(databasePath)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()

	client := bluesky.NewClient(pds, handle, password)

	pipeline := domain.NewPipeline(
		domain.PipelineConfig{
			Query:       query,
			Actor:       handle,
			SearchLimit: searchLimit,
			FeedLimit:   feedLimit,
		},
		client,
		normalizer,
		repo,
		repo,
		nil,
		logger,
	)

	result, err := pipeline.RunOnce(context.Background())
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(result)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
