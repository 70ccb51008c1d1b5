package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/bluesky-monitor/internal/metrics"
)

// PipelineConfig carries the per-run fetch parameters.
type PipelineConfig struct {
	// Query is the keyword search issued against the public firehose.
	Query string

	// Actor is the account whose own feed is merged into the candidate set.
	Actor string

	// SearchLimit caps the keyword search result count.
	SearchLimit int

	// FeedLimit caps the author feed result count.
	FeedLimit int
}

// Pipeline orchestrates one ingestion run: fetch both candidate sets,
// merge by URI, normalize and filter, then persist with content-hash
// deduplication. Every run writes exactly one ledger row.
type Pipeline struct {
	cfg        PipelineConfig
	source     PostSource
	normalizer *Normalizer
	posts      PostRepository
	runs       RunRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPipeline wires the ingestion pipeline. metrics may be nil.
func NewPipeline(
	cfg PipelineConfig,
	source PostSource,
	normalizer *Normalizer,
	posts PostRepository,
	runs RunRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		source:     source,
		normalizer: normalizer,
		posts:      posts,
		runs:       runs,
		metrics:    m,
		logger:     logger,
	}
}

// RunOnce executes the pipeline a single time and records the outcome in
// the run ledger regardless of success. Fatal errors unwind out of the run
// after the ledger row is written; there is no retry here.
func (p *Pipeline) RunOnce(ctx context.Context) (RunResult, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()

	result, runErr := p.ingest(ctx)
	ended := time.Now().UTC()

	run := &RunRecord{
		ID:        runID,
		StartedAt: started.Format(time.RFC3339),
		EndedAt:   ended.Format(time.RFC3339),
		Success:   runErr == nil,
	}
	if runErr != nil {
		summary, _ := json.Marshal(map[string]string{"error": runErr.Error()})
		run.CountsJSON = string(summary)
	} else {
		summary, _ := json.Marshal(result)
		run.CountsJSON = string(summary)
	}

	if err := p.runs.CreateRun(ctx, run); err != nil {
		p.logger.Error("failed to record run", "run_id", runID, "error", err)
		if runErr == nil {
			return result, fmt.Errorf("record run: %w", err)
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveRun(runErr == nil, result.Inserted, result.Duplicates)
	}

	if runErr != nil {
		p.logger.Error("ingest run failed", "run_id", runID, "error", runErr)
		return result, runErr
	}

	p.logger.Info("ingest run complete",
		"run_id", runID,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"duration", ended.Sub(started),
	)
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context) (RunResult, error) {
	if err := p.source.Login(ctx); err != nil {
		return RunResult{}, fmt.Errorf("create session: %w", err)
	}

	// The two fetches are independent; issue them concurrently. Either
	// failing aborts the run before anything is persisted.
	var searchPosts, feedPosts []RawPost
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := p.source.SearchPosts(gctx, p.cfg.Query, p.cfg.SearchLimit)
		if err != nil {
			return fmt.Errorf("search posts: %w", err)
		}
		searchPosts = posts
		return nil
	})
	g.Go(func() error {
		posts, err := p.source.AuthorFeed(gctx, p.cfg.Actor, p.cfg.FeedLimit)
		if err != nil {
			return fmt.Errorf("fetch author feed: %w", err)
		}
		feedPosts = posts
		return nil
	})
	if err := g.Wait(); err != nil {
		return RunResult{}, err
	}

	merged := mergeByURI(searchPosts, feedPosts)

	records := make([]*PostRecord, 0, len(merged))
	for _, raw := range merged {
		if record, ok := p.normalizer.Normalize(raw); ok {
			records = append(records, record)
		}
	}

	if len(records) == 0 {
		return RunResult{}, nil
	}

	// Check-then-insert per record so a crash mid-loop leaves valid
	// partial state: committed rows stay committed and the next run skips
	// them on the hash re-check.
	var result RunResult
	for _, record := range records {
		exists, err := p.posts.ExistsByContentHash(ctx, record.ContentHash)
		if err != nil {
			return result, fmt.Errorf("check content hash: %w", err)
		}
		if exists {
			result.Duplicates++
			continue
		}
		if err := p.posts.CreatePost(ctx, record); err != nil {
			return result, fmt.Errorf("insert post %s: %w", record.ID, err)
		}
		result.Inserted++
	}

	return result, nil
}

// mergeByURI folds both candidate sets into one set keyed by post URI.
// A post appearing in both sets counts once; last write wins, which is
// immaterial since the upstream payload is identical.
func mergeByURI(sets ...[]RawPost) map[string]RawPost {
	merged := make(map[string]RawPost)
	for _, set := range sets {
		for _, post := range set {
			merged[post.URI] = post
		}
	}
	return merged
}

// StartSchedule runs the pipeline immediately and then once per interval
// until ctx is cancelled. Run failures are already logged and ledgered by
// RunOnce; the loop keeps ticking.
func (p *Pipeline) StartSchedule(ctx context.Context, interval time.Duration) {
	if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("scheduled ingest failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("scheduled ingest failed", "error", err)
			}
		}
	}
}
