package domain

import (
	"context"
	"log/slog"
	"time"
)

// SummarizeJob is a placeholder for the daily summarization stage. It runs
// on the same cadence shape as ingestion but performs no work yet.
type SummarizeJob struct {
	logger *slog.Logger
}

// NewSummarizeJob creates the stubbed summarization job.
func NewSummarizeJob(logger *slog.Logger) *SummarizeJob {
	return &SummarizeJob{logger: logger}
}

// Run logs that summarization is stubbed. It never fails.
func (j *SummarizeJob) Run(ctx context.Context) error {
	j.logger.Info("summarizer job stubbed for now")
	return nil
}

// Start runs the job once per interval until ctx is cancelled.
func (j *SummarizeJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
