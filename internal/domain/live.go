package domain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// LiveIngestor applies the pipeline's normalization and deduplication path
// to posts arriving from the live firehose. Unlike the scheduled run, the
// stream carries the whole network, so posts must first match the topical
// keywords before the usual gates apply.
type LiveIngestor struct {
	pattern    *regexp.Regexp
	normalizer *Normalizer
	posts      PostRepository
	logger     *slog.Logger
}

// NewLiveIngestor compiles a case-insensitive word-boundary pattern from
// the topical keywords. At least one keyword is required.
func NewLiveIngestor(keywords []string, normalizer *Normalizer, posts PostRepository, logger *slog.Logger) (*LiveIngestor, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}

	escaped := make([]string, len(keywords))
	for i, kw := range keywords {
		escaped[i] = regexp.QuoteMeta(kw)
	}

	expr := `(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile keyword pattern: %w", err)
	}

	return &LiveIngestor{
		pattern:    pattern,
		normalizer: normalizer,
		posts:      posts,
		logger:     logger,
	}, nil
}

// ProcessPost runs one streamed post through keyword matching,
// normalization, and content-hash deduplication. Returns true if the post
// was inserted.
func (l *LiveIngestor) ProcessPost(ctx context.Context, raw RawPost) (bool, error) {
	if !l.pattern.MatchString(raw.Text) {
		return false, nil
	}

	record, ok := l.normalizer.Normalize(raw)
	if !ok {
		return false, nil
	}

	exists, err := l.posts.ExistsByContentHash(ctx, record.ContentHash)
	if err != nil {
		return false, fmt.Errorf("check content hash: %w", err)
	}
	if exists {
		return false, nil
	}

	if err := l.posts.CreatePost(ctx, record); err != nil {
		return false, fmt.Errorf("create post: %w", err)
	}
	return true, nil
}
