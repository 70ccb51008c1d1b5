package domain

import "context"

// PostRepository defines persistence operations for normalized posts.
type PostRepository interface {
	// ExistsByContentHash reports whether a committed post already carries
	// the given content hash.
	ExistsByContentHash(ctx context.Context, hash string) (bool, error)

	// CreatePost inserts a new post into the store.
	CreatePost(ctx context.Context, post *PostRecord) error
}

// PostReader is the read-only query surface over stored posts. It imposes
// no constraints back on the ingestion path.
type PostReader interface {
	// SearchPosts returns posts whose text contains substr, newest first.
	SearchPosts(ctx context.Context, substr string, limit int) ([]PostRecord, error)

	// DailyCounts aggregates post counts per local day, newest first.
	DailyCounts(ctx context.Context, limit int) ([]DayCount, error)
}

// RunRepository records pipeline executions, one append-only row each.
type RunRepository interface {
	CreateRun(ctx context.Context, run *RunRecord) error
}

// CursorRepository defines persistence operations for firehose cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// PostSource retrieves candidate posts from the upstream social network.
// Login must be called once per run; the session is not cached across runs.
type PostSource interface {
	// Login exchanges credentials for a short-lived session. Bad
	// credentials abort the run immediately.
	Login(ctx context.Context) error

	// SearchPosts runs a keyword search across the public firehose.
	SearchPosts(ctx context.Context, query string, limit int) ([]RawPost, error)

	// AuthorFeed retrieves the given account's own recent feed.
	AuthorFeed(ctx context.Context, actor string, limit int) ([]RawPost, error)
}
