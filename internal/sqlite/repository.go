// Package sqlite implements the storage ports on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/bluesky-monitor/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	text TEXT NOT NULL,
	url TEXT NOT NULL,
	ts_utc TEXT NOT NULL,
	day_local TEXT NOT NULL,
	entities TEXT,
	topic TEXT,
	content_hash TEXT NOT NULL,
	ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	ended_at TEXT NOT NULL,
	success INTEGER NOT NULL,
	counts_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	service TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_content_hash ON posts(content_hash);
CREATE INDEX IF NOT EXISTS idx_posts_day_local ON posts(day_local);
`

// Repository implements domain.PostRepository, domain.PostReader,
// domain.RunRepository, and domain.CursorRepository using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the SQLite database at the given path,
// applies pragmas, and bootstraps the schema. The caller should call Close
// when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY during the insert loop.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// ExistsByContentHash reports whether a post with the given content hash
// has already been committed.
func (r *Repository) ExistsByContentHash(ctx context.Context, hash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM posts WHERE content_hash = ? LIMIT 1`, hash,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query content hash: %w", err)
	}
	return true, nil
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, post *domain.PostRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (id, source, text, url, ts_utc, day_local, entities, topic, content_hash, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.Source,
		post.Text,
		post.URL,
		post.TsUTC,
		post.DayLocal,
		post.Entities,
		post.Topic,
		post.ContentHash,
		post.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// CreateRun appends one run ledger row. Rows are never updated or deleted.
func (r *Repository) CreateRun(ctx context.Context, run *domain.RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, ended_at, success, counts_json)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt,
		run.EndedAt,
		run.Success,
		run.CountsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SearchPosts returns posts whose text contains substr, newest first.
func (r *Repository) SearchPosts(ctx context.Context, substr string, limit int) ([]domain.PostRecord, error) {
	query, args, err := sq.
		Select("id", "source", "text", "url", "ts_utc", "day_local", "entities", "topic").
		From("posts").
		Where(sq.Like{"text": "%" + substr + "%"}).
		OrderBy("ts_utc DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.PostRecord
	for rows.Next() {
		var p domain.PostRecord
		var entities, topic sql.NullString
		err := rows.Scan(
			&p.ID,
			&p.Source,
			&p.Text,
			&p.URL,
			&p.TsUTC,
			&p.DayLocal,
			&entities,
			&topic,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if entities.Valid {
			p.Entities = &entities.String
		}
		if topic.Valid {
			p.Topic = &topic.String
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// DailyCounts aggregates post counts per local day, newest first.
func (r *Repository) DailyCounts(ctx context.Context, limit int) ([]domain.DayCount, error) {
	query, args, err := sq.
		Select("day_local AS day", "COUNT(*) AS hits").
		From("posts").
		GroupBy("day_local").
		OrderBy("day_local DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build daily query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	var days []domain.DayCount
	for rows.Next() {
		var d domain.DayCount
		if err := rows.Scan(&d.Day, &d.Hits); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day counts: %w", err)
	}

	return days, nil
}

// GetCursor retrieves the saved firehose cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the firehose cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
