package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// HashText returns the SHA-256 hex digest of text. Identical text always
// produces an identical digest, which makes it usable as a cross-run
// deduplication key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Normalizer converts raw upstream posts into PostRecords, applying the
// hard-exclusion filter, content hashing, and local-day derivation.
type Normalizer struct {
	exclude *regexp.Regexp
	loc     *time.Location

	// now stamps IngestedAt; overridable in tests.
	now func() time.Time
}

// NewNormalizer compiles the exclusion pattern and resolves the IANA time
// zone. Both are configuration: either failing means the pipeline must not
// run, so errors surface here rather than per post.
func NewNormalizer(excludePattern, timeZone string) (*Normalizer, error) {
	exclude, err := regexp.Compile(excludePattern)
	if err != nil {
		return nil, fmt.Errorf("compile exclusion pattern: %w", err)
	}

	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
	}

	return &Normalizer{
		exclude: exclude,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// Excluded reports whether text matches the hard-exclusion pattern.
// Matching posts are vetoed before any other processing.
func (n *Normalizer) Excluded(text string) bool {
	return n.exclude.MatchString(text)
}

// LocalDay returns the zero-padded calendar date (YYYY-MM-DD) the instant
// falls on in the configured time zone.
func (n *Normalizer) LocalDay(t time.Time) string {
	return t.In(n.loc).Format("2006-01-02")
}

// Normalize converts a raw post into a PostRecord. It returns false when
// the post is skipped: no text, excluded by pattern, or an unparseable
// creation timestamp.
func (n *Normalizer) Normalize(raw RawPost) (*PostRecord, bool) {
	if raw.Text == "" {
		return nil, false
	}
	if n.Excluded(raw.Text) {
		return nil, false
	}

	// Hash the raw text before any transformation so identical upstream
	// posts collide regardless of how they were fetched.
	hash := HashText(raw.Text)

	createdAt, err := time.Parse(time.RFC3339, raw.CreatedAt)
	if err != nil {
		return nil, false
	}
	tsUTC := createdAt.UTC()

	var entities *string
	if len(raw.Facets) > 0 {
		s := string(raw.Facets)
		entities = &s
	}

	return &PostRecord{
		ID:          raw.URI,
		Source:      Source,
		Text:        raw.Text,
		URL:         PostURL(raw.URI, raw.AuthorHandle),
		TsUTC:       tsUTC.Format(time.RFC3339),
		DayLocal:    n.LocalDay(tsUTC),
		Entities:    entities,
		ContentHash: hash,
		IngestedAt:  n.now().UTC().Format(time.RFC3339),
	}, true
}

// PostURL derives the canonical public link for a post from its AT-URI and
// the author's handle. The record key is the last path segment of the URI.
func PostURL(uri, authorHandle string) string {
	rkey := uri
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		rkey = uri[idx+1:]
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", authorHandle, rkey)
}
