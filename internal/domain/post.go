package domain

import "encoding/json"

// Source is the origin tag stamped on every record this pipeline writes.
const Source = "bluesky"

// PostRecord is a deduplicated, normalized post stored in our database.
type PostRecord struct {
	// ID is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	ID string

	// Source tags the origin system; always "bluesky" for this pipeline.
	Source string

	// Text is the raw post body, untouched.
	Text string

	// URL is the canonical public link, derived from the post URI and author handle.
	URL string

	// TsUTC is the post creation instant in RFC 3339 UTC.
	TsUTC string

	// DayLocal is the calendar day (YYYY-MM-DD) TsUTC falls on in the
	// configured time zone, used for daily aggregation.
	DayLocal string

	// Entities holds serialized facet annotations from the source post,
	// or nil if the post carried none.
	Entities *string

	// Topic is reserved for a later classification stage; this pipeline
	// leaves it unset.
	Topic *string

	// ContentHash is the SHA-256 hex digest of Text, the deduplication key.
	ContentHash string

	// IngestedAt is the RFC 3339 UTC instant the record was committed.
	IngestedAt string
}

// RawPost is a candidate post as returned by the upstream network,
// before normalization and filtering.
type RawPost struct {
	// URI is the AT-URI of the post, unique per source.
	URI string

	// CID is the content identifier of the record.
	CID string

	// AuthorHandle identifies the author; used to build the public URL.
	// Feeds that only carry a DID may use the DID here.
	AuthorHandle string

	// Text is the post body. Empty text means the post is skipped.
	Text string

	// CreatedAt is the upstream creation timestamp, RFC 3339.
	CreatedAt string

	// Facets holds structured annotations (tags, links) as raw JSON,
	// or nil if the post has none.
	Facets json.RawMessage
}

// RunRecord is the audit trail for one pipeline execution. Rows are
// append-only and never updated.
type RunRecord struct {
	ID         string
	StartedAt  string
	EndedAt    string
	Success    bool
	CountsJSON string
}

// RunResult is the aggregate outcome of one ingestion run.
type RunResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// DayCount is one bucket of the daily aggregation read surface.
type DayCount struct {
	Day  string `json:"date"`
	Hits int    `json:"hits"`
}
