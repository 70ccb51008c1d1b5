package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashText_Deterministic(t *testing.T) {
	text := "ICE Chicago protest at 5pm"
	assert.Equal(t, HashText(text), HashText(text))
	assert.Len(t, HashText(text), 64, "sha-256 hex digest is 64 chars")
}

func TestHashText_DistinctTexts(t *testing.T) {
	assert.NotEqual(t, HashText("one post"), HashText("another post"))
	assert.NotEqual(t, HashText(""), HashText(" "))
}

func TestLocalDay_CrossesMidnight(t *testing.T) {
	n, err := NewNormalizer("never-matches-xyzzy", "UTC")
	require.NoError(t, err)

	instant := time.Date(2024, time.January, 1, 2, 0, 0, 0, time.UTC)

	// UTC keeps the date.
	assert.Equal(t, "2024-01-01", n.LocalDay(instant))

	// UTC+5: still the same calendar day (07:00 local).
	east, err := NewNormalizer("never-matches-xyzzy", "Asia/Karachi")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", east.LocalDay(instant))

	// UTC-5: the offset crosses midnight, so the local day is the prior one.
	west, err := NewNormalizer("never-matches-xyzzy", "America/Lima")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", west.LocalDay(instant))
}

func TestNewNormalizer_InvalidPattern(t *testing.T) {
	_, err := NewNormalizer("(unclosed", "UTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile exclusion pattern")
}

func TestNewNormalizer_InvalidTimeZone(t *testing.T) {
	_, err := NewNormalizer("ok", "Not/AZone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load time zone")
}

func TestNormalize_SkipsEmptyText(t *testing.T) {
	n, err := NewNormalizer("spam", "UTC")
	require.NoError(t, err)

	_, ok := n.Normalize(RawPost{URI: "at://did:plc:a/app.bsky.feed.post/1"})
	assert.False(t, ok)
}

func TestNormalize_SkipsExcluded(t *testing.T) {
	n, err := NewNormalizer(`(?i)giveaway`, "UTC")
	require.NoError(t, err)

	_, ok := n.Normalize(RawPost{
		URI:       "at://did:plc:a/app.bsky.feed.post/1",
		Text:      "Huge GIVEAWAY today",
		CreatedAt: "2024-06-01T12:00:00Z",
	})
	assert.False(t, ok)

	// Non-matching text passes.
	_, ok = n.Normalize(RawPost{
		URI:          "at://did:plc:a/app.bsky.feed.post/2",
		AuthorHandle: "user.bsky.social",
		Text:         "regular report",
		CreatedAt:    "2024-06-01T12:00:00Z",
	})
	assert.True(t, ok)
}

func TestNormalize_SkipsUnparseableTimestamp(t *testing.T) {
	n, err := NewNormalizer("spam", "UTC")
	require.NoError(t, err)

	_, ok := n.Normalize(RawPost{
		URI:       "at://did:plc:a/app.bsky.feed.post/1",
		Text:      "hello",
		CreatedAt: "not a timestamp",
	})
	assert.False(t, ok)
}

func TestNormalize_BuildsRecord(t *testing.T) {
	n, err := NewNormalizer("spam", "America/Lima")
	require.NoError(t, err)
	n.now = func() time.Time {
		return time.Date(2024, time.June, 2, 9, 30, 0, 0, time.UTC)
	}

	facets := json.RawMessage(`[{"features":[{"tag":"chicago"}]}]`)
	record, ok := n.Normalize(RawPost{
		URI:          "at://did:plc:abc/app.bsky.feed.post/3kxyz",
		CID:          "bafy123",
		AuthorHandle: "reporter.bsky.social",
		Text:         "ICE Chicago protest at 5pm",
		CreatedAt:    "2024-01-01T02:00:00Z",
		Facets:       facets,
	})
	require.True(t, ok)

	assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/3kxyz", record.ID)
	assert.Equal(t, "bluesky", record.Source)
	assert.Equal(t, "ICE Chicago protest at 5pm", record.Text)
	assert.Equal(t, "https://bsky.app/profile/reporter.bsky.social/post/3kxyz", record.URL)
	assert.Equal(t, "2024-01-01T02:00:00Z", record.TsUTC)
	assert.Equal(t, "2023-12-31", record.DayLocal, "UTC-5 pushes the day back")
	require.NotNil(t, record.Entities)
	assert.JSONEq(t, string(facets), *record.Entities)
	assert.Nil(t, record.Topic, "topic is reserved for a later stage")
	assert.Equal(t, HashText("ICE Chicago protest at 5pm"), record.ContentHash)
	assert.Equal(t, "2024-06-02T09:30:00Z", record.IngestedAt)
}

func TestNormalize_NoFacetsMeansNilEntities(t *testing.T) {
	n, err := NewNormalizer("spam", "UTC")
	require.NoError(t, err)

	record, ok := n.Normalize(RawPost{
		URI:          "at://did:plc:a/app.bsky.feed.post/1",
		AuthorHandle: "user.bsky.social",
		Text:         "no annotations here",
		CreatedAt:    "2024-06-01T12:00:00Z",
	})
	require.True(t, ok)
	assert.Nil(t, record.Entities)
}

func TestNormalize_NonUTCTimestampNormalized(t *testing.T) {
	n, err := NewNormalizer("spam", "UTC")
	require.NoError(t, err)

	record, ok := n.Normalize(RawPost{
		URI:          "at://did:plc:a/app.bsky.feed.post/1",
		AuthorHandle: "user.bsky.social",
		Text:         "offset timestamp",
		CreatedAt:    "2024-06-01T07:00:00-05:00",
	})
	require.True(t, ok)
	assert.Equal(t, "2024-06-01T12:00:00Z", record.TsUTC)
}

func TestPostURL_UsesLastPathSegment(t *testing.T) {
	url := PostURL("at://did:plc:abc/app.bsky.feed.post/3kfoo", "user.bsky.social")
	assert.Equal(t, "https://bsky.app/profile/user.bsky.social/post/3kfoo", url)
}
