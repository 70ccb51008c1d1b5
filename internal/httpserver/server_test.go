package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blackmichael/bluesky-monitor/internal/config"
	"github.com/blackmichael/bluesky-monitor/internal/domain"
)

type fakeReader struct {
	posts []domain.PostRecord
	days  []domain.DayCount
	err   error
}

func (f *fakeReader) SearchPosts(ctx context.Context, substr string, limit int) ([]domain.PostRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.PostRecord
	for _, p := range f.posts {
		if strings.Contains(p.Text, substr) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeReader) DailyCounts(ctx context.Context, limit int) ([]domain.DayCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.days, nil
}

func newTestServer(reader *fakeReader) *Server {
	cfg := &config.Config{Port: 0}
	return NewServer(cfg, reader, nil, slog.Default())
}

func doRequest(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	rec := doRequest(newTestServer(&fakeReader{}), "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandleSearch(t *testing.T) {
	entities := `[{"features":[{"tag":"chicago"}]}]`
	reader := &fakeReader{
		posts: []domain.PostRecord{
			{
				ID:       "at://did:plc:a/app.bsky.feed.post/1",
				Source:   "bluesky",
				Text:     "ICE Chicago checkpoint",
				URL:      "https://bsky.app/profile/a.bsky.social/post/1",
				TsUTC:    "2024-06-01T12:00:00Z",
				DayLocal: "2024-06-01",
				Entities: &entities,
			},
			{ID: "at://did:plc:b/app.bsky.feed.post/2", Source: "bluesky", Text: "unrelated"},
		},
	}

	rec := doRequest(newTestServer(reader), "/api/search?q=Chicago")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var body struct {
		Results []searchResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(body.Results))
	}
	if body.Results[0].Text != "ICE Chicago checkpoint" {
		t.Fatalf("unexpected result: %+v", body.Results[0])
	}
	if body.Results[0].Entities == nil {
		t.Fatal("expected entities to be present")
	}
	if body.Results[0].Topic != nil {
		t.Fatal("expected topic to be null")
	}
}

func TestHandleSearchError(t *testing.T) {
	rec := doRequest(newTestServer(&fakeReader{err: errors.New("db closed")}), "/api/search?q=x")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestHandleDaily(t *testing.T) {
	reader := &fakeReader{
		days: []domain.DayCount{
			{Day: "2024-06-02", Hits: 3},
			{Day: "2024-06-01", Hits: 1},
		},
	}

	rec := doRequest(newTestServer(reader), "/api/daily")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var body struct {
		Days []struct {
			Day  string `json:"day"`
			Hits int    `json:"hits"`
		} `json:"days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Days) != 2 || body.Days[0].Day != "2024-06-02" || body.Days[0].Hits != 3 {
		t.Fatalf("unexpected body: %+v", body.Days)
	}
}

func TestHandleTrendsIsMocked(t *testing.T) {
	rec := doRequest(newTestServer(&fakeReader{}), "/api/trends")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var body struct {
		Timeline []struct {
			Date  string  `json:"date"`
			Value float64 `json:"value"`
		} `json:"timeline"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Timeline) != 7 {
		t.Fatalf("expected 7 mocked days, got %d", len(body.Timeline))
	}
	for _, entry := range body.Timeline {
		if entry.Date == "" {
			t.Fatal("expected each entry to carry a date")
		}
	}
}
