// Package httpserver serves the read-only query surface over stored posts.
// It shares the posts table with the ingestion pipeline but imposes no
// constraints back on it.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/bluesky-monitor/internal/config"
	"github.com/blackmichael/bluesky-monitor/internal/domain"
	"github.com/blackmichael/bluesky-monitor/internal/metrics"
)

const (
	searchResultLimit = 50
	dailyBucketLimit  = 30
)

// Server is the HTTP server for the dashboard API.
type Server struct {
	cfg        *config.Config
	reader     domain.PostReader
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server over the given post reader.
// m may be nil, in which case no /metrics endpoint is mounted.
func NewServer(cfg *config.Config, reader domain.PostReader, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		reader: reader,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/daily", s.handleDaily)
	mux.HandleFunc("GET /api/trends", s.handleTrends)

	var handler http.Handler = withLogging(logger, mux)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
		handler = withMetrics(m, handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchResult struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Text     string  `json:"text"`
	URL      string  `json:"url"`
	TsUTC    string  `json:"ts_utc"`
	DayLocal string  `json:"day_local"`
	Entities *string `json:"entities"`
	Topic    *string `json:"topic"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	posts, err := s.reader.SearchPosts(r.Context(), q, searchResultLimit)
	if err != nil {
		s.logger.Error("search query failed", "q", q, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to search posts")
		return
	}

	results := make([]searchResult, len(posts))
	for i, p := range posts {
		results[i] = searchResult{
			ID:       p.ID,
			Source:   p.Source,
			Text:     p.Text,
			URL:      p.URL,
			TsUTC:    p.TsUTC,
			DayLocal: p.DayLocal,
			Entities: p.Entities,
			Topic:    p.Topic,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, err := s.reader.DailyCounts(r.Context(), dailyBucketLimit)
	if err != nil {
		s.logger.Error("daily query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to aggregate daily counts")
		return
	}

	buckets := make([]map[string]any, len(days))
	for i, d := range days {
		buckets[i] = map[string]any{"day": d.Day, "hits": d.Hits}
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": buckets})
}

// handleTrends returns a mocked 7-day timeline. Trend analysis is not
// implemented; the dashboard renders this placeholder as-is.
func (s *Server) handleTrends(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().UTC()
	timeline := make([]map[string]any, 7)
	for i := range timeline {
		timeline[i] = map[string]any{
			"date":  now.AddDate(0, 0, -i).Format("2006-01-02"),
			"value": rand.Float64() * 100,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": timeline})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

func withMetrics(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			r.URL.Path,
			strconv.Itoa(wrapped.status),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(
			r.Method,
			r.URL.Path,
		).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
