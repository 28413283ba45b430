package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for a harvest run.
type Metrics struct {
	// Query metrics
	Queries          atomic.Int64
	QueriesFailed    atomic.Int64
	ScrollIterations atomic.Int64
	Plateaus         atomic.Int64

	// Post metrics
	Blocks       atomic.Int64
	Posts        atomic.Int64
	PostsSkipped atomic.Int64
	PostsStored  atomic.Int64

	// Media metrics
	MediaDownloaded atomic.Int64
	MediaSkipped    atomic.Int64
	BytesDownloaded atomic.Int64
	ActiveDownloads atomic.Int32

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"postharvest_queries_total", "Queries harvested", "counter", m.Queries.Load()},
		{"postharvest_queries_failed_total", "Queries whose source was unavailable", "counter", m.QueriesFailed.Load()},
		{"postharvest_scroll_iterations_total", "Scroll iterations performed", "counter", m.ScrollIterations.Load()},
		{"postharvest_plateaus_total", "Scroll loops stopped by height plateau", "counter", m.Plateaus.Load()},
		{"postharvest_blocks_total", "Distinct post blocks collected", "counter", m.Blocks.Load()},
		{"postharvest_posts_total", "Post records extracted", "counter", m.Posts.Load()},
		{"postharvest_posts_skipped_total", "Post blocks that failed extraction", "counter", m.PostsSkipped.Load()},
		{"postharvest_posts_stored_total", "Post records written to storage", "counter", m.PostsStored.Load()},
		{"postharvest_media_downloaded_total", "Images written to disk", "counter", m.MediaDownloaded.Load()},
		{"postharvest_media_skipped_total", "Image downloads skipped", "counter", m.MediaSkipped.Load()},
		{"postharvest_bytes_downloaded_total", "Image bytes written", "counter", m.BytesDownloaded.Load()},
		{"postharvest_active_downloads", "Downloads in flight", "gauge", int64(m.ActiveDownloads.Load())},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server. It shuts down when ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"queries":           m.Queries.Load(),
		"queries_failed":    m.QueriesFailed.Load(),
		"scroll_iterations": m.ScrollIterations.Load(),
		"plateaus":          m.Plateaus.Load(),
		"blocks":            m.Blocks.Load(),
		"posts":             m.Posts.Load(),
		"posts_skipped":     m.PostsSkipped.Load(),
		"posts_stored":      m.PostsStored.Load(),
		"media_downloaded":  m.MediaDownloaded.Load(),
		"media_skipped":     m.MediaSkipped.Load(),
		"bytes_downloaded":  m.BytesDownloaded.Load(),
		"active_downloads":  int64(m.ActiveDownloads.Load()),
	}
}
