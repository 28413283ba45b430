package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Posts.Add(7)
	m.MediaDownloaded.Add(3)
	m.ActiveDownloads.Add(2)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"postharvest_posts_total 7",
		"postharvest_media_downloaded_total 3",
		"# TYPE postharvest_active_downloads gauge",
		"postharvest_active_downloads 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Queries.Add(2)
	m.QueriesFailed.Add(1)

	snap := m.Snapshot()
	if snap["queries"] != 2 || snap["queries_failed"] != 1 {
		t.Errorf("unexpected snapshot: %v", snap)
	}
}
