package types

import (
	"time"
	"unicode/utf8"
)

// NotFound is stored in fields whose source element is absent from a post.
const NotFound = "not found"

// PostBlock is the serialized markup of one discovered post.
// Two blocks are the same post iff their bytes are identical.
type PostBlock string

// MediaCandidate is an image URL that carries the accepted format marker.
type MediaCandidate string

// PostRecord is the structured form of one post.
type PostRecord struct {
	EventName   string   `json:"event_name"  bson:"event_name"`
	Title       string   `json:"title"       bson:"title"`
	Description string   `json:"description" bson:"description"`
	Timestamp   string   `json:"date_time"   bson:"date_time"`
	Location    string   `json:"location"    bson:"location"`
	Source      string   `json:"source"      bson:"source"`
	Permalink   string   `json:"link"        bson:"link"`
	MediaFiles  []string `json:"media_files" bson:"media_files"`
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// QueryReport summarizes what happened to a single query.
type QueryReport struct {
	Query        string        `json:"query"`
	PageURL      string        `json:"page_url"`
	Folder       string        `json:"folder"`
	Blocks       int           `json:"blocks"`
	Posts        int           `json:"posts"`
	PostsSkipped int           `json:"posts_skipped"`
	Media        int           `json:"media"`
	MediaSkipped int           `json:"media_skipped"`
	Iterations   int           `json:"iterations"`
	Plateaued    bool          `json:"plateaued"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
}

// Failed reports whether the query was aborted by its render source.
func (r QueryReport) Failed() bool { return r.Err != "" }

// HarvestResult is the ordered output of a harvest run.
type HarvestResult struct {
	Records []*PostRecord
	Reports []QueryReport
}

// Totals aggregates the per-query reports.
type Totals struct {
	Queries      int
	Failed       int
	Posts        int
	PostsSkipped int
	Media        int
	MediaSkipped int
}

// Summary adds up every query report.
func (r *HarvestResult) Summary() Totals {
	var t Totals
	for _, q := range r.Reports {
		t.Queries++
		if q.Failed() {
			t.Failed++
		}
		t.Posts += q.Posts
		t.PostsSkipped += q.PostsSkipped
		t.Media += q.Media
		t.MediaSkipped += q.MediaSkipped
	}
	return t
}
