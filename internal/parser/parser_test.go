package parser

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const fullPost = `<article role="article">
  <a href="/mcrmarathon">@mcrmarathon</a>
  <div data-testid="tweetText">
    <span>Race day   is here!</span>
    <span>See you at the start line</span>
  </div>
  <a href="/mcrmarathon/status/1789"><time datetime="2025-04-06T08:30:00.000Z">Apr 6</time></a>
  <img src="https://pbs.twimg.com/profile_images/1/avatar_normal.jpg">
  <img src="https://pbs.twimg.com/media/AAA?format=jpg&amp;name=small">
  <img src="https://abs-0.twimg.com/emoji/v2/svg/1f3c3.svg">
  <img src="https://pbs.twimg.com/media/BBB?format=jpg&amp;name=large">
  <img src="https://pbs.twimg.com/media/CCC?format=png&amp;name=small">
</article>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	cfg := config.DefaultConfig()
	e, err := NewExtractor(cfg.Parser, cfg.Harvest, testLogger)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return e
}

// --- Block Splitting Tests ---

func TestSplitBlocks(t *testing.T) {
	markup := `<html><body><div id="feed">
		<article role="article"><p>one</p></article>
		<article><p>not a post</p></article>
		<article role="article"><p>two</p></article>
	</div></body></html>`

	blocks, err := SplitBlocks(markup, `article[role="article"]`)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if !strings.Contains(string(blocks[0]), "one") || !strings.Contains(string(blocks[1]), "two") {
		t.Errorf("blocks out of document order: %v", blocks)
	}
	if !strings.HasPrefix(string(blocks[0]), "<article") {
		t.Errorf("expected outer HTML, got %q", blocks[0])
	}
}

func TestSplitBlocksEmptyPage(t *testing.T) {
	blocks, err := SplitBlocks("<html><body><p>nothing yet</p></body></html>", `article[role="article"]`)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected no blocks, got %d", len(blocks))
	}
}

// --- Extraction Tests ---

func TestExtractFullPost(t *testing.T) {
	e := newTestExtractor(t)

	rec, candidates, err := e.Extract("Manchester Marathon", types.PostBlock(fullPost))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if rec.Description != "Race day is here! See you at the start line" {
		t.Errorf("unexpected description %q", rec.Description)
	}
	if rec.Title != rec.Description {
		t.Errorf("short description should equal title, got %q", rec.Title)
	}
	if rec.Timestamp != "2025-04-06T08:30:00.000Z" {
		t.Errorf("unexpected timestamp %q", rec.Timestamp)
	}
	if rec.Permalink != "https://x.com/mcrmarathon/status/1789" {
		t.Errorf("expected status permalink, got %q", rec.Permalink)
	}
	if rec.EventName != "Manchester Marathon" || rec.Location != "Manchester" || rec.Source != "Twitter" {
		t.Errorf("constant fields wrong: %+v", rec)
	}
	if rec.MediaFiles == nil || len(rec.MediaFiles) != 0 {
		t.Errorf("media files should start empty, got %v", rec.MediaFiles)
	}

	want := []types.MediaCandidate{
		"https://pbs.twimg.com/media/AAA?format=jpg&name=small",
		"https://pbs.twimg.com/media/BBB?format=jpg&name=large",
	}
	if len(candidates) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %v", len(want), len(candidates), candidates)
	}
	for i := range want {
		if candidates[i] != want[i] {
			t.Errorf("candidate %d: expected %q, got %q", i, want[i], candidates[i])
		}
	}
}

func TestExtractMissingTimestamp(t *testing.T) {
	e := newTestExtractor(t)
	block := `<article role="article"><div data-testid="tweetText">hello</div></article>`

	rec, _, err := e.Extract("q", types.PostBlock(block))
	if err != nil {
		t.Fatalf("missing timestamp must not fail: %v", err)
	}
	if rec.Timestamp != types.NotFound {
		t.Errorf("expected %q, got %q", types.NotFound, rec.Timestamp)
	}
	if rec.Permalink != types.NotFound {
		t.Errorf("expected %q permalink, got %q", types.NotFound, rec.Permalink)
	}
}

func TestExtractMissingText(t *testing.T) {
	e := newTestExtractor(t)
	block := `<article role="article"><time datetime="2025-01-01T00:00:00Z"></time></article>`

	rec, candidates, err := e.Extract("q", types.PostBlock(block))
	if err != nil {
		t.Fatalf("missing text must not fail: %v", err)
	}
	if rec.Description != "" || rec.Title != "" {
		t.Errorf("expected empty description and title, got %q / %q", rec.Description, rec.Title)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %v", candidates)
	}
}

func TestExtractTitleCap(t *testing.T) {
	e := newTestExtractor(t)
	long := strings.Repeat("é", 80)
	block := `<article role="article"><div data-testid="tweetText">` + long + `</div></article>`

	rec, _, err := e.Extract("q", types.PostBlock(block))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := len([]rune(rec.Title)); got != 50 {
		t.Errorf("expected 50-rune title, got %d", got)
	}
	if rec.Description != long {
		t.Errorf("description must keep the full text")
	}
}

func TestExtractPermalinkFallbacks(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name  string
		block string
		want  string
	}{
		{
			"status link without time",
			`<article role="article"><a href="/someone">p</a><a href="/someone/status/42">s</a></article>`,
			"https://x.com/someone/status/42",
		},
		{
			"first anchor",
			`<article role="article"><a href="/someone">p</a></article>`,
			"https://x.com/someone",
		},
		{
			"absolute href kept",
			`<article role="article"><a href="https://t.co/abc">l</a></article>`,
			"https://t.co/abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := e.Extract("q", types.PostBlock(tt.block))
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if rec.Permalink != tt.want {
				t.Errorf("expected %q, got %q", tt.want, rec.Permalink)
			}
		})
	}
}

func TestExtractRejectsNonArticle(t *testing.T) {
	e := newTestExtractor(t)

	_, _, err := e.Extract("q", types.PostBlock(`<div>just a div</div>`))
	if !errors.Is(err, types.ErrNoArticle) {
		t.Fatalf("expected ErrNoArticle, got %v", err)
	}
}
