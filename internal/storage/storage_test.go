package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleRecords() []*types.PostRecord {
	return []*types.PostRecord{
		{
			EventName:   "Manchester Marathon",
			Title:       "Race day <3",
			Description: "Race day <3, see you \"there\"",
			Timestamp:   "2025-04-06T08:30:00.000Z",
			Location:    "Manchester",
			Source:      "Twitter",
			Permalink:   "https://x.com/u/status/1",
			MediaFiles:  []string{"Manchester Marathon_1.jpg", "Manchester Marathon_2.jpg"},
		},
		{
			EventName:  "Manchester Marathon",
			Timestamp:  types.NotFound,
			Location:   "Manchester",
			Source:     "Twitter",
			Permalink:  types.NotFound,
			MediaFiles: []string{},
		},
	}
}

func TestJSONStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tweets_0406.json")
	s, err := NewJSONStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Race day <3") {
		t.Errorf("HTML characters should not be escaped:\n%s", data)
	}

	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0]["link"] != "https://x.com/u/status/1" || got[0]["date_time"] != "2025-04-06T08:30:00.000Z" {
		t.Errorf("unexpected keys: %v", got[0])
	}
	files, ok := got[1]["media_files"].([]any)
	if !ok || len(files) != 0 {
		t.Errorf("media_files should be an empty list, got %#v", got[1]["media_files"])
	}
}

func TestJSONStorageEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	s, err := NewJSONStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected empty array, got %q", data)
	}
}

func TestCSVStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweets.csv")
	s, err := NewCSVStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "event_name,title,description,date_time,location,source,link,media_files" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][2] != `Race day <3, see you "there"` {
		t.Errorf("description not round-tripped: %q", rows[1][2])
	}
	if rows[1][7] != "Manchester Marathon_1.jpg, Manchester Marathon_2.jpg" {
		t.Errorf("unexpected media column %q", rows[1][7])
	}
	if rows[2][7] != "" || rows[2][3] != types.NotFound {
		t.Errorf("unexpected second row %v", rows[2])
	}
}

func TestJSONLStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweets.jsonl")
	s, err := NewJSONLStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, _ := os.Open(path)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r types.PostRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %d: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}

func TestNewBuildsConfiguredFiles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Harvest.OutputDir = t.TempDir()
	cfg.Storage.Formats = []string{"json", "csv", "jsonl"}

	s, err := New(cfg, "0406", testLogger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := strings.Join(s.Backends(), ","); got != "json,csv,jsonl" {
		t.Errorf("unexpected backends %s", got)
	}
	if err := s.Store(sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	for _, ext := range []string{"json", "csv", "jsonl"} {
		path := filepath.Join(cfg.Harvest.OutputDir, "tweets_0406."+ext)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s: %v", path, err)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Harvest.OutputDir = t.TempDir()
	cfg.Storage.Formats = []string{"csv", "parquet"}

	_, err := New(cfg, "0406", testLogger)
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "parquet" {
		t.Errorf("expected StorageError for parquet, got %v", err)
	}
}

type failingStorage struct{}

func (f *failingStorage) Store([]*types.PostRecord) error { return errors.New("disk on fire") }
func (f *failingStorage) Close() error                    { return nil }
func (f *failingStorage) Name() string                    { return "failing" }

type countingStorage struct{ stored int }

func (c *countingStorage) Store(r []*types.PostRecord) error { c.stored += len(r); return nil }
func (c *countingStorage) Close() error                      { return nil }
func (c *countingStorage) Name() string                      { return "counting" }

func TestMultiStorageContinuesPastFailure(t *testing.T) {
	counting := &countingStorage{}
	m := NewMultiStorage([]Storage{&failingStorage{}, counting}, testLogger)

	err := m.Store(sampleRecords())
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "failing" {
		t.Errorf("expected StorageError from failing backend, got %v", err)
	}
	if counting.stored != 2 {
		t.Errorf("healthy backend should still get records, got %d", counting.stored)
	}
}
