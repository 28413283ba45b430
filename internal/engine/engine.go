package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/media"
	"github.com/IshaanNene/postharvest/internal/observability"
	"github.com/IshaanNene/postharvest/internal/parser"
	"github.com/IshaanNene/postharvest/internal/render"
	"github.com/IshaanNene/postharvest/internal/types"
)

// MediaFetcher downloads a batch of named images into a directory.
type MediaFetcher interface {
	FetchJobs(ctx context.Context, jobs []media.Job, dir string) ([]media.Result, error)
}

// QueryHook is called after every query with its report.
type QueryHook func(report types.QueryReport)

// Harvester runs the per-query harvest: scroll, extract, fetch media.
type Harvester struct {
	cfg       *config.Config
	source    render.Source
	fetcher   MediaFetcher
	scroller  *Scroller
	extractor *parser.Extractor
	metrics   *observability.Metrics
	logger    *slog.Logger
	dateTag   string

	// OnQuery, when set, is called after each query finishes.
	OnQuery QueryHook
}

// New creates a Harvester. dateTag names the per-query folders.
func New(cfg *config.Config, src render.Source, fetcher MediaFetcher, metrics *observability.Metrics, dateTag string, logger *slog.Logger) (*Harvester, error) {
	extractor, err := parser.NewExtractor(cfg.Parser, cfg.Harvest, logger)
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}
	return &Harvester{
		cfg:       cfg,
		source:    src,
		fetcher:   fetcher,
		scroller:  NewScroller(cfg.Parser.PostSelector, cfg.Harvest.SettleDelay, logger),
		extractor: extractor,
		metrics:   metrics,
		logger:    logger.With("component", "harvester"),
		dateTag:   dateTag,
	}, nil
}

// Run harvests each query in order, pausing between queries. A query whose
// page cannot be loaded contributes no records and the run moves on. The
// returned error is non-nil only for conditions that make every later query
// pointless: cancellation or a full disk. The partial result is returned with it.
func (h *Harvester) Run(ctx context.Context, queries []string) (*types.HarvestResult, error) {
	if len(queries) == 0 {
		return nil, types.ErrNoQueries
	}

	result := &types.HarvestResult{}
	start := time.Now()
	h.logger.Info("harvest started", "queries", len(queries), "date_tag", h.dateTag)

	for i, query := range queries {
		if i > 0 {
			if err := h.pause(ctx); err != nil {
				return result, err
			}
		}

		records, report, err := h.harvestQuery(ctx, query)
		result.Records = append(result.Records, records...)
		result.Reports = append(result.Reports, report)
		if h.OnQuery != nil {
			h.OnQuery(report)
		}
		if err != nil {
			return result, err
		}
	}

	t := result.Summary()
	h.logger.Info("harvest finished",
		"queries", t.Queries,
		"failed", t.Failed,
		"posts", t.Posts,
		"media", t.Media,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// harvestQuery runs one query. Source failures are recorded in the report and
// swallowed; only fatal errors are returned.
func (h *Harvester) harvestQuery(ctx context.Context, query string) ([]*types.PostRecord, types.QueryReport, error) {
	start := time.Now()
	pageURL := SearchURL(h.cfg.Harvest.SearchURL, query)
	folder := QueryFolder(h.cfg.Harvest.OutputDir, query, h.dateTag)
	report := types.QueryReport{Query: query, PageURL: pageURL, Folder: folder}
	logger := h.logger.With("query", query)

	h.metrics.Queries.Add(1)
	logger.Info("harvesting query", "url", pageURL)

	col, err := h.scroller.Collect(ctx, h.source, pageURL, h.cfg.Harvest.MaxScrolls)
	if err != nil {
		var unavailable *types.SourceUnavailableError
		if errors.As(err, &unavailable) {
			unavailable.Query = query
		}
		h.metrics.QueriesFailed.Add(1)
		report.Err = err.Error()
		report.Duration = time.Since(start)
		logger.Error("query skipped", "error", err)
		return nil, report, ctx.Err()
	}

	report.Blocks = len(col.Blocks)
	report.Iterations = col.Iterations
	report.Plateaued = col.Plateaued
	h.metrics.ScrollIterations.Add(int64(col.Iterations))
	h.metrics.Blocks.Add(int64(len(col.Blocks)))
	if col.Plateaued {
		h.metrics.Plateaus.Add(1)
	}

	records, jobs, owners := h.extractAll(query, col.Blocks, logger, &report)

	// The media folder is created by the fetcher, only when there is something to save.
	var fatal error
	if len(jobs) > 0 {
		results, err := h.fetcher.FetchJobs(ctx, jobs, filepath.Join(folder, "media"))
		for i, r := range results {
			if r.Err != nil {
				report.MediaSkipped++
				continue
			}
			records[owners[i]].MediaFiles = append(records[owners[i]].MediaFiles, r.Job.Name)
			report.Media++
		}
		if err != nil {
			logger.Error("media destination unusable, aborting run", "error", err)
			fatal = err
		}
	}

	report.Posts = len(records)
	report.Duration = time.Since(start)
	logger.Info("query done",
		"posts", report.Posts,
		"skipped", report.PostsSkipped,
		"media", report.Media,
		"iterations", report.Iterations,
		"duration", report.Duration.Round(time.Millisecond),
	)

	if fatal == nil {
		fatal = ctx.Err()
	}
	return records, report, fatal
}

// extractAll turns blocks into records and numbers their media candidates.
// Numbering runs across all posts of the query starting at 1, so owners[i] is
// the index of the record that jobs[i] belongs to.
func (h *Harvester) extractAll(query string, blocks []types.PostBlock, logger *slog.Logger, report *types.QueryReport) ([]*types.PostRecord, []media.Job, []int) {
	prefix := media.SafeName(query)
	next := 1

	var (
		records []*types.PostRecord
		jobs    []media.Job
		owners  []int
	)
	for i, block := range blocks {
		record, candidates, err := h.extractor.Extract(query, block)
		if err != nil {
			issue := &types.ExtractionIssue{Index: i, Err: err}
			report.PostsSkipped++
			h.metrics.PostsSkipped.Add(1)
			logger.Warn("post skipped", "error", issue)
			continue
		}

		assigned := media.Assign(candidates, prefix, next)
		next += len(assigned)
		for range assigned {
			owners = append(owners, len(records))
		}
		jobs = append(jobs, assigned...)
		records = append(records, record)
		h.metrics.Posts.Add(1)
	}
	return records, jobs, owners
}

func (h *Harvester) pause(ctx context.Context) error {
	d := h.cfg.Harvest.QueryPause
	if d <= 0 {
		return ctx.Err()
	}
	h.logger.Debug("pausing between queries", "pause", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SearchURL fills the {query} placeholder of template with the escaped query.
// Spaces are encoded as %20.
func SearchURL(template, query string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return strings.ReplaceAll(template, "{query}", escaped)
}

// QueryFolder returns the output folder of a query for a run.
func QueryFolder(outputDir, query, dateTag string) string {
	return filepath.Join(outputDir, media.SafeName(query)+"_"+dateTag)
}
