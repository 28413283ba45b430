package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/IshaanNene/postharvest/internal/parser"
	"github.com/IshaanNene/postharvest/internal/render"
	"github.com/IshaanNene/postharvest/internal/types"
)

// Collection is what one scroll loop gathered for a page.
type Collection struct {
	Blocks     []types.PostBlock
	Iterations int
	Plateaued  bool
}

// Scroller drives a Source through the bounded scroll loop.
type Scroller struct {
	selector string
	settle   time.Duration
	logger   *slog.Logger
}

// NewScroller creates a Scroller that splits snapshots with selector and waits
// settle after every load and scroll.
func NewScroller(selector string, settle time.Duration, logger *slog.Logger) *Scroller {
	return &Scroller{
		selector: selector,
		settle:   settle,
		logger:   logger.With("component", "scroller"),
	}
}

// Collect loads pageURL, then scrolls up to maxIterations times, merging the
// post blocks of every snapshot. The loop stops early when the page height
// stops changing between iterations. This can miss content that arrives
// late, which is accepted.
//
// A failed load returns a *types.SourceUnavailableError. Errors after a
// successful load end the loop and keep what was already collected.
func (s *Scroller) Collect(ctx context.Context, src render.Source, pageURL string, maxIterations int) (*Collection, error) {
	logger := s.logger.With("url", pageURL)

	if err := src.Load(ctx, pageURL); err != nil {
		return nil, &types.SourceUnavailableError{URL: pageURL, Err: err}
	}
	if err := s.wait(ctx); err != nil {
		return &Collection{}, nil
	}

	set := NewBlockSet()
	col := &Collection{}

	last, err := src.GrowthSignal(ctx)
	if err != nil {
		logger.Warn("could not read page height, stopping", "error", err)
		return col, nil
	}

	for i := 1; i <= maxIterations; i++ {
		if err := src.ScrollToBottom(ctx); err != nil {
			logger.Warn("scroll failed, stopping", "iteration", i, "error", err)
			break
		}
		if err := s.wait(ctx); err != nil {
			break
		}

		growth, err := src.GrowthSignal(ctx)
		if err != nil {
			logger.Warn("could not read page height, stopping", "iteration", i, "error", err)
			break
		}
		markup, err := src.CurrentMarkup(ctx)
		if err != nil {
			logger.Warn("snapshot failed, stopping", "iteration", i, "error", err)
			break
		}
		blocks, err := parser.SplitBlocks(markup, s.selector)
		if err != nil {
			logger.Warn("could not split snapshot", "iteration", i, "error", err)
		}

		added := set.Add(blocks)
		col.Iterations = i
		logger.Info("scrolled", "iteration", i, "new", len(added), "total", set.Len(), "height", growth)

		if growth == last {
			col.Plateaued = true
			logger.Debug("page height unchanged, stopping", "iteration", i, "height", growth)
			break
		}
		last = growth
	}

	col.Blocks = set.Blocks()
	return col, nil
}

func (s *Scroller) wait(ctx context.Context) error {
	if s.settle <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
