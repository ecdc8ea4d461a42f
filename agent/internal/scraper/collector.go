package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/scalarship/agent/internal/config"
	"github.com/obsidianstack/scalarship/pkg/types"
)

// Collector reads every configured source on each Pending call and
// returns their samples as records. It satisfies uploader.Source.
type Collector struct {
	mu      sync.Mutex
	sources []*trackedSource
	now     func() time.Time
}

type trackedSource struct {
	cfg     config.Source
	scraper Scraper
	step    int64 // successful scrapes so far
}

// NewCollector builds a Scraper for each source.
func NewCollector(srcs []config.Source) (*Collector, error) {
	c := &Collector{now: time.Now}
	for _, src := range srcs {
		s, err := New(src)
		if err != nil {
			return nil, fmt.Errorf("scraper: source %q: %w", src.ID, err)
		}
		c.sources = append(c.sources, &trackedSource{cfg: src, scraper: s})
	}
	return c, nil
}

// Pending scrapes each source in configuration order. A failing source is
// logged and skipped; only cancellation of ctx is returned as an error.
func (c *Collector) Pending(ctx context.Context) ([]types.RunRecords, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []types.Record
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mfs, err := s.scraper.Scrape(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("scraper: scrape failed", "source", s.cfg.ID, "type", s.cfg.Type, "err", err)
			continue
		}
		if len(mfs) == 0 {
			continue
		}
		s.step++
		recs := toRecords(s.cfg.RunName(), s.step, c.now(), mfs)
		slog.Debug("scraper: scraped", "source", s.cfg.ID, "step", s.step, "records", len(recs))
		records = append(records, recs...)
	}
	return types.GroupByRun(records), nil
}
