package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/obsidianstack/scalarship/agent/internal/config"
)

// textfileScraper reads *.prom files from a directory. A file is read again
// only after its modification time changes.
type textfileScraper struct {
	src  config.Source
	seen map[string]time.Time
}

func newTextfileScraper(src config.Source) *textfileScraper {
	return &textfileScraper{src: src, seen: make(map[string]time.Time)}
}

func (s *textfileScraper) Scrape(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	if _, err := os.Stat(s.src.Path); err != nil {
		return nil, fmt.Errorf("textfile scrape %q: %w", s.src.ID, err)
	}
	paths, err := filepath.Glob(filepath.Join(s.src.Path, "*.prom"))
	if err != nil {
		return nil, fmt.Errorf("textfile scrape %q: %w", s.src.ID, err)
	}

	var out map[string]*dto.MetricFamily
	current := make(map[string]time.Time, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			continue // removed since Glob
		}
		mod := info.ModTime()
		current[path] = mod
		if prev, ok := s.seen[path]; ok && prev.Equal(mod) {
			continue
		}

		mfs, err := readPromFile(path)
		if err != nil {
			slog.Warn("scraper: textfile unreadable, skipping until it changes",
				"source", s.src.ID, "file", path, "err", err)
			continue
		}
		if out == nil {
			out = make(map[string]*dto.MetricFamily)
		}
		mergeFamilies(out, mfs, s.src.ID)
	}
	s.seen = current
	return out, nil
}

func readPromFile(path string) (map[string]*dto.MetricFamily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMetrics(f)
}

// mergeFamilies adds src's families to dst. Families of the same name are
// combined when their types agree; otherwise the first one wins.
func mergeFamilies(dst, src map[string]*dto.MetricFamily, sourceID string) {
	for name, mf := range src {
		have, ok := dst[name]
		if !ok {
			dst[name] = mf
			continue
		}
		if have.GetType() != mf.GetType() {
			slog.Warn("scraper: conflicting metric types, keeping first",
				"source", sourceID, "metric", name,
				"kept", have.GetType().String(), "dropped", mf.GetType().String())
			continue
		}
		have.Metric = append(have.Metric, mf.Metric...)
	}
}
