package scraper

import (
	"context"
	"fmt"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/scalarship/agent/internal/config"
)

type promScraper struct {
	src    config.Source
	client *http.Client
}

// Scrape fetches the source's metrics endpoint. Every successful scrape is
// new data.
func (s *promScraper) Scrape(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("prometheus scrape %q: build request: %w", s.src.ID, err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prometheus scrape %q: http get: %w", s.src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus scrape %q: unexpected status %d", s.src.ID, resp.StatusCode)
	}

	mfs, err := parseMetrics(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("prometheus scrape %q: %w", s.src.ID, err)
	}
	return mfs, nil
}
