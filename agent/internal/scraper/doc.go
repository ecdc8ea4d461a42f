// Package scraper reads scalar records from Prometheus exposition sources.
//
// Two source types are supported: "prometheus" scrapes an HTTP metrics
// endpoint (prometheus.go) and "textfile" reads *.prom files from a
// directory, node-exporter style (textfile.go). Factory: New(config.Source)
// returns the correct Scraper.
//
// Collector turns scrapes into records. Every sample becomes one record in
// the source's run: the tag is the series name with its labels, the step
// counts the source's successful scrapes, and the metadata is the encoded
// MetricFamily header (name, help, type). Counters, gauges and untyped
// samples are scalar; histograms and summaries are reported as non-scalar.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// shared authRoundTripper in base.go.
package scraper
