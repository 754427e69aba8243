// Package metric provides Prometheus metrics for docsnap.
//
//   - prometheus.go: backup operation counters and histograms
//   - collector.go: on-scrape gauges over the snapshot catalog
//
// Metrics are registered on a private registry and exposed at /metrics.
package metric
