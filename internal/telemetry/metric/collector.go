package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CatalogStats is the subset of catalog statistics exported as gauges.
type CatalogStats struct {
	Count            int
	TotalBytes       int64
	FullCount        int
	IncrementalCount int
	CompressedCount  int
}

// CatalogStatsFunc reads the current catalog statistics.
type CatalogStatsFunc func() (CatalogStats, error)

// CatalogCollector reports snapshot directory gauges at scrape time.
type CatalogCollector struct {
	stats CatalogStatsFunc

	files       *prometheus.Desc
	bytes       *prometheus.Desc
	byType      *prometheus.Desc
	compressed  *prometheus.Desc
	scrapeError *prometheus.Desc
}

// NewCatalogCollector creates a collector backed by fn.
func NewCatalogCollector(fn CatalogStatsFunc) *CatalogCollector {
	fq := func(name string) string {
		return prometheus.BuildFQName(Namespace, "backup", name)
	}
	return &CatalogCollector{
		stats:       fn,
		files:       prometheus.NewDesc(fq("catalog_files"), "Snapshot files in the backup directory.", nil, nil),
		bytes:       prometheus.NewDesc(fq("catalog_bytes"), "Total size of snapshot files.", nil, nil),
		byType:      prometheus.NewDesc(fq("catalog_files_by_type"), "Snapshot files by type.", []string{"type"}, nil),
		compressed:  prometheus.NewDesc(fq("catalog_compressed_files"), "Compressed snapshot files.", nil, nil),
		scrapeError: prometheus.NewDesc(fq("catalog_scrape_error"), "1 if the last catalog scan failed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *CatalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.files
	ch <- c.bytes
	ch <- c.byType
	ch <- c.compressed
	ch <- c.scrapeError
}

// Collect implements prometheus.Collector.
func (c *CatalogCollector) Collect(ch chan<- prometheus.Metric) {
	st, err := c.stats()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.scrapeError, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeError, prometheus.GaugeValue, 0)
	ch <- prometheus.MustNewConstMetric(c.files, prometheus.GaugeValue, float64(st.Count))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(st.TotalBytes))
	ch <- prometheus.MustNewConstMetric(c.byType, prometheus.GaugeValue, float64(st.FullCount), "full")
	ch <- prometheus.MustNewConstMetric(c.byType, prometheus.GaugeValue, float64(st.IncrementalCount), "incremental")
	ch <- prometheus.MustNewConstMetric(c.compressed, prometheus.GaugeValue, float64(st.CompressedCount))
}
