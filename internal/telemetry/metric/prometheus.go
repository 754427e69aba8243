package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every docsnap metric.
const Namespace = "docsnap"

// Metrics holds the backup subsystem instruments.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsCreated  *prometheus.CounterVec
	SnapshotSize      *prometheus.HistogramVec
	OperationFailures *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	RestoreDocuments  *prometheus.CounterVec
	PrunedFiles       prometheus.Counter
	LockContention    *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates the instruments and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SnapshotsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "snapshots_created_total",
			Help:      "Snapshots written, by kind.",
		}, []string{"kind"}),
		SnapshotSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "snapshot_size_bytes",
			Help:      "Size of written snapshot files.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"kind"}),
		OperationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "operation_failures_total",
			Help:      "Failed backup operations, by operation.",
		}, []string{"operation"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "operation_duration_seconds",
			Help:      "Duration of backup operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		RestoreDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "restore_documents_total",
			Help:      "Documents processed by restore, by outcome.",
		}, []string{"outcome"}),
		PrunedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "pruned_files_total",
			Help:      "Snapshot files removed by retention.",
		}),
		LockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "lock_contention_total",
			Help:      "Operations rejected because the backup directory was busy.",
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by method and status.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SnapshotsCreated,
		m.SnapshotSize,
		m.OperationFailures,
		m.OperationDuration,
		m.RestoreDocuments,
		m.PrunedFiles,
		m.LockContention,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry returns the underlying registry so storage engines and
// collectors can register their own instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers additional collectors.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// ObserveOperation records the duration of op and, when err is non-nil,
// a failure. Safe to call on a nil receiver.
func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		m.OperationFailures.WithLabelValues(op).Inc()
	}
}

// SnapshotWritten records a new snapshot file.
func (m *Metrics) SnapshotWritten(kind string, size int64) {
	if m == nil {
		return
	}
	m.SnapshotsCreated.WithLabelValues(kind).Inc()
	m.SnapshotSize.WithLabelValues(kind).Observe(float64(size))
}

// RestoreOutcome adds n documents with the given outcome
// ("inserted", "skipped", "error").
func (m *Metrics) RestoreOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RestoreDocuments.WithLabelValues(outcome).Add(float64(n))
}

// Pruned adds n removed files.
func (m *Metrics) Pruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PrunedFiles.Add(float64(n))
}

// Contended records a lock rejection for op.
func (m *Metrics) Contended(op string) {
	if m == nil {
		return
	}
	m.LockContention.WithLabelValues(op).Inc()
}

// HTTPServed records one completed HTTP request.
func (m *Metrics) HTTPServed(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
