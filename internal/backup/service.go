package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/backup/catalog"
	"github.com/yndnr/docsnap/internal/backup/dirlock"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/backup/restore"
	"github.com/yndnr/docsnap/internal/backup/retention"
	"github.com/yndnr/docsnap/internal/backup/snapshot"
	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
	"github.com/yndnr/docsnap/internal/telemetry/metric"
	"github.com/yndnr/docsnap/internal/telemetry/tracer"
	"github.com/yndnr/docsnap/pkg/crypto/adaptive"
)

// Operation names used for locks, spans and metric labels.
const (
	OpCreateFull        = "create_full"
	OpCreateIncremental = "create_incremental"
	OpList              = "list"
	OpStats             = "stats"
	OpPreview           = "preview"
	OpApply             = "apply"
	OpDelete            = "delete"
	OpPrune             = "prune"
)

// Config configures a Service.
type Config struct {
	Dir                  string
	Compression          string
	EncryptionPassphrase string
	EncryptionCipher     string
	FetchConcurrency     int
	RestoreRateLimit     int
}

// DeleteResult reports a removed snapshot file.
type DeleteResult struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Service exposes the backup operations for one directory.
type Service struct {
	dir         string
	catalog     *catalog.Catalog
	lock        *dirlock.Lock
	exporter    *exporter.Exporter
	manager     *snapshot.Manager
	coordinator *restore.Coordinator
	retention   *retention.Policy
	metrics     *metric.Metrics
	logger      *slog.Logger
}

// New builds a Service over exp. metrics may be nil.
func New(cfg Config, exp *exporter.Exporter, metrics *metric.Metrics, log *slog.Logger) (*Service, error) {
	if cfg.Dir == "" {
		return nil, domain.ErrMissingArgument.WithDetails("backup directory")
	}
	if exp == nil {
		return nil, domain.ErrMissingArgument.WithDetails("exporter")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "backup")

	comp, err := archive.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var opts []archive.Option
	if cfg.EncryptionPassphrase != "" {
		enc, err := archive.NewEncryptor(cfg.EncryptionPassphrase, adaptive.CipherType(cfg.EncryptionCipher))
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithEncryptor(enc))
	}
	codec := archive.NewCodec(opts...)

	lock, err := dirlock.For(cfg.Dir)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(lock.Dir())

	s := &Service{
		dir:      lock.Dir(),
		catalog:  cat,
		lock:     lock,
		exporter: exp,
		manager: snapshot.NewManager(cat, lock, exp, codec, snapshot.Config{
			Compression:      comp,
			FetchConcurrency: cfg.FetchConcurrency,
		}, log),
		coordinator: restore.NewCoordinator(cat, lock, exp, codec, cfg.RestoreRateLimit, log),
		retention:   retention.New(cat, lock, log),
		metrics:     metrics,
		logger:      log,
	}
	if metrics != nil {
		metrics.MustRegister(metric.NewCatalogCollector(s.catalogStats))
	}
	return s, nil
}

// SetClock replaces the time source of every component.
func (s *Service) SetClock(now func() time.Time) {
	s.manager.SetClock(now)
	s.retention.SetClock(now)
}

// Dir returns the absolute backup directory.
func (s *Service) Dir() string { return s.dir }

// Exporter returns the collection adapter.
func (s *Service) Exporter() *exporter.Exporter { return s.exporter }

func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// begin opens a span for op; the returned func records err in the span,
// the metrics and the log.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := tracer.StartSpan(ctx, "backup."+op, attrs...)
	return ctx, func(err error) {
		tracer.End(span, err)
		s.metrics.ObserveOperation(op, started, err)
		if err == nil {
			return
		}
		if errors.Is(err, domain.ErrLockContention) {
			s.metrics.Contended(op)
			s.log(ctx).Warn("backup operation refused", "operation", op, "error", err)
			return
		}
		s.log(ctx).Error("backup operation failed", "operation", op, "error", err)
	}
}

// CreateFull writes a full snapshot of every tracked collection.
func (s *Service) CreateFull(ctx context.Context, compress bool) (res *snapshot.Result, err error) {
	ctx, done := s.begin(ctx, OpCreateFull, attribute.Bool("compress", compress))
	defer func() { done(err) }()

	res, err = s.manager.CreateFull(ctx, compress)
	if err != nil {
		return nil, err
	}
	s.written(ctx, res)
	return res, nil
}

// CreateIncremental writes an incremental snapshot against the latest full
// one, or a full snapshot when none exists.
func (s *Service) CreateIncremental(ctx context.Context) (res *snapshot.Result, err error) {
	ctx, done := s.begin(ctx, OpCreateIncremental)
	defer func() { done(err) }()

	res, err = s.manager.CreateIncremental(ctx)
	if err != nil {
		return nil, err
	}
	s.written(ctx, res)
	return res, nil
}

func (s *Service) written(ctx context.Context, res *snapshot.Result) {
	s.metrics.SnapshotWritten(string(res.Kind), res.Size)
	s.log(ctx).Info("snapshot created",
		"filename", res.Filename,
		"kind", res.Kind,
		"based_on", res.BasedOn,
		"documents", res.Statistics.TotalDocuments,
		"size", res.Size,
		"fell_back_to_full", res.FellBackToFull)
}

// ListSnapshots returns the catalog, newest first.
func (s *Service) ListSnapshots(ctx context.Context) (entries []catalog.Entry, err error) {
	ctx, done := s.begin(ctx, OpList)
	defer func() { done(err) }()

	release, err := s.lock.TryRead(OpList)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.catalog.List(ctx)
}

// GetStats summarizes the catalog.
func (s *Service) GetStats(ctx context.Context) (st catalog.Stats, err error) {
	ctx, done := s.begin(ctx, OpStats)
	defer func() { done(err) }()

	release, err := s.lock.TryRead(OpStats)
	if err != nil {
		return catalog.Stats{}, err
	}
	defer release()

	return s.catalog.Stats(ctx)
}

// PreviewRestore decodes a snapshot without touching the store.
func (s *Service) PreviewRestore(ctx context.Context, filename string) (p *restore.Preview, err error) {
	ctx, done := s.begin(ctx, OpPreview, attribute.String("filename", filename))
	defer func() { done(err) }()

	return s.coordinator.Preview(ctx, filename)
}

// ApplyRestore restores a snapshot into the store. A partial result is
// returned together with the error when the run aborts mid-way.
func (s *Service) ApplyRestore(ctx context.Context, filename string, opts restore.Options) (res *restore.Result, err error) {
	ctx, done := s.begin(ctx, OpApply,
		attribute.String("filename", filename),
		attribute.String("merge_strategy", opts.MergeStrategy.String()),
		attribute.Bool("clear_existing", opts.ClearExisting))
	defer func() { done(err) }()

	res, err = s.coordinator.Apply(ctx, filename, opts)
	if res != nil {
		s.metrics.RestoreOutcome("inserted", res.Inserted)
		s.metrics.RestoreOutcome("skipped", res.Skipped)
		s.metrics.RestoreOutcome("error", res.Errors)
	}
	return res, err
}

// DeleteSnapshot removes one snapshot file.
func (s *Service) DeleteSnapshot(ctx context.Context, filename string) (res *DeleteResult, err error) {
	ctx, done := s.begin(ctx, OpDelete, attribute.String("filename", filename))
	defer func() { done(err) }()

	if err := catalog.ValidateFileName(filename); err != nil {
		return nil, err
	}
	release, err := s.lock.TryWrite(OpDelete)
	if err != nil {
		return nil, err
	}
	defer release()

	entry, err := s.catalog.Stat(filename)
	if err != nil {
		return nil, err
	}
	path, err := s.catalog.Path(filename)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrSnapshotNotFound.WithDetails(filename)
		}
		return nil, domain.ErrSnapshotIO.WithCause(err).WithDetails(fmt.Sprintf("remove %s", filename))
	}

	s.log(ctx).Info("snapshot deleted", "filename", filename, "size", entry.Size)
	return &DeleteResult{Filename: filename, Size: entry.Size}, nil
}

// PruneOlderThan removes snapshots older than days, keeping the newest
// full snapshot.
func (s *Service) PruneOlderThan(ctx context.Context, days int) (res *retention.Result, err error) {
	ctx, done := s.begin(ctx, OpPrune, attribute.Int("days", days))
	defer func() { done(err) }()

	res, err = s.retention.PruneOlderThan(ctx, days)
	if res != nil {
		s.metrics.Pruned(res.DeletedCount)
	}
	return res, err
}

// catalogStats feeds the scrape-time collector. It does not take the lock.
func (s *Service) catalogStats() (metric.CatalogStats, error) {
	st, err := s.catalog.Stats(context.Background())
	if err != nil {
		return metric.CatalogStats{}, err
	}
	return metric.CatalogStats{
		Count:            st.Count,
		TotalBytes:       st.TotalBytes,
		FullCount:        st.FullCount,
		IncrementalCount: st.IncrementalCount,
		CompressedCount:  st.CompressedCount,
	}, nil
}
