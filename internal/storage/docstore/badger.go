package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/docsnap/internal/core/domain"
)

const badgerKeyPrefix = "doc/"

// BadgerOptions tunes the badger engine.
type BadgerOptions struct {
	// GCInterval is the interval between value log GC runs.
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// InMemory runs badger without touching disk (tests).
	InMemory bool
}

// DefaultBadgerOptions returns the default badger tuning.
func DefaultBadgerOptions() BadgerOptions {
	return BadgerOptions{
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   64 << 20,
		SyncWrites:  true,
	}
}

// BadgerStore implements Store on top of Badger v3.
type BadgerStore struct {
	db     *badger.DB
	opts   BadgerOptions
	cols   *collections
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRuns       prometheus.Counter

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerStore opens (or creates) a badger database in dir.
func NewBadgerStore(dir string, specs []domain.CollectionSpec, opts BadgerOptions, logger *slog.Logger) (*BadgerStore, error) {
	if dir == "" && !opts.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	bopts := badger.DefaultOptions(dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = &badgerLogger{logger: logger}
	if opts.CacheSize > 0 {
		bopts.BlockCacheSize = opts.CacheSize
	}
	bopts.SyncWrites = opts.SyncWrites

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		opts:   opts,
		cols:   newCollections(specs),
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	logger.Info("badger document store started",
		"dir", dir,
		"in_memory", opts.InMemory,
		"gc_interval", opts.GCInterval)

	return s, nil
}

func collectionPrefix(collection string) []byte {
	return []byte(badgerKeyPrefix + collection + "/")
}

func documentKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

func (s *BadgerStore) check(ctx context.Context, collection string) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validateCollection(collection)
}

// Find implements Store. Badger iterates keys in byte order, so results
// come back sorted by identity.
func (s *BadgerStore) Find(ctx context.Context, collection string, filter Filter) ([]domain.Document, error) {
	if err := s.check(ctx, collection); err != nil {
		return nil, err
	}
	spec := s.cols.spec(collection)

	var docs []domain.Document
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = collectionPrefix(collection)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			body, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := domain.DecodeDocument(body)
			if err != nil {
				return fmt.Errorf("key %s: %w", it.Item().Key(), err)
			}
			if matches(spec, doc, filter) {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: find %s: %w", collection, err)
	}
	return docs, nil
}

// FindOne implements Store.
func (s *BadgerStore) FindOne(ctx context.Context, collection, id string) (domain.Document, error) {
	if err := s.check(ctx, collection); err != nil {
		return nil, err
	}

	var body []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(collection, id))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrDocumentNotFound.WithDetails(collection + "/" + id)
	}
	if err != nil {
		return nil, fmt.Errorf("badger: get %s/%s: %w", collection, id, err)
	}
	return domain.DecodeDocument(body)
}

// Create implements Store.
func (s *BadgerStore) Create(ctx context.Context, collection string, doc domain.Document) (string, error) {
	if err := s.check(ctx, collection); err != nil {
		return "", err
	}
	id, body, _, err := prepareCreate(s.cols.spec(collection), doc)
	if err != nil {
		return "", err
	}

	key := documentKey(collection, id)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return domain.ErrDocumentConflict.WithDetails(collection + "/" + id)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, body)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Upsert implements Store.
func (s *BadgerStore) Upsert(ctx context.Context, collection, id string, doc domain.Document) error {
	if err := s.check(ctx, collection); err != nil {
		return err
	}
	body, _, err := prepareUpsert(s.cols.spec(collection), id, doc)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey(collection, id), body)
	})
}

// DeleteMany implements Store.
func (s *BadgerStore) DeleteMany(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx, collection); err != nil {
		return 0, err
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = collectionPrefix(collection)
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: scan %s: %w", collection, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("badger: delete %s: %w", bytes.TrimPrefix(k, []byte(badgerKeyPrefix)), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger: flush deletes: %w", err)
	}
	return len(keys), nil
}

// Count implements Store.
func (s *BadgerStore) Count(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx, collection); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = collectionPrefix(collection)
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Engine implements Store.
func (s *BadgerStore) Engine() string { return EngineBadger }

// GC runs value log garbage collection until badger reports nothing left
// to rewrite. Returns the number of rewritten log files.
func (s *BadgerStore) GC() (int, error) {
	start := time.Now()
	runs := 0
	for {
		err := s.db.RunValueLogGC(s.opts.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			return runs, fmt.Errorf("badger: gc: %w", err)
		}
		runs++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcRuns.Add(uint64(runs))
	if s.metricsGCRuns != nil {
		s.metricsGCRuns.Add(float64(runs))
	}

	s.logger.Debug("badger gc completed", "rewrites", runs, "elapsed", time.Since(start))
	return runs, nil
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	s.logger.Info("badger document store closed")
	return nil
}

// RegisterMetrics registers badger size gauges with the registry and starts
// refreshing them. Returns the store for chaining.
func (s *BadgerStore) RegisterMetrics(registry prometheus.Registerer) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsnap",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsnap",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsnap",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC run",
	})
	s.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docsnap",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by garbage collection",
	})

	registry.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsLastGCTime,
		s.metricsGCRuns,
	)

	go s.metricsUpdateLoop()
	return s
}

func (s *BadgerStore) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.metricsLSMSize.Set(float64(lsm))
			s.metricsValueLogSize.Set(float64(vlog))
			if last := s.lastGCTime.Load(); last > 0 {
				s.metricsLastGCTime.Set(float64(last) / 1000.0)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	interval := s.opts.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.GC(); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
