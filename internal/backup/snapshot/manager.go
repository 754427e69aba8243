package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/backup/catalog"
	"github.com/yndnr/docsnap/internal/backup/dirlock"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/core/domain"
)

// DefaultFetchConcurrency bounds parallel collection fetches.
const DefaultFetchConcurrency = 4

// Config configures the manager.
type Config struct {
	// Compression used when a caller asks for a compressed snapshot.
	// CompressionNone here is treated as gzip.
	Compression archive.Compression

	// FetchConcurrency bounds parallel collection fetches.
	FetchConcurrency int
}

// Result describes a written snapshot.
type Result struct {
	Filename   string             `json:"filename"`
	Kind       archive.Kind       `json:"kind"`
	BasedOn    string             `json:"basedOn,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Statistics archive.Statistics `json:"statistics"`
	Size       int64              `json:"size"`
	Compressed bool               `json:"compressed"`
	Encrypted  bool               `json:"encrypted"`
	Checksum   string             `json:"checksum"`

	// FellBackToFull is set when an incremental was requested but no full
	// snapshot existed yet.
	FellBackToFull bool `json:"fellBackToFull,omitempty"`
}

// Manager writes snapshot files.
type Manager struct {
	catalog  *catalog.Catalog
	lock     *dirlock.Lock
	exporter *exporter.Exporter
	codec    *archive.Codec
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a manager writing into cat's directory.
func NewManager(cat *catalog.Catalog, lock *dirlock.Lock, exp *exporter.Exporter, codec *archive.Codec, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Compression == "" || cfg.Compression == archive.CompressionNone {
		cfg.Compression = archive.CompressionGzip
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		catalog:  cat,
		lock:     lock,
		exporter: exp,
		codec:    codec,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CreateFull exports every tracked collection into a new full snapshot.
func (m *Manager) CreateFull(ctx context.Context, compress bool) (*Result, error) {
	release, err := m.lock.TryWrite("create_full")
	if err != nil {
		return nil, err
	}
	defer release()

	return m.createFull(ctx, compress)
}

// CreateIncremental exports documents modified since the latest full
// snapshot. Without a full snapshot it creates a compressed full one.
func (m *Manager) CreateIncremental(ctx context.Context) (*Result, error) {
	release, err := m.lock.TryWrite("create_incremental")
	if err != nil {
		return nil, err
	}
	defer release()

	base, ok, err := m.catalog.LatestFull(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.logger.Info("no full snapshot found, creating full instead of incremental")
		res, err := m.createFull(ctx, true)
		if err != nil {
			return nil, err
		}
		res.FellBackToFull = true
		return res, nil
	}

	since, err := m.baseTime(base.Filename)
	if err != nil {
		return nil, err
	}

	env := archive.NewEnvelope(archive.KindIncremental, m.now())
	env.BasedOn = base.Filename
	err = m.fetch(ctx, env, func(ctx context.Context, c *exporter.Collection) ([]domain.Document, error) {
		return c.ExportChangedSince(ctx, since)
	})
	if err != nil {
		return nil, err
	}
	return m.write(ctx, env, m.cfg.Compression)
}

func (m *Manager) createFull(ctx context.Context, compress bool) (*Result, error) {
	env := archive.NewEnvelope(archive.KindFull, m.now())
	err := m.fetch(ctx, env, func(ctx context.Context, c *exporter.Collection) ([]domain.Document, error) {
		return c.ExportAll(ctx)
	})
	if err != nil {
		return nil, err
	}

	comp := archive.CompressionNone
	if compress {
		comp = m.cfg.Compression
	}
	return m.write(ctx, env, comp)
}

// baseTime returns the timestamp of a full snapshot, taken from its
// filename when possible and from its envelope otherwise.
func (m *Manager) baseTime(filename string) (time.Time, error) {
	if p, ok := catalog.ParseFileName(filename); ok {
		return p.Timestamp, nil
	}

	data, err := os.ReadFile(filepath.Join(m.catalog.Dir(), filename))
	if err != nil {
		return time.Time{}, domain.ErrSnapshotIO.WithCause(err).WithDetails(filename)
	}
	meta, _, err := m.codec.DecodeMetadata(data)
	if err != nil {
		return time.Time{}, err
	}
	return meta.Timestamp, nil
}

type fetchFunc func(ctx context.Context, c *exporter.Collection) ([]domain.Document, error)

// fetch runs fn for every tracked collection concurrently and stores the
// results in env. Any failure cancels the remaining fetches.
func (m *Manager) fetch(ctx context.Context, env *archive.Envelope, fn fetchFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.FetchConcurrency)

	var mu sync.Mutex
	for _, spec := range m.exporter.Tracked() {
		c := m.exporter.Collection(spec.Name)
		g.Go(func() error {
			docs, err := fn(gctx, c)
			if err != nil {
				return err
			}
			mu.Lock()
			env.SetCollection(c.Name(), docs)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// write encodes env and moves it into place under a unique filename.
func (m *Manager) write(ctx context.Context, env *archive.Envelope, comp archive.Compression) (*Result, error) {
	if err := os.MkdirAll(m.catalog.Dir(), 0o750); err != nil {
		return nil, domain.ErrSnapshotIO.WithCause(err).WithDetails("create backup dir")
	}

	name, err := m.reserveName(env, comp)
	if err != nil {
		return nil, err
	}

	data, err := m.codec.Encode(env, comp)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	// Last point where cancellation leaves no trace on disk.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := writeFileAtomic(m.catalog.Dir(), name, data); err != nil {
		return nil, domain.ErrSnapshotIO.WithCause(err).WithDetails(name)
	}

	sum := sha256.Sum256(data)
	res := &Result{
		Filename:   name,
		Kind:       env.Kind,
		BasedOn:    env.BasedOn,
		Timestamp:  env.Timestamp,
		Statistics: env.Statistics,
		Size:       int64(len(data)),
		Compressed: env.Compressed,
		Encrypted:  m.codec.Encrypted(),
		Checksum:   hex.EncodeToString(sum[:]),
	}

	m.logger.Info("snapshot written",
		"filename", name,
		"kind", env.Kind,
		"based_on", env.BasedOn,
		"documents", env.Statistics.TotalDocuments,
		"size", res.Size)

	return res, nil
}

// reserveName picks "<kind>_backup_<ms><ext>", advancing the envelope
// timestamp one millisecond at a time until the name is free.
func (m *Manager) reserveName(env *archive.Envelope, comp archive.Compression) (string, error) {
	typ := catalog.TypeFull
	if env.Kind == archive.KindIncremental {
		typ = catalog.TypeIncremental
	}
	for i := 0; i < 1000; i++ {
		name := catalog.FileName(typ, env.Timestamp, comp)
		_, err := os.Stat(filepath.Join(m.catalog.Dir(), name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", domain.ErrSnapshotIO.WithCause(err).WithDetails(name)
		}
		env.Timestamp = env.Timestamp.Add(time.Millisecond)
	}
	return "", domain.ErrSnapshotIO.WithDetails("no free snapshot filename")
}

// writeFileAtomic writes data to dir/name via a temp file, fsync and rename.
func writeFileAtomic(dir, name string, data []byte) error {
	tmpPath := filepath.Join(dir, "."+name+catalog.TempSuffix)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir persists the rename. Errors are ignored: some platforms cannot
// fsync directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
