// Package retention deletes snapshot files past an age threshold
// while always keeping the newest full snapshot.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/docsnap/internal/backup/catalog"
	"github.com/yndnr/docsnap/internal/backup/dirlock"
	"github.com/yndnr/docsnap/internal/core/domain"
)

// Result reports a prune run.
type Result struct {
	DeletedCount int       `json:"deletedCount"`
	Deleted      []string  `json:"deleted"`
	FreedBytes   int64     `json:"freedBytes"`
	Cutoff       time.Time `json:"cutoff"`
	// KeptBaseline is the full snapshot kept even though it is past the cutoff.
	KeptBaseline string `json:"keptBaseline,omitempty"`
}

// Policy prunes a backup directory.
type Policy struct {
	catalog *catalog.Catalog
	lock    *dirlock.Lock
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a retention policy.
func New(cat *catalog.Catalog, lock *dirlock.Lock, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{catalog: cat, lock: lock, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (p *Policy) SetClock(now func() time.Time) {
	p.now = now
}

// PruneOlderThan deletes every entry whose modification time is strictly
// before now minus days. The most recent full entry is never deleted.
func (p *Policy) PruneOlderThan(ctx context.Context, days int) (*Result, error) {
	if days < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("days must be >= 0, got %d", days))
	}
	release, err := p.lock.TryWrite("prune")
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := p.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Deleted: []string{},
		Cutoff:  p.now().Add(-time.Duration(days) * 24 * time.Hour),
	}

	baseline := ""
	for _, e := range entries {
		if e.Type == catalog.TypeFull {
			baseline = e.Filename
			break
		}
	}

	var errs []error
	for _, e := range entries {
		if !e.ModTime.Before(res.Cutoff) {
			continue
		}
		if e.Filename == baseline {
			res.KeptBaseline = baseline
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := os.Remove(filepath.Join(p.catalog.Dir(), e.Filename))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", e.Filename, err))
			continue
		}
		res.DeletedCount++
		res.Deleted = append(res.Deleted, e.Filename)
		res.FreedBytes += e.Size
		p.logger.Debug("pruned snapshot", "filename", e.Filename, "modified", e.ModTime)
	}

	if len(errs) > 0 {
		return res, domain.ErrSnapshotIO.WithCause(errors.Join(errs...)).
			WithDetails(fmt.Sprintf("pruned %d files, %d failures", res.DeletedCount, len(errs)))
	}
	return res, nil
}
