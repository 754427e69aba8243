// Package restore previews snapshot files and applies them back into the
// document store.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/backup/catalog"
	"github.com/yndnr/docsnap/internal/backup/dirlock"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/core/domain"
)

// State is the lifecycle position of a restore invocation.
type State string

const (
	StateRequested State = "requested"
	StateValidated State = "validated"
	StatePreview   State = "preview"
	StateApplying  State = "applying"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// maxErrorSamples bounds the per-document error messages kept in a result.
const maxErrorSamples = 20

// Options controls Apply.
type Options struct {
	ClearExisting bool          `json:"clearExisting"`
	MergeStrategy MergeStrategy `json:"mergeStrategy"`
}

// Preview is the read-only view of a snapshot file.
type Preview struct {
	Filename   string             `json:"filename"`
	Size       int64              `json:"size"`
	Type       string             `json:"type"`
	Metadata   archive.Metadata   `json:"metadata"`
	Statistics archive.Statistics `json:"statistics"`
	State      State              `json:"state"`
}

// CollectionResult counts outcomes for one collection.
type CollectionResult struct {
	Cleared  int `json:"cleared"`
	Inserted int `json:"insertedCount"`
	Skipped  int `json:"skippedCount"`
	Errors   int `json:"errorCount"`
}

// DocumentError records one failed document.
type DocumentError struct {
	Collection string `json:"collection"`
	Identity   string `json:"identity,omitempty"`
	Error      string `json:"error"`
}

// Result reports an Apply run.
type Result struct {
	RunID        string                      `json:"runId"`
	Filename     string                      `json:"filename"`
	Kind         archive.Kind                `json:"kind"`
	Options      Options                     `json:"options"`
	State        State                       `json:"state"`
	Collections  map[string]CollectionResult `json:"collections"`
	Inserted     int                         `json:"insertedCount"`
	Skipped      int                         `json:"skippedCount"`
	Errors       int                         `json:"errorCount"`
	ErrorSamples []DocumentError             `json:"errorSamples,omitempty"`
	Duration     time.Duration               `json:"duration"`
}

// Coordinator reads snapshots and restores them.
type Coordinator struct {
	catalog  *catalog.Catalog
	lock     *dirlock.Lock
	exporter *exporter.Exporter
	codec    *archive.Codec
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator. writeRate limits document writes
// per second during Apply; zero disables the limit.
func NewCoordinator(cat *catalog.Catalog, lock *dirlock.Lock, exp *exporter.Exporter, codec *archive.Codec, writeRate int, logger *slog.Logger) *Coordinator {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if writeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(writeRate), writeRate)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		catalog:  cat,
		lock:     lock,
		exporter: exp,
		codec:    codec,
		limiter:  limiter,
		logger:   logger,
	}
}

// load reads and validates a snapshot file.
func (c *Coordinator) load(filename string) (*archive.Envelope, catalog.Entry, bool, error) {
	entry, err := c.catalog.Stat(filename)
	if err != nil {
		return nil, catalog.Entry{}, false, err
	}
	path, _ := c.catalog.Path(filename)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, entry, false, domain.ErrSnapshotNotFound.WithDetails(filename)
	}
	if err != nil {
		return nil, entry, false, domain.ErrSnapshotIO.WithCause(err).WithDetails(filename)
	}
	env, err := c.codec.Decode(data)
	if err != nil {
		return nil, entry, false, err
	}
	return env, entry, archive.IsEncrypted(data), nil
}

// Preview decodes a snapshot without touching the store.
func (c *Coordinator) Preview(ctx context.Context, filename string) (*Preview, error) {
	if err := catalog.ValidateFileName(filename); err != nil {
		return nil, err
	}
	release, err := c.lock.TryRead("preview")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, entry, encrypted, err := c.load(filename)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Filename: filename,
		Size:     entry.Size,
		Type:     entry.Type,
		Metadata: archive.Metadata{
			Timestamp:     env.Timestamp,
			FormatVersion: env.FormatVersion,
			Kind:          env.Kind,
			BasedOn:       env.BasedOn,
			Compressed:    env.Compressed,
			Encrypted:     encrypted,
		},
		Statistics: env.Statistics,
		State:      StatePreview,
	}, nil
}

// Apply restores a snapshot into the store. Structural failures (missing
// file, bad format, lock contention) abort before any document is touched;
// per-document failures are counted and the run continues.
func (c *Coordinator) Apply(ctx context.Context, filename string, opts Options) (*Result, error) {
	res := &Result{
		RunID:       ulid.Make().String(),
		Filename:    filename,
		Options:     opts,
		State:       StateRequested,
		Collections: make(map[string]CollectionResult),
	}
	if opts.MergeStrategy != MergeSkip && opts.MergeStrategy != MergeReplace {
		return nil, domain.ErrInvalidArgument.WithDetails("invalid merge strategy")
	}
	if err := catalog.ValidateFileName(filename); err != nil {
		return nil, err
	}

	release, err := c.lock.TryApply("apply")
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	env, _, _, err := c.load(filename)
	if err != nil {
		return nil, err
	}
	res.Kind = env.Kind
	res.State = StateValidated

	logger := c.logger.With("run_id", res.RunID, "filename", filename)
	logger.Info("restore started",
		"strategy", opts.MergeStrategy.String(),
		"clear_existing", opts.ClearExisting,
		"documents", env.Statistics.TotalDocuments)

	res.State = StateApplying
	for _, name := range env.CollectionNames() {
		cr, err := c.applyCollection(ctx, c.exporter.Collection(name), env.Collections[name].Documents, opts, res)
		res.Collections[name] = cr
		res.Inserted += cr.Inserted
		res.Skipped += cr.Skipped
		res.Errors += cr.Errors
		if err != nil {
			res.State = StateFailed
			res.Duration = time.Since(start)
			logger.Error("restore aborted", "collection", name, "error", err)
			return res, err
		}
	}

	res.State = StateCompleted
	res.Duration = time.Since(start)
	logger.Info("restore completed",
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"elapsed", res.Duration)
	return res, nil
}

// applyCollection returns a non-nil error only for failures that stop the
// whole run: cancellation or a failed clear.
func (c *Coordinator) applyCollection(ctx context.Context, col *exporter.Collection, docs []domain.Document, opts Options, res *Result) (CollectionResult, error) {
	var cr CollectionResult

	if opts.ClearExisting {
		n, err := col.DeleteAll(ctx)
		if err != nil {
			return cr, fmt.Errorf("clear %s: %w", col.Name(), err)
		}
		cr.Cleared = n
	}

	for _, doc := range docs {
		if err := c.limiter.Wait(ctx); err != nil {
			return cr, err
		}
		if err := ctx.Err(); err != nil {
			return cr, err
		}

		id, hasID := col.Identity(doc)
		outcome, err := c.applyDocument(ctx, col, id, hasID, doc, opts.MergeStrategy)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return cr, ctx.Err()
			}
			cr.Errors++
			if len(res.ErrorSamples) < maxErrorSamples {
				res.ErrorSamples = append(res.ErrorSamples, DocumentError{
					Collection: col.Name(),
					Identity:   id,
					Error:      err.Error(),
				})
			}
		case outcome == outcomeSkipped:
			cr.Skipped++
		default:
			cr.Inserted++
		}
	}
	return cr, nil
}

type outcome int

const (
	outcomeWritten outcome = iota
	outcomeSkipped
)

func (c *Coordinator) applyDocument(ctx context.Context, col *exporter.Collection, id string, hasID bool, doc domain.Document, strategy MergeStrategy) (outcome, error) {
	switch strategy {
	case MergeReplace:
		if !hasID {
			return outcomeWritten, domain.ErrDocumentIdentity.WithDetails("replace requires an identity")
		}
		if err := col.Upsert(ctx, id, doc); err != nil {
			return outcomeWritten, domain.ErrDocumentWrite.WithCause(err)
		}
		return outcomeWritten, nil

	default:
		if hasID {
			exists, err := col.Exists(ctx, id)
			if err != nil {
				return outcomeWritten, domain.ErrDocumentWrite.WithCause(err)
			}
			if exists {
				return outcomeSkipped, nil
			}
		}
		if err := col.Insert(ctx, doc); err != nil {
			if domain.IsDomainError(err, domain.ErrDocumentConflict.Code) {
				return outcomeSkipped, nil
			}
			return outcomeWritten, domain.ErrDocumentWrite.WithCause(err)
		}
		return outcomeWritten, nil
	}
}
