// Package catalog derives the list of snapshot files from the backup
// directory. Nothing is cached: every call reads the directory again.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/core/domain"
)

// Snapshot types derived from filenames. Any other type is the name of the
// collection a partial snapshot belongs to.
const (
	TypeFull        = "full"
	TypeIncremental = "incremental"
	TypeOther       = "other"
)

const nameInfix = "_backup_"

// TempSuffix marks files still being written.
const TempSuffix = ".tmp"

// Entry describes one snapshot file.
type Entry struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modified"`
	Type       string    `json:"type"`
	Compressed bool      `json:"compressed"`
}

// Stats aggregates a catalog listing.
type Stats struct {
	Count            int            `json:"count"`
	TotalBytes       int64          `json:"totalBytes"`
	FullCount        int            `json:"fullCount"`
	IncrementalCount int            `json:"incrementalCount"`
	CompressedCount  int            `json:"compressedCount"`
	ByType           map[string]int `json:"byType"`
	Newest           *time.Time     `json:"newest,omitempty"`
	Oldest           *time.Time     `json:"oldest,omitempty"`
}

// FileName builds "<type>_backup_<epochMillis><ext>".
func FileName(typ string, ts time.Time, c archive.Compression) string {
	return typ + nameInfix + strconv.FormatInt(ts.UnixMilli(), 10) + c.Extension()
}

// ParsedName is the decomposition of a snapshot filename.
type ParsedName struct {
	Type        string
	Timestamp   time.Time
	Compression archive.Compression
}

// ParseFileName decomposes a snapshot filename. ok is false for names that
// do not follow the "<type>_backup_<epochMillis>.json[.gz|.zst]" pattern.
func ParseFileName(name string) (ParsedName, bool) {
	var comp archive.Compression
	var stem string
	switch {
	case strings.HasSuffix(name, ".json.gz"):
		comp, stem = archive.CompressionGzip, strings.TrimSuffix(name, ".json.gz")
	case strings.HasSuffix(name, ".json.zst"):
		comp, stem = archive.CompressionZstd, strings.TrimSuffix(name, ".json.zst")
	case strings.HasSuffix(name, ".json"):
		comp, stem = archive.CompressionNone, strings.TrimSuffix(name, ".json")
	default:
		return ParsedName{}, false
	}

	i := strings.LastIndex(stem, nameInfix)
	if i <= 0 {
		return ParsedName{}, false
	}
	ms, err := strconv.ParseInt(stem[i+len(nameInfix):], 10, 64)
	if err != nil || ms < 0 {
		return ParsedName{}, false
	}
	return ParsedName{
		Type:        stem[:i],
		Timestamp:   time.UnixMilli(ms).UTC(),
		Compression: comp,
	}, true
}

// Classify returns the snapshot type implied by a filename prefix: "full",
// "incremental", a collection name for partial snapshots, or "other".
func Classify(name string) string {
	if i := strings.Index(name, nameInfix); i > 0 {
		return name[:i]
	}
	return TypeOther
}

// IsCompressed reports whether the filename carries a compression suffix.
func IsCompressed(name string) bool {
	return strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".zst")
}

// ValidateFileName rejects names that could escape the backup directory.
func ValidateFileName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return domain.ErrInvalidArgument.WithDetails("invalid snapshot filename")
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), strings.ContainsRune(name, 0):
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("snapshot filename %q must not contain path elements", name))
	case strings.HasPrefix(name, "."):
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("snapshot filename %q is hidden", name))
	}
	return nil
}

// Catalog lists snapshot files in a directory.
type Catalog struct {
	dir string
}

// New creates a catalog for dir.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the backup directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Path validates name and returns its absolute location.
func (c *Catalog) Path(name string) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}
	return filepath.Join(c.dir, name), nil
}

// Stat returns the entry for name or domain.ErrSnapshotNotFound.
func (c *Catalog) Stat(name string) (Entry, error) {
	path, err := c.Path(name)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return Entry{}, domain.ErrSnapshotNotFound.WithDetails(name)
	}
	if err != nil {
		return Entry{}, domain.ErrSnapshotIO.WithCause(err).WithDetails(name)
	}
	return entryFor(info), nil
}

func entryFor(info fs.FileInfo) Entry {
	return Entry{
		Filename:   info.Name(),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Type:       Classify(info.Name()),
		Compressed: IsCompressed(info.Name()),
	}
}

// List returns every snapshot file, most recent first. Ties on
// modification time are broken by filename, descending. A missing
// directory yields an empty list.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, domain.ErrSnapshotIO.WithCause(err).WithDetails("read backup dir")
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, TempSuffix) {
			continue
		}
		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, domain.ErrSnapshotIO.WithCause(err).WithDetails(name)
		}
		entries = append(entries, entryFor(info))
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Filename > entries[j].Filename
	})
	return entries, nil
}

// LatestFull returns the most recent full snapshot entry.
func (c *Catalog) LatestFull(ctx context.Context) (Entry, bool, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Type == TypeFull {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Stats aggregates the current listing.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(entries), nil
}

// Summarize computes Stats over entries ordered as List returns them.
func Summarize(entries []Entry) Stats {
	s := Stats{ByType: make(map[string]int)}
	for _, e := range entries {
		s.Count++
		s.TotalBytes += e.Size
		s.ByType[e.Type]++
		switch e.Type {
		case TypeFull:
			s.FullCount++
		case TypeIncremental:
			s.IncrementalCount++
		}
		if e.Compressed {
			s.CompressedCount++
		}
	}
	if len(entries) > 0 {
		newest := entries[0].ModTime
		oldest := entries[len(entries)-1].ModTime
		s.Newest, s.Oldest = &newest, &oldest
	}
	return s
}
