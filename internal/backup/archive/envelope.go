package archive

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// FormatVersion is the envelope schema version written by this package.
const FormatVersion = "2.0"

// maxFormatMajor is the newest envelope major version Decode accepts.
const maxFormatMajor = 2

// Kind distinguishes full from incremental envelopes.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFull || k == KindIncremental
}

// CollectionData holds the exported documents of one collection.
type CollectionData struct {
	Count     int               `json:"count"`
	Documents []domain.Document `json:"documents"`
}

// Statistics summarizes an envelope. It is derived from Collections and is
// never authoritative.
type Statistics struct {
	TotalDocuments   int            `json:"totalDocuments"`
	TotalCollections int            `json:"totalCollections"`
	Collections      map[string]int `json:"collections"`
}

// Envelope is the persisted unit of one snapshot.
type Envelope struct {
	Timestamp     time.Time                 `json:"timestamp"`
	FormatVersion string                    `json:"formatVersion,omitempty"`
	Kind          Kind                      `json:"kind"`
	BasedOn       string                    `json:"basedOn,omitempty"`
	Compressed    bool                      `json:"compressed"`
	Collections   map[string]CollectionData `json:"collections"`
	Statistics    Statistics                `json:"statistics"`
}

// NewEnvelope creates an envelope stamped at ts (truncated to milliseconds).
func NewEnvelope(kind Kind, ts time.Time) *Envelope {
	return &Envelope{
		Timestamp:     ts.UTC().Truncate(time.Millisecond),
		FormatVersion: FormatVersion,
		Kind:          kind,
		Collections:   make(map[string]CollectionData),
	}
}

// SetCollection stores docs under name and keeps Count in sync.
func (e *Envelope) SetCollection(name string, docs []domain.Document) {
	if docs == nil {
		docs = []domain.Document{}
	}
	e.Collections[name] = CollectionData{Count: len(docs), Documents: docs}
}

// CollectionNames returns the collection names in sorted order.
func (e *Envelope) CollectionNames() []string {
	names := make([]string, 0, len(e.Collections))
	for name := range e.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeStatistics recomputes the summary from Collections.
func (e *Envelope) ComputeStatistics() Statistics {
	stats := Statistics{
		TotalCollections: len(e.Collections),
		Collections:      make(map[string]int, len(e.Collections)),
	}
	for name, c := range e.Collections {
		n := len(c.Documents)
		stats.Collections[name] = n
		stats.TotalDocuments += n
	}
	return stats
}

// Validate checks the envelope can be restored.
func (e *Envelope) Validate() error {
	if e.FormatVersion == "" {
		return domain.ErrSnapshotFormat.WithDetails("missing formatVersion")
	}
	major, err := strconv.Atoi(strings.SplitN(e.FormatVersion, ".", 2)[0])
	if err != nil {
		return domain.ErrSnapshotFormat.WithDetails("malformed formatVersion " + strconv.Quote(e.FormatVersion))
	}
	if major > maxFormatMajor {
		return domain.ErrSnapshotFormat.WithDetails("unsupported formatVersion " + e.FormatVersion)
	}
	if e.Kind != "" && !e.Kind.Valid() {
		return domain.ErrSnapshotFormat.WithDetails("unknown kind " + strconv.Quote(string(e.Kind)))
	}
	if e.Kind == KindIncremental && e.BasedOn == "" {
		return domain.ErrSnapshotFormat.WithDetails("incremental envelope without basedOn")
	}
	for name := range e.Collections {
		if err := (domain.CollectionSpec{Name: name}).Validate(); err != nil {
			return domain.ErrSnapshotFormat.WithCause(err).WithDetails("collection " + strconv.Quote(name))
		}
	}
	return nil
}

// Metadata is the envelope header without documents.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	FormatVersion string    `json:"formatVersion"`
	Kind          Kind      `json:"kind"`
	BasedOn       string    `json:"basedOn,omitempty"`
	Compressed    bool      `json:"compressed"`
	Encrypted     bool      `json:"encrypted"`
}
