package command

import (
	"time"

	"github.com/yndnr/docsnap/internal/infra/buildinfo"
)

// Client-side views of admin API payloads. Table tags drive the table
// formatter; JSON and YAML output mirror the server's field names.

type snapshotEntry struct {
	Filename   string    `json:"filename"`
	Type       string    `json:"type"`
	Size       int64     `json:"size" table:"bytes"`
	Modified   time.Time `json:"modified" table:"ago"`
	Compressed bool      `json:"compressed" table:"wide"`
}

type snapshotList struct {
	Items []snapshotEntry `json:"items"`
	Total int             `json:"total"`
}

type statistics struct {
	TotalDocuments   int            `json:"totalDocuments"`
	TotalCollections int            `json:"totalCollections"`
	Collections      map[string]int `json:"collections"`
}

type snapshotResult struct {
	Filename       string     `json:"filename"`
	Kind           string     `json:"kind"`
	BasedOn        string     `json:"basedOn,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	Statistics     statistics `json:"statistics"`
	Size           int64      `json:"size"`
	Compressed     bool       `json:"compressed"`
	Encrypted      bool       `json:"encrypted"`
	Checksum       string     `json:"checksum"`
	FellBackToFull bool       `json:"fellBackToFull,omitempty"`
}

type catalogStats struct {
	Count            int            `json:"count"`
	TotalBytes       int64          `json:"totalBytes"`
	FullCount        int            `json:"fullCount"`
	IncrementalCount int            `json:"incrementalCount"`
	CompressedCount  int            `json:"compressedCount"`
	ByType           map[string]int `json:"byType"`
	Newest           *time.Time     `json:"newest,omitempty"`
	Oldest           *time.Time     `json:"oldest,omitempty"`
}

type snapshotMetadata struct {
	Timestamp     time.Time `json:"timestamp"`
	FormatVersion string    `json:"formatVersion"`
	Kind          string    `json:"kind"`
	BasedOn       string    `json:"basedOn,omitempty"`
	Compressed    bool      `json:"compressed"`
	Encrypted     bool      `json:"encrypted"`
}

type previewView struct {
	Filename   string           `json:"filename"`
	Size       int64            `json:"size"`
	Type       string           `json:"type"`
	Metadata   snapshotMetadata `json:"metadata"`
	Statistics statistics       `json:"statistics"`
	State      string           `json:"state"`
}

type restoreOptions struct {
	ClearExisting bool   `json:"clearExisting"`
	MergeStrategy string `json:"mergeStrategy"`
}

type collectionOutcome struct {
	Cleared  int `json:"cleared"`
	Inserted int `json:"insertedCount"`
	Skipped  int `json:"skippedCount"`
	Errors   int `json:"errorCount"`
}

type documentError struct {
	Collection string `json:"collection"`
	Identity   string `json:"identity,omitempty"`
	Error      string `json:"error"`
}

type restoreResult struct {
	RunID        string                       `json:"runId"`
	Filename     string                       `json:"filename"`
	Kind         string                       `json:"kind"`
	Options      restoreOptions               `json:"options"`
	State        string                       `json:"state"`
	Collections  map[string]collectionOutcome `json:"collections"`
	Inserted     int                          `json:"insertedCount"`
	Skipped      int                          `json:"skippedCount"`
	Errors       int                          `json:"errorCount"`
	ErrorSamples []documentError              `json:"errorSamples,omitempty"`
	Duration     time.Duration                `json:"duration"`
}

type pruneResult struct {
	DeletedCount int       `json:"deletedCount"`
	Deleted      []string  `json:"deleted"`
	FreedBytes   int64     `json:"freedBytes"`
	Cutoff       time.Time `json:"cutoff"`
	KeptBaseline string    `json:"keptBaseline,omitempty"`
}

type deleteResult struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type collectionStatus struct {
	Name          string `json:"name"`
	IdentityField string `json:"identity_field" table:"wide"`
	ModifiedField string `json:"modified_field" table:"wide"`
	Documents     int    `json:"documents"`
	Error         string `json:"error,omitempty"`
}

type statusView struct {
	Status      string             `json:"status"`
	Build       buildinfo.Info     `json:"build"`
	Engine      string             `json:"engine"`
	BackupDir   string             `json:"backup_dir"`
	Collections []collectionStatus `json:"collections"`
	Uptime      string             `json:"uptime"`
	Time        string             `json:"time"`
}

type healthView struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
