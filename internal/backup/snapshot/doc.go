// Package snapshot creates full and incremental snapshot files.
//
// A snapshot is assembled completely in memory before anything touches the
// backup directory. The encoded bytes go to a hidden temp file that is
// fsynced and renamed into place, so readers only ever see complete files
// and a failed or cancelled run leaves the directory unchanged.
package snapshot
