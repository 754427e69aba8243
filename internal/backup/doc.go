// Package backup is the entry point of the snapshot subsystem.
//
// Service wires the per-directory lock, the catalog, the snapshot manager,
// the restore coordinator and the retention policy for one backup
// directory, and adds logging, tracing and metrics around each operation.
//
// Sub-packages:
//
//   - archive: envelope model and on-disk codec
//   - catalog: directory listing and filename classification
//   - dirlock: per-directory mutual exclusion
//   - exporter: collection adapter over the document store
//   - snapshot: full and incremental snapshot creation
//   - restore: preview and apply
//   - retention: age-based pruning
package backup
