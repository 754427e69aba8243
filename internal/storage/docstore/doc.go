// Package docstore provides the document store the backup subsystem reads
// from and restores into.
//
// A Store holds schema-less documents grouped by collection name. Three
// engines implement it:
//
//   - memory: sharded concurrent maps, used by tests and ephemeral setups
//   - badger: embedded LSM store, keys "doc/<collection>/<id>"
//   - sqlite: single table keyed by (collection, id)
//
// Every engine stores the JSON encoding of a document, so numbers decode as
// json.Number and callers always receive private copies.
package docstore
