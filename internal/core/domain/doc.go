// Package domain defines the core domain models for docsnap.
//
// Domain models are plain values without IO dependencies:
//
//   - Document: schema-less record with configurable identity and
//     last-modified fields
//   - CollectionSpec: how a tracked collection exposes identity and
//     modification time
//   - Errors: structured error codes shared by every layer
package domain
