// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards with murmur3, each
// shard guarded by its own RWMutex. The in-memory document store keeps one
// Map per collection.
//
// Usage:
//
//	m := cmap.New[domain.Document]()
//	m.Set("u1", doc)
//	val, ok := m.Get("u1")
//
// Range and Keys lock shard by shard, so a concurrent writer may or may not
// be observed.
package cmap
