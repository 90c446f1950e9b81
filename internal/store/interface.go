// Package store defines the entry store abstraction the cache manager sits
// on. Backends may be in-process or remote; the manager never depends on
// which one it got.
package store

import (
	"github.com/kanenguyen264/library-management-sub003/internal/entry"
)

// Store is the backend contract for cache entries.
//
// Get must treat an expired entry as not found and evict it lazily rather
// than return stale data. Write failures are reported to the caller, which
// decides whether they are fatal (for this cache they never are).
type Store interface {
	// Get retrieves an entry by key.
	Get(key string) (*entry.Entry, bool)

	// Set stores an entry under key, replacing any previous entry.
	Set(key string, e *entry.Entry) error

	// Delete removes an entry by key. Deleting a missing key is not an error.
	Delete(key string) error

	// DeleteMatching removes every entry whose key matches the glob pattern
	// and returns the number of entries removed.
	DeleteMatching(pattern string) (int, error)

	// Scan returns all live keys that start with prefix. An empty prefix
	// returns every key.
	Scan(prefix string) ([]string, error)

	// Keys returns all live keys currently in the store.
	Keys() []string

	// Len returns the current number of live entries.
	Len() int

	// Clear removes all entries from the store.
	Clear() error

	// Close releases the store's resources.
	Close() error
}

// EvictCallback is invoked when an entry leaves the store without an explicit
// Delete, so the owner can unregister it elsewhere (e.g. the tag index).
type EvictCallback func(key string, e *entry.Entry)

// LRUStore is a Store with a bounded capacity and an eviction policy.
type LRUStore interface {
	Store

	// SetEvictCallback registers a callback for capacity evictions.
	SetEvictCallback(callback EvictCallback)

	// Capacity returns the maximum number of entries the store can hold.
	Capacity() int
}

// TTLStore is a Store that supports explicit cleanup of expired entries.
type TTLStore interface {
	Store

	// Cleanup removes expired entries and returns how many were removed.
	Cleanup() int

	// SetCleanupCallback registers a callback for entries removed because
	// their TTL elapsed, whether by Cleanup or lazy eviction on Get.
	SetCleanupCallback(callback EvictCallback)
}
