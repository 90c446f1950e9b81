// Package memory implements an in-process entry store backed by an LRU
// container. Capacity eviction is LRU; TTL expiry is enforced lazily on Get
// and proactively by Cleanup.
package memory

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kanenguyen264/library-management-sub003/internal/entry"
	"github.com/kanenguyen264/library-management-sub003/internal/store"
)

// Store is an in-memory LRU entry store with TTL support.
type Store struct {
	cache           *lru.Cache[string, *entry.Entry]
	mu              sync.RWMutex
	evictCallback   store.EvictCallback
	cleanupCallback store.EvictCallback
	cleanupTicker   *time.Ticker
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	capacity        int

	// The LRU container invokes its eviction callback on explicit Remove and
	// Purge as well as on capacity eviction. removing is set (under mu, on
	// the same goroutine the container calls back on) while we remove
	// entries ourselves, so only genuine capacity evictions reach
	// evictCallback.
	removing bool
}

// New creates a memory store holding at most capacity entries.
func New(capacity int) (*Store, error) {
	s := &Store{
		capacity:    capacity,
		stopCleanup: make(chan struct{}),
	}

	cache, err := lru.NewWithEvict[string, *entry.Entry](capacity, func(key string, e *entry.Entry) {
		if !s.removing && s.evictCallback != nil {
			s.evictCallback(key, e)
		}
	})
	if err != nil {
		return nil, err
	}

	s.cache = cache
	return s, nil
}

// NewWithCleanup creates a memory store that also reaps expired entries every
// cleanupInterval.
func NewWithCleanup(capacity int, cleanupInterval time.Duration) (*Store, error) {
	s, err := New(capacity)
	if err != nil {
		return nil, err
	}

	if cleanupInterval > 0 {
		s.startCleanup(cleanupInterval)
	}

	return s, nil
}

// Get retrieves an entry by key. Expired entries are evicted and reported as
// not found.
func (s *Store) Get(key string) (*entry.Entry, bool) {
	s.mu.RLock()
	e, found := s.cache.Get(key)
	s.mu.RUnlock()

	if !found {
		return nil, false
	}

	if e.IsExpired() {
		s.mu.Lock()
		// Re-check under the write lock; another goroutine may have already
		// replaced or removed it.
		if cur, ok := s.cache.Peek(key); ok && cur == e {
			s.removeLocked(key)
		}
		s.mu.Unlock()

		if s.cleanupCallback != nil {
			s.cleanupCallback(key, e)
		}
		return nil, false
	}

	e.Touch()
	return e, true
}

// Set stores an entry under key.
func (s *Store) Set(key string, e *entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Add(key, e)
	return nil
}

// Delete removes an entry by key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)
	return nil
}

// DeleteMatching removes every entry whose key matches the glob pattern.
func (s *Store) DeleteMatching(pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.cache.Keys() {
		if store.Match(pattern, key) {
			s.removeLocked(key)
			removed++
		}
	}

	return removed, nil
}

// removeLocked removes key without triggering the capacity evict callback.
// Callers must hold the write lock.
func (s *Store) removeLocked(key string) {
	s.removing = true
	s.cache.Remove(key)
	s.removing = false
}

// Scan returns all live keys starting with prefix.
func (s *Store) Scan(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for _, key := range s.cache.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if e, ok := s.cache.Peek(key); ok && !e.IsExpired() {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Keys returns all live keys currently in the store.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.cache.Keys()
	valid := make([]string, 0, len(keys))
	for _, key := range keys {
		if e, ok := s.cache.Peek(key); ok && !e.IsExpired() {
			valid = append(valid, key)
		}
	}

	return valid
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, key := range s.cache.Keys() {
		if e, ok := s.cache.Peek(key); ok && !e.IsExpired() {
			count++
		}
	}

	return count
}

// Clear removes all entries from the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removing = true
	s.cache.Purge()
	s.removing = false
	return nil
}

// Close stops the cleanup goroutine and empties the store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.cleanupTicker != nil {
			s.cleanupTicker.Stop()
		}
		close(s.stopCleanup)
	})
	return s.Clear()
}

// SetEvictCallback registers a callback for LRU capacity evictions.
func (s *Store) SetEvictCallback(callback store.EvictCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictCallback = callback
}

// SetCleanupCallback registers a callback for TTL removals.
func (s *Store) SetCleanupCallback(callback store.EvictCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupCallback = callback
}

// Capacity returns the maximum number of entries the store can hold.
func (s *Store) Capacity() int {
	return s.capacity
}

// Cleanup removes expired entries and returns how many were removed.
func (s *Store) Cleanup() int {
	type reaped struct {
		key string
		e   *entry.Entry
	}

	s.mu.Lock()
	var victims []reaped
	for _, key := range s.cache.Keys() {
		if e, ok := s.cache.Peek(key); ok && e.IsExpired() {
			s.removeLocked(key)
			victims = append(victims, reaped{key, e})
		}
	}
	s.mu.Unlock()

	if s.cleanupCallback != nil {
		for _, v := range victims {
			s.cleanupCallback(v.key, v.e)
		}
	}

	return len(victims)
}

func (s *Store) startCleanup(interval time.Duration) {
	s.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.Cleanup()
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.LRUStore = (*Store)(nil)
	_ store.TTLStore = (*Store)(nil)
)
