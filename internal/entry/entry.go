package entry

import (
	"sync"
	"time"
)

// Entry is a single cached value together with its lifecycle metadata.
// Tags are fixed at write time; a refresh replaces the whole entry.
type Entry struct {
	// Value is the cached value, opaque to the store.
	Value any

	// ExpiresAt indicates when this entry expires (nil means no expiration).
	ExpiresAt *time.Time

	// CreatedAt is when this entry was created.
	CreatedAt time.Time

	// AccessedAt is when this entry was last read (for LRU).
	// Protected by mu for concurrent access.
	AccessedAt time.Time
	mu         sync.RWMutex

	// Tags are the invalidation groups this entry was registered under.
	Tags []string
}

// New creates an entry with the given value, TTL and tags.
// A ttl <= 0 produces an entry without expiration.
func New(value any, ttl time.Duration, tags []string) *Entry {
	now := time.Now()
	e := &Entry{
		Value:      value,
		CreatedAt:  now,
		AccessedAt: now,
		Tags:       tags,
	}

	if ttl > 0 {
		expiry := now.Add(ttl)
		e.ExpiresAt = &expiry
	}

	return e
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	if e.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*e.ExpiresAt)
}

// TTL returns the time remaining until expiration.
// Returns 0 if the entry has no expiration or has already expired.
func (e *Entry) TTL() time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}

	remaining := time.Until(*e.ExpiresAt)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// HasExpiry returns true if the entry has an expiration time set.
func (e *Entry) HasExpiry() bool {
	return e.ExpiresAt != nil
}

// Age returns how long ago this entry was created.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// Touch updates the last accessed time to now.
func (e *Entry) Touch() {
	e.mu.Lock()
	e.AccessedAt = time.Now()
	e.mu.Unlock()
}

// TimeSinceLastAccess returns how long ago this entry was last read.
func (e *Entry) TimeSinceLastAccess() time.Duration {
	e.mu.RLock()
	accessedAt := e.AccessedAt
	e.mu.RUnlock()
	return time.Since(accessedAt)
}
