// Package redis implements the entry store on a Redis backend. Entries are
// stored as JSON values under a configurable key prefix; expiry is delegated
// to Redis TTLs so no reaper round-trips are required.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanenguyen264/library-management-sub003/internal/entry"
	"github.com/kanenguyen264/library-management-sub003/internal/store"
)

const defaultKeyPrefix = "appcache:"

// scanBatch is the COUNT hint for SCAN iterations.
const scanBatch = 256

// Config holds Redis store configuration.
type Config struct {
	// Client is the Redis client to use. Required.
	Client redis.Cmdable

	// KeyPrefix is prepended to all cache keys to isolate this cache from
	// other users of the same Redis database. Default: "appcache:".
	KeyPrefix string

	// DefaultTTL applies to entries stored without an explicit expiry, so
	// that a Redis database shared with no-expiry entries still converges.
	// Zero means such entries persist until invalidated.
	DefaultTTL time.Duration

	// Context for Redis operations.
	Context context.Context
}

// Store is a Redis-backed entry store.
type Store struct {
	client          redis.Cmdable
	keyPrefix       string
	defaultTTL      time.Duration
	cleanupCallback store.EvictCallback
	ctx             context.Context
}

// serializedEntry is the wire form of an entry.
type serializedEntry struct {
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	LastAccess time.Time       `json:"last_access"`
	Tags       []string        `json:"tags,omitempty"`
}

// New creates a Redis store with the given configuration.
func New(config *Config) (*Store, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}

	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &Store{
		client:     config.Client,
		keyPrefix:  keyPrefix,
		defaultTTL: config.DefaultTTL,
		ctx:        ctx,
	}, nil
}

// Get retrieves an entry by key. Any backend error is reported as a miss;
// the cache layer above treats misses as an instruction to recompute.
func (s *Store) Get(key string) (*entry.Entry, bool) {
	data, err := s.client.Get(s.ctx, s.buildKey(key)).Bytes()
	if err != nil {
		return nil, false
	}

	e, err := deserializeEntry(data)
	if err != nil {
		// Corrupted payload; drop it so the next write starts clean.
		s.client.Del(s.ctx, s.buildKey(key))
		return nil, false
	}

	// Redis usually expires the key itself, but clock skew between the
	// writer and the Redis server can leave a stale window.
	if e.IsExpired() {
		s.client.Del(s.ctx, s.buildKey(key))
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
	data, err := serializeEntry(e)
	if err != nil {
		return err
	}

	redisKey := s.buildKey(key)

	var ttl time.Duration
	if e.HasExpiry() {
		ttl = e.TTL()
		if ttl <= 0 {
			return s.client.Del(s.ctx, redisKey).Err()
		}
	} else {
		ttl = s.defaultTTL
	}

	if ttl > 0 {
		return s.client.SetEx(s.ctx, redisKey, data, ttl).Err()
	}
	return s.client.Set(s.ctx, redisKey, data, 0).Err()
}

// Delete removes an entry by key.
func (s *Store) Delete(key string) error {
	return s.client.Del(s.ctx, s.buildKey(key)).Err()
}

// DeleteMatching removes every entry whose key matches the glob pattern and
// returns the number of entries removed.
func (s *Store) DeleteMatching(pattern string) (int, error) {
	keys, err := s.scanMatching(s.keyPrefix + pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(s.ctx, keys...).Result()
	return int(deleted), err
}

// Scan returns all keys starting with prefix.
func (s *Store) Scan(prefix string) ([]string, error) {
	redisKeys, err := s.scanMatching(s.keyPrefix + prefix + "*")
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(redisKeys))
	for _, rk := range redisKeys {
		if key := s.extractKey(rk); key != "" {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Keys returns all keys currently in the store.
func (s *Store) Keys() []string {
	keys, err := s.Scan("")
	if err != nil {
		return nil
	}
	return keys
}

// Len returns the current number of entries.
func (s *Store) Len() int {
	return len(s.Keys())
}

// Clear removes every entry under this store's key prefix.
func (s *Store) Clear() error {
	keys, err := s.scanMatching(s.keyPrefix + "*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(s.ctx, keys...).Err()
}

// Close is a no-op: the Redis client's lifecycle belongs to the caller.
func (s *Store) Close() error {
	return nil
}

// SetCleanupCallback registers a callback for TTL removals detected on Get.
func (s *Store) SetCleanupCallback(callback store.EvictCallback) {
	s.cleanupCallback = callback
}

// Cleanup is a no-op: Redis expires keys natively.
func (s *Store) Cleanup() int {
	return 0
}

func (s *Store) scanMatching(match string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(s.ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %q: %w", match, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *Store) buildKey(key string) string {
	return s.keyPrefix + key
}

func (s *Store) extractKey(redisKey string) string {
	if !strings.HasPrefix(redisKey, s.keyPrefix) {
		return ""
	}
	return strings.TrimPrefix(redisKey, s.keyPrefix)
}

func serializeEntry(e *entry.Entry) ([]byte, error) {
	valueBytes, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal entry value: %w", err)
	}

	se := serializedEntry{
		Value:      valueBytes,
		CreatedAt:  e.CreatedAt,
		LastAccess: e.AccessedAt,
		Tags:       e.Tags,
	}
	if e.HasExpiry() {
		se.ExpiresAt = e.ExpiresAt
	}

	return json.Marshal(se)
}

func deserializeEntry(data []byte) (*entry.Entry, error) {
	var se serializedEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}

	var value any
	if err := json.Unmarshal(se.Value, &value); err != nil {
		return nil, fmt.Errorf("unmarshal entry value: %w", err)
	}

	e := entry.New(value, 0, se.Tags)
	e.CreatedAt = se.CreatedAt
	e.AccessedAt = se.LastAccess
	e.ExpiresAt = se.ExpiresAt

	return e, nil
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.TTLStore = (*Store)(nil)
)
