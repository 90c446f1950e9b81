// Package appcache is a read-through, tag-indexed application cache.
//
// Functions are wrapped with Cached to serve repeated calls from the cache,
// and with InvalidateCache to purge related entries after a successful
// mutation. Entries carry a TTL and a tag set; invalidation works by key,
// by glob pattern, by tag, or by namespace. A per-key stampede guard ensures
// a miss computes the value exactly once no matter how many callers race.
//
// The cache is an accelerator, not a dependency: backend read failures are
// served as misses and backend write failures are logged and ignored, so the
// wrapped function's caller never fails because of the cache.
package appcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kanenguyen264/library-management-sub003/internal/entry"
	"github.com/kanenguyen264/library-management-sub003/internal/singleflight"
	"github.com/kanenguyen264/library-management-sub003/internal/store"
	"github.com/kanenguyen264/library-management-sub003/internal/store/memory"
	redisstore "github.com/kanenguyen264/library-management-sub003/internal/store/redis"
	"github.com/kanenguyen264/library-management-sub003/internal/tagindex"
	"github.com/kanenguyen264/library-management-sub003/pkg/metrics"
)

// NoExpiry as a TTL stores an entry that never expires; it lives until
// explicitly invalidated or evicted for capacity.
const NoExpiry time.Duration = -1

// invalidateConcurrency bounds parallel per-key deletes during bulk
// invalidation.
const invalidateConcurrency = 8

// Manager owns the entry store, the tag index and the stampede guard, and
// exposes the direct cache API. The Cached and InvalidateCache wrappers are
// built on top of it.
type Manager struct {
	config *Config
	store  store.Store
	index  tagindex.Index
	stats  *Stats
	hooks  *Hooks
	logger Logger
	sf     singleflight.Group[string, any]

	metricsExporter metrics.Exporter
	metricsLabels   metrics.Labels
	metricsStop     chan struct{}

	reapStop chan struct{}
	wg       sync.WaitGroup

	closed atomic.Bool
}

// New creates a cache Manager with the given configuration.
func New(config *Config) (*Manager, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = NewNoOpLogger()
	}
	if config.Hooks == nil {
		config.Hooks = &Hooks{}
	}
	if config.MaxKeyLength <= 0 {
		config.MaxKeyLength = MaxKeyLength
	}
	if config.StoreType == StoreTypeMemory && config.MaxEntries <= 0 {
		config.MaxEntries = defaultMaxEntries
	}

	m := &Manager{
		config: config,
		stats:  &Stats{},
		hooks:  config.Hooks,
		logger: config.Logger,
	}

	var err error
	switch config.StoreType {
	case StoreTypeMemory:
		m.store, err = createMemoryStore(config)
		m.index = tagindex.NewMemory()
	case StoreTypeRedis:
		m.store, m.index, err = createRedisBackend(config)
	default:
		return nil, fmt.Errorf("appcache: unsupported store type: %v", config.StoreType)
	}
	if err != nil {
		return nil, err
	}

	// Entries that leave the store without an explicit Delete must still be
	// unregistered from the tag index.
	if lruStore, ok := m.store.(store.LRUStore); ok {
		lruStore.SetEvictCallback(func(key string, e *entry.Entry) {
			m.onEvicted(key, e, EvictReasonCapacity)
		})
	}
	if ttlStore, ok := m.store.(store.TTLStore); ok {
		ttlStore.SetCleanupCallback(func(key string, e *entry.Entry) {
			m.onEvicted(key, e, EvictReasonTTL)
		})
	}

	m.initMetrics()

	if config.ReapInterval > 0 {
		if _, ok := m.store.(store.TTLStore); ok {
			m.reapStop = make(chan struct{})
			m.wg.Add(1)
			go m.reaper(config.ReapInterval)
		}
	}

	return m, nil
}

func createMemoryStore(config *Config) (store.Store, error) {
	return memory.New(config.MaxEntries)
}

func createRedisBackend(config *Config) (store.Store, tagindex.Index, error) {
	if config.Redis == nil {
		return nil, nil, fmt.Errorf("appcache: redis configuration is required for the redis store")
	}

	client := config.Redis.Client
	if client == nil {
		c := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := c.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("appcache: connect to redis: %w", err)
		}
		client = c
	}

	s, err := redisstore.New(&redisstore.Config{
		Client:     client,
		KeyPrefix:  config.Redis.KeyPrefix,
		DefaultTTL: config.DefaultTTL,
	})
	if err != nil {
		return nil, nil, err
	}

	prefix := config.Redis.KeyPrefix
	if prefix == "" {
		prefix = "appcache:"
	}
	idx, err := tagindex.NewRedis(&tagindex.RedisConfig{
		Client:    client,
		KeyPrefix: prefix + "idx:",
	})
	if err != nil {
		return nil, nil, err
	}

	return s, idx, nil
}

// Get retrieves a value from the cache by key. A backend failure or an
// expired entry is reported as a miss.
func (m *Manager) Get(key string) (any, bool) {
	start := time.Now()
	defer m.recordOperation(metrics.OperationGet, start)

	e, ok := m.store.Get(key)
	if !ok {
		m.stats.incMisses()
		m.hooks.invokeOnMiss(key)
		return nil, false
	}

	m.stats.incHits()
	m.hooks.invokeOnHit(key, e.Value)
	return e.Value, true
}

// Set stores a value under key with the given TTL and tags. A ttl of zero
// uses the configured default; NoExpiry stores the value until invalidated.
// A store failure is returned; a tag index failure is logged, leaving an
// entry that expires by TTL but is invisible to tag invalidation.
func (m *Manager) Set(key string, value any, ttl time.Duration, tags []string) error {
	if m.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	defer m.recordOperation(metrics.OperationSet, start)

	if err := m.set(key, value, ttl, tags); err != nil {
		return err
	}
	m.refreshKeyCount()
	return nil
}

func (m *Manager) set(key string, value any, ttl time.Duration, tags []string) error {
	switch {
	case ttl == 0:
		ttl = m.config.DefaultTTL
	case ttl < 0:
		ttl = 0 // no expiry
	}

	if err := m.store.Set(key, entry.New(value, ttl, tags)); err != nil {
		return fmt.Errorf("appcache: store set %q: %w", key, err)
	}

	if err := m.index.AddTags(key, tags); err != nil {
		m.logger.Warn("tag registration failed; entry will expire by TTL only",
			F("key", key), F("tags", tags), F("error", err))
	}

	return nil
}

// Warmup preloads the cache with the given entries, all sharing one TTL and
// tag set. Entries are written concurrently; the first failure aborts the
// remaining writes and is returned.
func (m *Manager) Warmup(data map[string]any, ttl time.Duration, tags []string) error {
	if m.closed.Load() {
		return ErrClosed
	}

	g := new(errgroup.Group)
	g.SetLimit(invalidateConcurrency)

	for key, value := range data {
		g.Go(func() error {
			return m.set(key, value, ttl, tags)
		})
	}

	err := g.Wait()
	m.refreshKeyCount()
	return err
}

// GetOrCompute returns the cached value for key, or runs compute under the
// stampede guard and caches its result. Concurrent callers for the same key
// share one computation. If ctx is cancelled while waiting, the caller gets
// ctx.Err() but the computation keeps running and still populates the cache
// for the other waiters.
//
// Compute errors are returned to every waiter and never cached.
func (m *Manager) GetOrCompute(ctx context.Context, key string, compute func() (any, error), opts *ComputeOptions) (any, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if opts == nil {
		opts = &ComputeOptions{}
	}

	if value, ok := m.Get(key); ok {
		return value, nil
	}

	start := time.Now()
	defer m.recordOperation(metrics.OperationCompute, start)

	m.stats.incInFlight()
	defer m.stats.decInFlight()

	value, err, _ := m.sf.DoContext(ctx, key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}

		if opts.ShouldCache != nil && !opts.ShouldCache(result) {
			return result, nil
		}

		var tags []string
		if opts.Tags != nil {
			tags = opts.Tags(result)
		}

		// A write failure must not discard a result we already have.
		if serr := m.set(key, result, opts.TTL, tags); serr != nil {
			m.logger.Warn("cache write failed; result served uncached",
				F("key", key), F("error", serr))
		} else {
			m.refreshKeyCount()
		}

		return result, nil
	})

	return value, err
}

// ComputeOptions controls how a GetOrCompute result is cached.
type ComputeOptions struct {
	// TTL for the cached result. Zero uses the default; NoExpiry caches
	// until invalidated.
	TTL time.Duration

	// Tags computes the entry's tag set from the result.
	Tags func(result any) []string

	// ShouldCache decides whether the result is cached at all. Nil caches
	// every successful result.
	ShouldCache func(result any) bool
}

// Delete removes a key from the cache and the tag index.
func (m *Manager) Delete(key string) error {
	start := time.Now()
	defer m.recordOperation(metrics.OperationDelete, start)

	if err := m.store.Delete(key); err != nil {
		return fmt.Errorf("appcache: store delete %q: %w", key, err)
	}
	if err := m.index.RemoveKey(key); err != nil {
		m.logger.Warn("tag unregistration failed", F("key", key), F("error", err))
	}

	m.stats.addInvalidations(1)
	m.hooks.invokeOnInvalidate(key)
	m.refreshKeyCount()
	return nil
}

// InvalidateByTags removes every entry registered under any of the given
// tags and returns the number of entries removed. Per-key failures are
// logged and skipped; the tag index lookup failing is returned as an error.
func (m *Manager) InvalidateByTags(tags ...string) (int, error) {
	start := time.Now()
	defer m.recordOperation(metrics.OperationInvalidate, start)

	keys, err := m.index.KeysForTags(tags)
	if err != nil {
		return 0, fmt.Errorf("appcache: tag lookup %v: %w", tags, err)
	}

	return m.invalidateKeys(keys), nil
}

// InvalidatePattern removes every entry whose key matches the glob pattern
// ("*" matches any substring) and returns the number removed. The pattern is
// matched against the full logical key; wrappers scope their patterns with
// a namespace prefix before calling this.
func (m *Manager) InvalidatePattern(pattern string) (int, error) {
	start := time.Now()
	defer m.recordOperation(metrics.OperationInvalidate, start)

	var matched []string
	for _, key := range m.store.Keys() {
		if store.Match(pattern, key) {
			matched = append(matched, key)
		}
	}

	return m.invalidateKeys(matched), nil
}

// InvalidateNamespace removes every entry in the given namespace and returns
// the number removed.
func (m *Manager) InvalidateNamespace(namespace string) (int, error) {
	return m.InvalidatePattern(namespace + ":*")
}

// invalidateKeys deletes the given keys from the store and the tag index,
// a bounded number at a time. Failed keys are logged and left in place;
// they remain reachable by a later invalidation or TTL expiry.
func (m *Manager) invalidateKeys(keys []string) int {
	if len(keys) == 0 {
		return 0
	}

	var removed int64
	g := new(errgroup.Group)
	g.SetLimit(invalidateConcurrency)

	for _, key := range keys {
		g.Go(func() error {
			if err := m.store.Delete(key); err != nil {
				m.logger.Warn("invalidation delete failed", F("key", key), F("error", err))
				return nil
			}
			if err := m.index.RemoveKey(key); err != nil {
				m.logger.Warn("tag unregistration failed", F("key", key), F("error", err))
			}
			atomic.AddInt64(&removed, 1)
			m.hooks.invokeOnInvalidate(key)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are logged per key

	m.stats.addInvalidations(atomic.LoadInt64(&removed))
	m.refreshKeyCount()
	return int(atomic.LoadInt64(&removed))
}

// Has reports whether key exists and has not expired.
func (m *Manager) Has(key string) bool {
	e, found := m.store.Get(key)
	return found && !e.IsExpired()
}

// KeyTTL returns the remaining TTL for key. The second return is false if
// the key does not exist; a zero duration with true means no expiry.
func (m *Manager) KeyTTL(key string) (time.Duration, bool) {
	e, found := m.store.Get(key)
	if !found || e.IsExpired() {
		return 0, false
	}
	return e.TTL(), true
}

// Keys returns all live cache keys.
func (m *Manager) Keys() []string {
	return m.store.Keys()
}

// Len returns the current number of cached entries.
func (m *Manager) Len() int {
	return m.store.Len()
}

// Clear removes every entry from the cache and the tag index.
func (m *Manager) Clear() error {
	keys := m.store.Keys()
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("appcache: store clear: %w", err)
	}

	for _, key := range keys {
		if err := m.index.RemoveKey(key); err != nil {
			m.logger.Warn("tag unregistration failed", F("key", key), F("error", err))
		}
		m.hooks.invokeOnInvalidate(key)
	}

	m.stats.addInvalidations(int64(len(keys)))
	m.refreshKeyCount()
	return nil
}

// Cleanup removes expired entries immediately and returns how many were
// removed. The background reaper calls this on its ticker.
func (m *Manager) Cleanup() int {
	start := time.Now()
	defer m.recordOperation(metrics.OperationCleanup, start)

	ttlStore, ok := m.store.(store.TTLStore)
	if !ok {
		return 0
	}
	removed := ttlStore.Cleanup()
	m.refreshKeyCount()
	return removed
}

// Stats returns the cache statistics.
func (m *Manager) Stats() *Stats {
	m.refreshKeyCount()
	return m.stats
}

// Config returns the manager's configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// Close stops the reaper and the metrics reporter and releases the store and
// index. Close is idempotent.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	if m.reapStop != nil {
		close(m.reapStop)
	}
	if m.metricsStop != nil {
		close(m.metricsStop)
	}
	m.wg.Wait()

	if m.metricsExporter != nil {
		if err := m.metricsExporter.Close(); err != nil {
			m.logger.Warn("metrics exporter close failed", F("error", err))
		}
	}
	if err := m.index.Close(); err != nil {
		m.logger.Warn("tag index close failed", F("error", err))
	}
	return m.store.Close()
}

// onEvicted handles entries removed by capacity pressure or TTL expiry.
func (m *Manager) onEvicted(key string, e *entry.Entry, reason EvictReason) {
	m.stats.incEvictions()
	if err := m.index.RemoveKey(key); err != nil {
		m.logger.Warn("tag unregistration failed", F("key", key), F("error", err))
	}
	var value any
	if e != nil {
		value = e.Value
	}
	m.hooks.invokeOnEvict(key, value, reason)
}

// reaper periodically removes expired entries so the store does not
// accumulate dead weight between reads. Read correctness never depends on
// it: Get evicts expired entries lazily.
func (m *Manager) reaper(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := m.Cleanup(); removed > 0 {
				m.logger.Debug("reaped expired entries", F("count", removed))
			}
		case <-m.reapStop:
			return
		}
	}
}

func (m *Manager) refreshKeyCount() {
	m.stats.setKeyCount(int64(m.store.Len()))
}

func (m *Manager) initMetrics() {
	cfg := m.config.Metrics
	if cfg == nil || !cfg.Enabled || cfg.Exporter == nil {
		m.metricsExporter = metrics.NewNoOpExporter()
		return
	}

	m.metricsExporter = cfg.Exporter

	m.metricsLabels = make(metrics.Labels)
	if cfg.CacheName != "" {
		m.metricsLabels["cache_name"] = cfg.CacheName
	} else {
		m.metricsLabels["cache_name"] = "default"
	}
	for k, v := range cfg.Labels {
		m.metricsLabels[k] = v
	}

	if cfg.ReportingInterval > 0 {
		m.metricsStop = make(chan struct{})
		m.wg.Add(1)
		go m.metricsReporter(cfg.ReportingInterval)
	}
}

func (m *Manager) metricsReporter(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.exportStats()
		case <-m.metricsStop:
			m.exportStats()
			return
		}
	}
}

func (m *Manager) exportStats() {
	m.refreshKeyCount()
	if err := m.metricsExporter.ExportStats(m.stats, m.metricsLabels); err != nil {
		m.logger.Debug("stats export failed", F("error", err))
	}
}

func (m *Manager) recordOperation(op metrics.Operation, start time.Time) {
	if err := m.metricsExporter.RecordOperation(op, time.Since(start), m.metricsLabels); err != nil {
		m.logger.Debug("operation metric failed", F("op", string(op)), F("error", err))
	}
}
