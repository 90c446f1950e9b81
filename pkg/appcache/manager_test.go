package appcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kanenguyen264/library-management-sub003/internal/entry"
	"github.com/kanenguyen264/library-management-sub003/internal/store"
)

func newTestManager(t *testing.T, config *Config) *Manager {
	t.Helper()
	if config == nil {
		config = NewDefaultConfig().WithReapInterval(0)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// flakyStore injects backend failures around a real store. failDeleteKey
// fails deletes for one key only, for partial-failure scenarios.
type flakyStore struct {
	store.Store
	failGet       bool
	failSet       bool
	failDelete    bool
	failDeleteKey string
}

var errBackendDown = errors.New("backend unavailable")

func (f *flakyStore) Get(key string) (*entry.Entry, bool) {
	if f.failGet {
		return nil, false
	}
	return f.Store.Get(key)
}

func (f *flakyStore) Set(key string, e *entry.Entry) error {
	if f.failSet {
		return errBackendDown
	}
	return f.Store.Set(key, e)
}

func (f *flakyStore) Delete(key string) error {
	if f.failDelete || (f.failDeleteKey != "" && key == f.failDeleteKey) {
		return errBackendDown
	}
	return f.Store.Delete(key)
}

func TestManagerSetGet(t *testing.T) {
	m := newTestManager(t, nil)

	if err := m.Set("key", "value", time.Hour, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, found := m.Get("key")
	if !found {
		t.Fatal("expected to find key")
	}
	if value != "value" {
		t.Errorf("expected 'value', got %v", value)
	}
}

func TestManagerDefaultTTL(t *testing.T) {
	m := newTestManager(t, NewDefaultConfig().WithDefaultTTL(time.Minute).WithReapInterval(0))

	m.Set("key", "value", 0, nil)

	ttl, found := m.KeyTTL("key")
	if !found {
		t.Fatal("expected to find key")
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected TTL from default, got %v", ttl)
	}
}

func TestManagerNoExpiry(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("key", "value", NoExpiry, nil)

	ttl, found := m.KeyTTL("key")
	if !found {
		t.Fatal("expected to find key")
	}
	if ttl != 0 {
		t.Errorf("no-expiry entry should report zero TTL, got %v", ttl)
	}
	if !m.Has("key") {
		t.Error("no-expiry entry should exist")
	}
}

func TestManagerExpiry(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("key", "value", time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)

	if _, found := m.Get("key"); found {
		t.Error("expired entry must be a miss")
	}
	if m.Has("key") {
		t.Error("Has must not report expired entries")
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("key", "value", time.Hour, []string{"users"})
	if err := m.Delete("key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, found := m.Get("key"); found {
		t.Error("deleted key should be a miss")
	}

	// The tag registration must be gone too.
	count, err := m.InvalidateByTags("users")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no keys left under the tag, got %d", count)
	}
}

func TestInvalidateByTags(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("A", 1, time.Hour, []string{"users", "books"})
	m.Set("B", 2, time.Hour, []string{"users"})
	m.Set("C", 3, time.Hour, []string{"books"})

	count, err := m.InvalidateByTags("users")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 invalidated, got %d", count)
	}

	if _, found := m.Get("A"); found {
		t.Error("A should be invalidated")
	}
	if _, found := m.Get("B"); found {
		t.Error("B should be invalidated")
	}
	if _, found := m.Get("C"); !found {
		t.Error("C should survive")
	}

	// A's other tag must not resurrect it or dangle.
	count, _ = m.InvalidateByTags("books")
	if count != 1 {
		t.Errorf("expected only C under books, got %d", count)
	}
}

func TestInvalidateByTagsEmpty(t *testing.T) {
	m := newTestManager(t, nil)

	count, err := m.InvalidateByTags("nothing")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

func TestInvalidatePattern(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("promotion_list:1", 1, time.Hour, nil)
	m.Set("promotion_list:2", 2, time.Hour, nil)
	m.Set("promotion_detail:1", 3, time.Hour, nil)

	count, err := m.InvalidatePattern("promotion_list*")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 invalidated, got %d", count)
	}

	if _, found := m.Get("promotion_list:1"); found {
		t.Error("promotion_list:1 should be gone")
	}
	if _, found := m.Get("promotion_detail:1"); !found {
		t.Error("promotion_detail:1 should survive")
	}
}

func TestInvalidateNamespace(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("admin:list:1", 1, time.Hour, nil)
	m.Set("admin:detail:1", 2, time.Hour, nil)
	m.Set("search:list:1", 3, time.Hour, nil)

	count, err := m.InvalidateNamespace("admin")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 invalidated, got %d", count)
	}
	if _, found := m.Get("search:list:1"); !found {
		t.Error("other namespace should survive")
	}
}

func TestManagerClear(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("a", 1, time.Hour, []string{"t"})
	m.Set("b", 2, time.Hour, []string{"t"})

	if err := m.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", m.Len())
	}

	count, _ := m.InvalidateByTags("t")
	if count != 0 {
		t.Errorf("tag index should be empty after clear, got %d", count)
	}
}

func TestWarmup(t *testing.T) {
	m := newTestManager(t, nil)

	err := m.Warmup(map[string]any{
		"user:1": "alice",
		"user:2": "bob",
		"user:3": "carol",
	}, time.Hour, []string{"users"})
	if err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	if m.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", m.Len())
	}
	if v, found := m.Get("user:2"); !found || v != "bob" {
		t.Errorf("expected bob, got %v (found=%v)", v, found)
	}

	count, _ := m.InvalidateByTags("users")
	if count != 3 {
		t.Errorf("expected all warmed entries under the tag, got %d", count)
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	m := newTestManager(t, nil)

	calls := 0
	compute := func() (any, error) {
		calls++
		return "computed", nil
	}

	for i := 0; i < 3; i++ {
		v, err := m.GetOrCompute(context.Background(), "key", compute, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "computed" {
			t.Errorf("expected 'computed', got %v", v)
		}
	}

	if calls != 1 {
		t.Errorf("expected exactly 1 computation, got %d", calls)
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	m := newTestManager(t, nil)

	wantErr := errors.New("db down")
	calls := 0

	for i := 0; i < 2; i++ {
		_, err := m.GetOrCompute(context.Background(), "key", func() (any, error) {
			calls++
			return nil, wantErr
		}, nil)
		if !errors.Is(err, wantErr) {
			t.Fatalf("expected %v, got %v", wantErr, err)
		}
	}

	if calls != 2 {
		t.Errorf("errors must not be cached; expected 2 calls, got %d", calls)
	}
	if m.Has("key") {
		t.Error("no entry should exist after failed computations")
	}
}

func TestGetOrComputeShouldCache(t *testing.T) {
	m := newTestManager(t, nil)

	opts := &ComputeOptions{
		ShouldCache: func(result any) bool { return result != "skip" },
	}

	v, err := m.GetOrCompute(context.Background(), "key", func() (any, error) {
		return "skip", nil
	}, opts)
	if err != nil || v != "skip" {
		t.Fatalf("expected uncached result, got %v, %v", v, err)
	}
	if m.Has("key") {
		t.Error("rejected result must not be cached")
	}
}

func TestBackendReadFailureIsMiss(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("key", "value", time.Hour, nil)
	m.store = &flakyStore{Store: m.store, failGet: true}

	if _, found := m.Get("key"); found {
		t.Error("a failing backend read must be served as a miss")
	}
}

func TestBackendWriteFailureDoesNotFailCompute(t *testing.T) {
	m := newTestManager(t, nil)
	m.store = &flakyStore{Store: m.store, failSet: true}

	v, err := m.GetOrCompute(context.Background(), "key", func() (any, error) {
		return "fresh", nil
	}, nil)
	if err != nil {
		t.Fatalf("compute must succeed despite the write failure: %v", err)
	}
	if v != "fresh" {
		t.Errorf("expected 'fresh', got %v", v)
	}
}

func TestHooks(t *testing.T) {
	hooks := &Hooks{}
	var mu sync.Mutex
	events := map[string]int{}
	record := func(name string) {
		mu.Lock()
		events[name]++
		mu.Unlock()
	}

	hooks.AddOnHit(func(string, any) { record("hit") })
	hooks.AddOnMiss(func(string) { record("miss") })
	hooks.AddOnInvalidate(func(string) { record("invalidate") })
	hooks.AddOnEvict(func(_ string, _ any, reason EvictReason) { record("evict:" + reason.String()) })

	m := newTestManager(t, NewDefaultConfig().WithReapInterval(0).WithHooks(hooks))

	m.Get("missing")
	m.Set("key", "value", time.Hour, nil)
	m.Get("key")
	m.Delete("key")

	m.Set("short", "lived", time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)
	m.Cleanup()

	mu.Lock()
	defer mu.Unlock()
	if events["miss"] != 1 {
		t.Errorf("expected 1 miss event, got %d", events["miss"])
	}
	if events["hit"] != 1 {
		t.Errorf("expected 1 hit event, got %d", events["hit"])
	}
	if events["invalidate"] != 1 {
		t.Errorf("expected 1 invalidate event, got %d", events["invalidate"])
	}
	if events["evict:ttl"] != 1 {
		t.Errorf("expected 1 ttl eviction event, got %d", events["evict:ttl"])
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("key", "value", time.Hour, nil)
	m.Get("key")
	m.Get("key")
	m.Get("missing")
	m.Delete("key")

	stats := m.Stats()
	if stats.Hits() != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits())
	}
	if stats.Misses() != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses())
	}
	if stats.Invalidations() != 1 {
		t.Errorf("expected 1 invalidation, got %d", stats.Invalidations())
	}
	if rate := stats.HitRate(); rate < 66 || rate > 67 {
		t.Errorf("expected hit rate ~66.7, got %v", rate)
	}
}

func TestReaper(t *testing.T) {
	m := newTestManager(t, NewDefaultConfig().WithReapInterval(10*time.Millisecond))

	m.Set("key", "value", time.Millisecond, nil)

	deadline := time.After(time.Second)
	for m.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("reaper never removed the expired entry")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if m.Stats().Evictions() == 0 {
		t.Error("reaped entries should count as evictions")
	}
}

func TestCloseIdempotent(t *testing.T) {
	m, err := New(NewDefaultConfig())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	m, err := New(NewDefaultConfig())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	m.Close()

	if err := m.Set("k", 1, 0, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Set, got %v", err)
	}
	if _, err := m.GetOrCompute(context.Background(), "k", func() (any, error) {
		return 1, nil
	}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from GetOrCompute, got %v", err)
	}
	if err := m.Warmup(map[string]any{"k": 1}, 0, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Warmup, got %v", err)
	}
}

func TestZeroValueConfigGetsDefaults(t *testing.T) {
	m, err := New(&Config{StoreType: StoreTypeMemory})
	if err != nil {
		t.Fatalf("a zero-value memory config must be usable: %v", err)
	}
	defer m.Close()

	if m.Config().MaxEntries != defaultMaxEntries {
		t.Errorf("expected default capacity %d, got %d", defaultMaxEntries, m.Config().MaxEntries)
	}

	if err := m.Set("k", "v", time.Hour, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if v, ok := m.Get("k"); !ok || v != "v" {
		t.Errorf("expected hit with 'v', got %v, %v", v, ok)
	}
}

func TestRedisConfigRequiresRedis(t *testing.T) {
	_, err := New(&Config{StoreType: StoreTypeRedis})
	if err == nil {
		t.Fatal("expected an error without redis configuration")
	}
}
