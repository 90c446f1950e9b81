package memory

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kanenguyen264/library-management-sub003/internal/entry"
)

func newTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := New(capacity)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t, 10)

	if err := s.Set("key", entry.New("value", time.Hour, nil)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	e, found := s.Get("key")
	if !found {
		t.Fatal("expected to find key")
	}
	if e.Value != "value" {
		t.Errorf("expected 'value', got %v", e.Value)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t, 10)

	if _, found := s.Get("missing"); found {
		t.Error("missing key should not be found")
	}
}

func TestLazyExpiry(t *testing.T) {
	s := newTestStore(t, 10)

	var mu sync.Mutex
	var reaped []string
	s.SetCleanupCallback(func(key string, _ *entry.Entry) {
		mu.Lock()
		reaped = append(reaped, key)
		mu.Unlock()
	})

	s.Set("key", entry.New("value", time.Millisecond, nil))
	time.Sleep(5 * time.Millisecond)

	if _, found := s.Get("key"); found {
		t.Fatal("expired entry must be reported as a miss")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reaped) != 1 || reaped[0] != "key" {
		t.Errorf("expected cleanup callback for 'key', got %v", reaped)
	}
}

func TestCapacityEviction(t *testing.T) {
	s := newTestStore(t, 2)

	var mu sync.Mutex
	var evicted []string
	s.SetEvictCallback(func(key string, _ *entry.Entry) {
		mu.Lock()
		evicted = append(evicted, key)
		mu.Unlock()
	})

	s.Set("a", entry.New(1, time.Hour, nil))
	s.Set("b", entry.New(2, time.Hour, nil))
	s.Set("c", entry.New(3, time.Hour, nil))

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Errorf("expected LRU eviction of 'a', got %v", evicted)
	}
}

func TestDeleteDoesNotFireEvictCallback(t *testing.T) {
	s := newTestStore(t, 10)

	var mu sync.Mutex
	evictions := 0
	s.SetEvictCallback(func(string, *entry.Entry) {
		mu.Lock()
		evictions++
		mu.Unlock()
	})

	s.Set("key", entry.New("value", time.Hour, nil))
	if err := s.Delete("key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if evictions != 0 {
		t.Errorf("explicit removals must not count as evictions, got %d", evictions)
	}
}

func TestDeleteMatching(t *testing.T) {
	s := newTestStore(t, 10)

	s.Set("promotion_list:1", entry.New(1, time.Hour, nil))
	s.Set("promotion_list:2", entry.New(2, time.Hour, nil))
	s.Set("promotion_detail:1", entry.New(3, time.Hour, nil))

	removed, err := s.DeleteMatching("promotion_list*")
	if err != nil {
		t.Fatalf("DeleteMatching failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	if _, found := s.Get("promotion_list:1"); found {
		t.Error("promotion_list:1 should be gone")
	}
	if _, found := s.Get("promotion_detail:1"); !found {
		t.Error("promotion_detail:1 should survive")
	}
}

func TestScan(t *testing.T) {
	s := newTestStore(t, 10)

	s.Set("user:1", entry.New(1, time.Hour, nil))
	s.Set("user:2", entry.New(2, time.Hour, nil))
	s.Set("book:1", entry.New(3, time.Hour, nil))

	keys, err := s.Scan("user:")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "user:1" || keys[1] != "user:2" {
		t.Errorf("unexpected scan result: %v", keys)
	}
}

func TestKeysAndLenSkipExpired(t *testing.T) {
	s := newTestStore(t, 10)

	s.Set("live", entry.New(1, time.Hour, nil))
	s.Set("dead", entry.New(2, time.Millisecond, nil))
	time.Sleep(5 * time.Millisecond)

	if got := s.Len(); got != 1 {
		t.Errorf("expected Len 1, got %d", got)
	}
	keys := s.Keys()
	if len(keys) != 1 || keys[0] != "live" {
		t.Errorf("expected keys [live], got %v", keys)
	}
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t, 10)

	var mu sync.Mutex
	var reaped []string
	s.SetCleanupCallback(func(key string, _ *entry.Entry) {
		mu.Lock()
		reaped = append(reaped, key)
		mu.Unlock()
	})

	s.Set("a", entry.New(1, time.Millisecond, nil))
	s.Set("b", entry.New(2, time.Millisecond, nil))
	s.Set("c", entry.New(3, time.Hour, nil))
	time.Sleep(5 * time.Millisecond)

	if removed := s.Cleanup(); removed != 2 {
		t.Errorf("expected 2 reaped, got %d", removed)
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(reaped)
	if len(reaped) != 2 || reaped[0] != "a" || reaped[1] != "b" {
		t.Errorf("expected cleanup callbacks for a and b, got %v", reaped)
	}
}

func TestNewWithCleanup(t *testing.T) {
	s, err := NewWithCleanup(10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.Set("key", entry.New("value", time.Millisecond, nil))

	deadline := time.After(time.Second)
	for s.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup ticker never reaped the expired entry")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, 10)

	s.Set("a", entry.New(1, time.Hour, nil))
	s.Set("b", entry.New(2, time.Hour, nil))

	if err := s.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				s.Set(key, entry.New(j, time.Hour, nil))
				s.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 10 {
		t.Errorf("expected 10 entries, got %d", s.Len())
	}
}
