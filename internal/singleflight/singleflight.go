// Package singleflight provides duplicate suppression for concurrent
// computations keyed by cache key. At most one computation runs per key;
// concurrent callers for the same key wait on the in-flight result.
package singleflight

import (
	"context"
	"sync"
)

// Group suppresses duplicate computations. The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

// call is an in-flight or completed computation.
type call[V any] struct {
	wg sync.WaitGroup

	// Written once before wg.Done, read only after wg.Wait returns.
	val V
	err error

	// Guarded by the Group's mutex.
	dups  int
	chans []chan<- Result[V]
}

// Result carries a computation outcome over a channel.
type Result[V any] struct {
	Val    V
	Err    error
	Shared bool
}

// Do executes fn, ensuring that only one execution is in flight for key at a
// time. Duplicate callers block until the original completes and receive the
// same value and error. Shared reports whether the value was handed to more
// than one caller.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}
	c := new(call[V])
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)
	return c.val, c.err, c.dups > 0
}

// DoChan is like Do but runs fn in its own goroutine and returns a channel
// that will receive the result. The channel is never closed.
func (g *Group[K, V]) DoChan(key K, fn func() (V, error)) <-chan Result[V] {
	ch := make(chan Result[V], 1)
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		c.chans = append(c.chans, ch)
		g.mu.Unlock()
		return ch
	}
	c := &call[V]{chans: []chan<- Result[V]{ch}}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	go g.doCall(c, key, fn)

	return ch
}

// DoContext is like Do but stops waiting when ctx is cancelled. The
// computation itself is not cancelled: it continues on behalf of any other
// waiters, only this caller's return path is abandoned.
func (g *Group[K, V]) DoContext(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	if err := ctx.Err(); err != nil {
		return v, err, false
	}

	ch := g.DoChan(key, fn)
	select {
	case <-ctx.Done():
		return v, ctx.Err(), false
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	}
}

func (g *Group[K, V]) doCall(c *call[V], key K, fn func() (V, error)) {
	c.val, c.err = fn()
	c.wg.Done()

	g.mu.Lock()
	delete(g.m, key)
	for _, ch := range c.chans {
		ch <- Result[V]{c.val, c.err, c.dups > 0}
	}
	g.mu.Unlock()
}

// Forget drops the in-flight record for key. Future Do calls for the key will
// execute fn rather than wait for an earlier call.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

// InFlight returns the number of keys currently being computed.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
