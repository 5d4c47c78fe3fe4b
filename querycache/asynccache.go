// Package querycache implements the two-level call-coalescing cache that
// sits in front of the wire resolver: a block-level cache keyed by the
// identity of a whole query block, and a query-level cache keyed by the
// identity of a single (name, rtype, server IP) query. Both levels share
// the same absent/in-flight/finished contract, implemented by AsyncCache.
package querycache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// AsyncCache gives at-most-one-concurrent-execution-per-key semantics: the
// first caller for a given key runs compute, every other concurrent caller
// for the same key blocks on that one execution instead of starting its
// own, and once compute succeeds the result is remembered for the life of
// the AsyncCache, unless a positive capacity evicts it. A failed compute is
// never cached: the next caller for that key gets to try again.
type AsyncCache[T any] struct {
	group singleflight.Group

	mu    sync.RWMutex
	store *lru[T]
}

// NewAsyncCache returns an AsyncCache. A non-positive capacity keeps
// finished results forever; a positive capacity bounds the number of
// finished results retained, evicting least-recently-used entries beyond it.
func NewAsyncCache[T any](capacity int) *AsyncCache[T] {
	return &AsyncCache[T]{store: newLRU[T](capacity)}
}

// Get returns the finished result for key, computing it via compute if no
// result exists yet and no computation for key is currently in flight.
func (c *AsyncCache[T]) Get(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.peek(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.peek(key); ok {
			return v, nil
		}

		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.store.set(key, result)
		c.mu.Unlock()

		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *AsyncCache[T]) peek(key string) (T, bool) {
	// A full lock, not a read lock: lru.get moves the entry to the front.
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(key)
}

// Finished reports whether key already has a cached result, without
// triggering or waiting on any computation.
func (c *AsyncCache[T]) Finished(key string) bool {
	_, ok := c.peek(key)
	return ok
}
