// Package cache stores paper results by identity so repeated requests skip
// the scoring pipeline. Values are JSON encoded into a pluggable Store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

var ErrNotFound = errors.New("cache: key not found")

// Store is a persistent key/value layer. Eviction is the store's business.
type Store interface {
	Contains(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cache wraps a Store with typed values and per-key coalescing of misses:
// concurrent callers for one uncached key share a single compute call.
type Cache[T any] struct {
	store Store
	group singleflight.Group
}

func New[T any](store Store) *Cache[T] {
	return &Cache[T]{store: store}
}

// GetOrCompute returns the stored value for key, or runs compute once, stores
// its result and returns it. hit reports whether the value came from the store.
// Failed computations are not stored.
//
// The shared compute runs detached from any single caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (value T, hit bool, err error) {
	if v, ok, err := c.lookup(ctx, key); err != nil {
		slog.Warn("cache read failed, recomputing", "key", key, "err", err)
	} else if ok {
		return v, true, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// another caller may have filled the key while we waited
		if v, ok, err := c.lookup(shared, key); err == nil && ok {
			return cached[T]{value: v, hit: true}, nil
		}
		v, err := compute(shared)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		if err := c.store.Set(shared, key, raw); err != nil {
			slog.Warn("cache write failed", "key", key, "err", err)
		}
		return cached[T]{value: v}, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		out := res.Val.(cached[T])
		return out.value, out.hit, nil
	}
}

func (c *Cache[T]) lookup(ctx context.Context, key string) (T, bool, error) {
	var zero T
	ok, err := c.store.Contains(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// evicted between Contains and Get
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode cache value %q: %w", key, err)
	}
	return v, true, nil
}

type cached[T any] struct {
	value T
	hit   bool
}
