package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Expiring holds one value that is refreshed lazily once it is older than
// ttl.  Concurrent readers that find it stale share a single refresh.
type Expiring[T any] struct {
	ttl   time.Duration
	now   Clock
	fetch func(context.Context) (T, error)

	mu      sync.RWMutex
	val     T
	fetched time.Time
	valid   bool

	group singleflight.Group
}

// NewExpiring returns an empty Expiring.  A nil clock means time.Now.
func NewExpiring[T any](ttl time.Duration, now Clock, fetch func(context.Context) (T, error)) *Expiring[T] {
	if now == nil {
		now = time.Now
	}
	return &Expiring[T]{ttl: ttl, now: now, fetch: fetch}
}

// Get returns the cached value, refreshing it first when it is missing or
// expired.  A failed refresh keeps serving the previous value, if any,
// alongside the error.
func (e *Expiring[T]) Get(ctx context.Context) (T, error) {
	if v, ok := e.fresh(); ok {
		return v, nil
	}

	res, err, _ := e.group.Do("refresh", func() (any, error) {
		if v, ok := e.fresh(); ok {
			return v, nil
		}
		v, err := e.fetch(ctx)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.val, e.fetched, e.valid = v, e.now(), true
		e.mu.Unlock()
		return v, nil
	})
	if err != nil {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.val, err
	}
	return res.(T), nil
}

// Invalidate forces the next Get to refresh.
func (e *Expiring[T]) Invalidate() {
	e.mu.Lock()
	e.valid = false
	e.mu.Unlock()
}

// FetchedAt reports when the current value was loaded.
func (e *Expiring[T]) FetchedAt() (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fetched, !e.fetched.IsZero()
}

func (e *Expiring[T]) fresh() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.valid && e.now().Sub(e.fetched) < e.ttl {
		return e.val, true
	}
	var zero T
	return zero, false
}
