// Package cache provides a keyed, process-wide cache with TTL expiry,
// stale-while-revalidate reads and single-flight upstream fetches.
//
// Each key moves through Empty → Fresh → Stale → Fresh …. An Empty key
// blocks its callers on one shared fetch. A Stale key is served
// immediately while exactly one background refresh runs. A failed refresh
// keeps the previous value and its fetch time, so the next read retries.
//
// Locking: Cache.mu guards only the key → entry map; each entry has its
// own mutex for value and refresh state. No code path holds both, so
// operations on different keys never wait on each other.
//
// Invalidate detaches an entry. Fetches already running for it finish
// into the detached entry: their update hooks do not fire and later
// callers start a fresh fetch instead of joining them.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/contentgraph/internal/metrics"
)

// FetchFunc loads the value for a key from upstream.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// State describes the freshness of a key.
type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	}
	return "empty"
}

// UpdateFunc observes a value stored by a successful fetch.
type UpdateFunc[V any] func(key string, value V, fetchedAt time.Time, ttl time.Duration)

// entry is one cache slot. key and gen are immutable; the rest is guarded by mu.
type entry[V any] struct {
	mu         sync.Mutex
	key        string
	gen        uint64
	value      V
	hasValue   bool
	fetchedAt  time.Time
	ttl        time.Duration
	refreshing bool
}

// flight is the single-flight key. A new generation never joins a load
// started for a detached entry.
func (e *entry[V]) flight() string {
	return e.key + "\x00" + strconv.FormatUint(e.gen, 10)
}

// storedAt reports whether fetchedAt is still the entry's latest store.
func (e *entry[V]) storedAt(fetchedAt time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasValue && e.fetchedAt.Equal(fetchedAt)
}

// Cache is safe for concurrent use. Create one per process and share it.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	nextGen uint64

	loads singleflight.Group

	now          func() time.Time
	fetchTimeout time.Duration
	logger       *slog.Logger
	stats        statistics
	metrics      *cacheMetrics
	metricsReg   *metrics.Registry
	metricsName  string

	// updateMu is held shared while update hooks run and exclusively by
	// Invalidate, so no hook for a detached entry runs after Invalidate returns.
	updateMu       sync.RWMutex
	onUpdate       []UpdateFunc[V]
	onRefreshError func(key string, err error)

	// lifeMu orders background spawns against Close.
	lifeMu sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache. It fails only when metrics registration fails.
func New[V any](opts ...Option[V]) (*Cache[V], error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		now:     time.Now,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metricsReg != nil {
		m, err := newCacheMetrics(c.metricsReg, c.metricsName)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("cache: metrics: %w", err)
		}
		c.metrics = m
	}
	return c, nil
}

// GetOrFetch returns the value for key, calling fetch when the key is
// empty or stale. Only an empty key makes the caller wait; the wait ends
// early with ctx's error if ctx is done first, without cancelling the
// shared fetch. A non-positive ttl makes every stored value stale at once.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	e := c.slot(key)

	e.mu.Lock()
	if e.hasValue {
		value := e.value
		if c.now().Sub(e.fetchedAt) < ttl {
			e.mu.Unlock()
			c.stats.freshHits.Add(1)
			c.metrics.recordRequest("fresh")
			return value, nil
		}
		startRefresh := !e.refreshing
		e.refreshing = true
		e.mu.Unlock()

		c.stats.staleHits.Add(1)
		c.metrics.recordRequest("stale")
		if startRefresh && !c.spawn(func() { c.refresh(e, ttl, fetch) }) {
			e.mu.Lock()
			e.refreshing = false
			e.mu.Unlock()
		}
		return value, nil
	}
	e.mu.Unlock()

	c.stats.misses.Add(1)
	c.metrics.recordRequest("miss")
	return c.load(ctx, e, ttl, fetch)
}

// load performs the single-flight fetch for an empty key.
func (c *Cache[V]) load(ctx context.Context, e *entry[V], ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	ch := c.loads.DoChan(e.flight(), func() (any, error) {
		// A concurrent load may have completed between our check and here.
		e.mu.Lock()
		if e.hasValue {
			v := e.value
			e.mu.Unlock()
			return v, nil
		}
		e.mu.Unlock()

		fctx, cancel := c.fetchContext(context.WithoutCancel(ctx))
		defer cancel()

		c.stats.loads.Add(1)
		v, err := c.fetch(fctx, "load", fetch)
		if err != nil {
			c.stats.loadErrors.Add(1)
			return nil, err
		}
		c.store(e, v, ttl, false)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, fmt.Errorf("cache: load %q: %w", e.key, res.Err)
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// refresh runs in the background for a stale key. The caller already
// received the stale value, so failures are only logged.
func (c *Cache[V]) refresh(e *entry[V], ttl time.Duration, fetch FetchFunc[V]) {
	ctx, cancel := c.fetchContext(c.ctx)
	defer cancel()

	c.stats.refreshes.Add(1)
	c.logger.Debug("cache: refreshing stale key", slog.String("key", e.key))

	v, err := c.fetch(ctx, "refresh", fetch)
	if err != nil {
		e.mu.Lock()
		e.refreshing = false
		e.mu.Unlock()

		c.stats.refreshFailures.Add(1)
		c.logger.Warn("cache: background refresh failed, serving stale value",
			slog.String("key", e.key),
			slog.String("error", err.Error()))
		if c.onRefreshError != nil {
			c.onRefreshError(e.key, err)
		}
		return
	}
	c.store(e, v, ttl, true)
}

func (c *Cache[V]) fetch(ctx context.Context, mode string, fetch FetchFunc[V]) (V, error) {
	start := time.Now()
	v, err := fetch(ctx)
	c.metrics.recordFetch(mode, time.Since(start), err)
	return v, err
}

func (c *Cache[V]) fetchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.fetchTimeout > 0 {
		return context.WithTimeout(parent, c.fetchTimeout)
	}
	return context.WithCancel(parent)
}

// store swaps in a new value. Readers see either the old or the new value.
func (c *Cache[V]) store(e *entry[V], v V, ttl time.Duration, fromRefresh bool) {
	e.mu.Lock()
	e.value = v
	e.hasValue = true
	e.fetchedAt = c.now()
	e.ttl = ttl
	if fromRefresh {
		e.refreshing = false
	}
	fetchedAt := e.fetchedAt
	e.mu.Unlock()

	// Hooks run off the fetching goroutine so waiting callers are not held
	// up by them.
	notify := func() { c.notify(e, v, fetchedAt, ttl) }
	if !c.spawn(notify) {
		notify()
	}
}

// notify runs the update hooks for a store, unless the entry has been
// invalidated or overwritten by a newer store since.
func (c *Cache[V]) notify(e *entry[V], v V, fetchedAt time.Time, ttl time.Duration) {
	c.updateMu.RLock()
	defer c.updateMu.RUnlock()
	if len(c.onUpdate) == 0 || !c.attached(e) || !e.storedAt(fetchedAt) {
		return
	}
	for _, fn := range c.onUpdate {
		fn(e.key, v, fetchedAt, ttl)
	}
}

// OnUpdate registers fn to run after every successful fetch is stored.
// Hooks run without any cache lock held but must not call Invalidate.
func (c *Cache[V]) OnUpdate(fn UpdateFunc[V]) {
	if fn == nil {
		return
	}
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

func (c *Cache[V]) attached(e *entry[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[e.key] == e
}

// slot returns the entry for key, creating an empty one if needed.
func (c *Cache[V]) slot(key string) *entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.nextGen++
		e = &entry[V]{key: key, gen: c.nextGen}
		c.entries[key] = e
		c.metrics.updateEntries(len(c.entries))
	}
	return e
}

// spawn runs fn in a tracked goroutine unless the cache is closed.
func (c *Cache[V]) spawn(fn func()) bool {
	c.lifeMu.RLock()
	defer c.lifeMu.RUnlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// Prime stores value for key as if it had been fetched at fetchedAt.
// It does nothing if the key already holds a value. Used to warm the
// cache from a persisted snapshot; an old fetchedAt makes the entry stale
// so the first read serves it and refreshes it.
func (c *Cache[V]) Prime(key string, value V, fetchedAt time.Time, ttl time.Duration) bool {
	e := c.slot(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasValue {
		return false
	}
	e.value = value
	e.hasValue = true
	e.fetchedAt = fetchedAt
	e.ttl = ttl
	return true
}

// Peek returns the stored value and its state without fetching.
func (c *Cache[V]) Peek(key string) (V, State, time.Time) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	var zero V
	if !ok {
		return zero, StateEmpty, time.Time{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasValue {
		return zero, StateEmpty, time.Time{}
	}
	if c.now().Sub(e.fetchedAt) < e.ttl {
		return e.value, StateFresh, e.fetchedAt
	}
	return e.value, StateStale, e.fetchedAt
}

// Invalidate drops key. An in-flight fetch for it completes into the
// detached entry and is discarded. Invalidate waits for update hooks that
// are already running.
func (c *Cache[V]) Invalidate(key string) bool {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.metrics.updateEntries(len(c.entries))
	return ok
}

// Keys returns the cached keys in sorted order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return c.stats.snapshot(n)
}

// Close cancels in-flight background refreshes and waits for them.
// Reads keep working afterwards but never start a refresh.
func (c *Cache[V]) Close() error {
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
