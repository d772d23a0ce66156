package cache

import (
	"log/slog"
	"time"

	"github.com/starford/contentgraph/internal/metrics"
)

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithFetchTimeout bounds every upstream fetch, cold or background.
// A zero or negative value disables the bound.
func WithFetchTimeout[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) {
		c.fetchTimeout = d
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger[V any](l *slog.Logger) Option[V] {
	return func(c *Cache[V]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics exports cache statistics to reg, labelled with name.
// A nil registry or empty name is ignored.
func WithMetrics[V any](reg *metrics.Registry, name string) Option[V] {
	return func(c *Cache[V]) {
		if reg != nil && name != "" {
			c.metricsReg = reg
			c.metricsName = name
		}
	}
}

// WithUpdateHook registers fn to run after every successful fetch is stored.
// See Cache.OnUpdate.
func WithUpdateHook[V any](fn func(key string, value V, fetchedAt time.Time, ttl time.Duration)) Option[V] {
	return func(c *Cache[V]) {
		if fn != nil {
			c.onUpdate = append(c.onUpdate, fn)
		}
	}
}

// WithRefreshErrorHook registers fn to run when a background refresh fails.
func WithRefreshErrorHook[V any](fn func(key string, err error)) Option[V] {
	return func(c *Cache[V]) {
		c.onRefreshError = fn
	}
}
