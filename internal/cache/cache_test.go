package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/contentgraph/internal/metrics"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...Option[string]) (*Cache[string], *fakeClock) {
	t.Helper()
	clock := newClock()
	c, err := New(append([]Option[string]{WithClock[string](clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func constFetch(v string, calls *atomic.Int32) FetchFunc[string] {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestGetOrFetch_ColdSingleFlight(t *testing.T) {
	c, _ := newTestCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v1", nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "page:home", time.Minute, fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "v1", results[i])
	}
}

func TestGetOrFetch_FreshHit(t *testing.T) {
	c, clock := newTestCache(t)
	var calls atomic.Int32

	v, err := c.GetOrFetch(context.Background(), "k", time.Minute, constFetch("v1", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.Advance(59 * time.Second)
	v, err = c.GetOrFetch(context.Background(), "k", time.Minute, constFetch("v2", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(1), calls.Load())

	st := c.Stats()
	assert.Equal(t, int64(1), st.FreshHits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, 1, st.Entries)
	assert.InDelta(t, 0.5, st.HitRatio, 0.0001)
}

func TestGetOrFetch_StaleWhileRevalidate(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (string, error) { return "old", nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "new", nil
	}

	v, err := c.GetOrFetch(ctx, "k", time.Minute, refresh)
	require.NoError(t, err)
	assert.Equal(t, "old", v, "stale value served without waiting")

	// A second stale read while the refresh is running must not start another.
	v, err = c.GetOrFetch(ctx, "k", time.Minute, refresh)
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	close(release)
	require.Eventually(t, func() bool {
		v, state, _ := c.Peek("k")
		return v == "new" && state == StateFresh
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(2), c.Stats().StaleHits)
	assert.Equal(t, int64(1), c.Stats().Refreshes)
}

func TestGetOrFetch_FailedRefreshKeepsValue(t *testing.T) {
	var hookKeys []string
	var hookMu sync.Mutex
	c, clock := newTestCache(t, WithRefreshErrorHook[string](func(key string, err error) {
		hookMu.Lock()
		hookKeys = append(hookKeys, key)
		hookMu.Unlock()
	}))
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (string, error) { return "old", nil })
	require.NoError(t, err)
	_, _, fetchedAt := c.Peek("k")
	clock.Advance(2 * time.Minute)

	var calls atomic.Int32
	failing := func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("upstream down")
	}

	v, err := c.GetOrFetch(ctx, "k", time.Minute, failing)
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	require.Eventually(t, func() bool { return c.Stats().RefreshFailures == 1 }, time.Second, 5*time.Millisecond)

	v, state, at := c.Peek("k")
	assert.Equal(t, "old", v)
	assert.Equal(t, StateStale, state)
	assert.Equal(t, fetchedAt, at, "fetch time unchanged after failed refresh")

	// Still stale, so the next read retries.
	v, err = c.GetOrFetch(ctx, "k", time.Minute, failing)
	require.NoError(t, err)
	assert.Equal(t, "old", v)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.Stats().RefreshFailures == 2 }, time.Second, 5*time.Millisecond)

	hookMu.Lock()
	assert.Equal(t, []string{"k", "k"}, hookKeys)
	hookMu.Unlock()
}

func TestGetOrFetch_ColdErrorLeavesKeyEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("boom")

	_, err := c.GetOrFetch(context.Background(), "k", time.Minute, func(context.Context) (string, error) {
		return "", boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, state, _ := c.Peek("k")
	assert.Equal(t, StateEmpty, state)

	var calls atomic.Int32
	v, err := c.GetOrFetch(context.Background(), "k", time.Minute, constFetch("v", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, int32(1), calls.Load(), "error not cached")
	assert.Equal(t, int64(1), c.Stats().LoadErrors)
}

func TestGetOrFetch_FetchTimeout(t *testing.T) {
	c, _ := newTestCache(t, WithFetchTimeout[string](20*time.Millisecond))

	_, err := c.GetOrFetch(context.Background(), "k", time.Minute, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, state, _ := c.Peek("k")
	assert.Equal(t, StateEmpty, state)
}

func TestGetOrFetch_CallerCancelDoesNotAbortSharedLoad(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "v", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrFetch(ctx, "k", time.Minute, fetch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool {
		v, state, _ := c.Peek("k")
		return v == "v" && state == StateFresh
	}, time.Second, 5*time.Millisecond)
}

func TestGetOrFetch_KeysAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	block := make(chan struct{})
	defer close(block)

	go func() {
		_, _ = c.GetOrFetch(context.Background(), "slow", time.Minute, func(context.Context) (string, error) {
			<-block
			return "slow", nil
		})
	}()

	time.Sleep(10 * time.Millisecond)
	var calls atomic.Int32
	done := make(chan string, 1)
	go func() {
		v, _ := c.GetOrFetch(context.Background(), "fast", time.Minute, constFetch("fast", &calls))
		done <- v
	}()

	select {
	case v := <-done:
		assert.Equal(t, "fast", v)
	case <-time.After(time.Second):
		t.Fatal("load of one key blocked on another")
	}
}

func TestGetOrFetch_RefreshTimeoutKeepsValue(t *testing.T) {
	c, clock := newTestCache(t, WithFetchTimeout[string](20*time.Millisecond))
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (string, error) { return "old", nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	v, err := c.GetOrFetch(ctx, "k", time.Minute, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	require.Eventually(t, func() bool { return c.Stats().RefreshFailures == 1 }, time.Second, 5*time.Millisecond)
	v, _, _ = c.Peek("k")
	assert.Equal(t, "old", v)
}

func TestClose_CancelsRefreshAndStopsNewOnes(t *testing.T) {
	clock := newClock()
	c, err := New(WithClock[string](clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (string, error) { return "old", nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	started := make(chan struct{})
	_, err = c.GetOrFetch(ctx, "k", time.Minute, func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, c.Close())
	assert.Equal(t, int64(1), c.Stats().RefreshFailures)

	var calls atomic.Int32
	v, err := c.GetOrFetch(ctx, "k", time.Minute, constFetch("new", &calls))
	require.NoError(t, err)
	assert.Equal(t, "old", v)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, calls.Load(), "no refresh after close")
}

func TestPrimeAndUpdateHook(t *testing.T) {
	var updates atomic.Int32
	c, clock := newTestCache(t, WithUpdateHook[string](func(key, value string, _ time.Time, ttl time.Duration) {
		assert.Equal(t, "k", key)
		assert.Equal(t, time.Minute, ttl)
		updates.Add(1)
	}))

	assert.True(t, c.Prime("k", "snap", clock.Now().Add(-time.Hour), time.Minute))
	assert.False(t, c.Prime("k", "other", clock.Now(), time.Minute))
	assert.Zero(t, updates.Load(), "prime is not an update")

	_, state, _ := c.Peek("k")
	assert.Equal(t, StateStale, state)

	var calls atomic.Int32
	v, err := c.GetOrFetch(context.Background(), "k", time.Minute, constFetch("live", &calls))
	require.NoError(t, err)
	assert.Equal(t, "snap", v)

	require.Eventually(t, func() bool { return updates.Load() == 1 }, time.Second, 5*time.Millisecond)
	v, state, _ = c.Peek("k")
	assert.Equal(t, "live", v)
	assert.Equal(t, StateFresh, state)
}

func TestInvalidateAndKeys(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	for _, k := range []string{"b", "a"} {
		_, err := c.GetOrFetch(context.Background(), k, time.Minute, constFetch(k, &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b"}, c.Keys())

	assert.True(t, c.Invalidate("a"))
	assert.False(t, c.Invalidate("a"))
	assert.Equal(t, []string{"b"}, c.Keys())

	_, err := c.GetOrFetch(context.Background(), "a", time.Minute, constFetch("a2", &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvalidate_DetachesInFlightLoad(t *testing.T) {
	var mu sync.Mutex
	var updates []string
	c, _ := newTestCache(t, WithUpdateHook[string](func(_ string, value string, _ time.Time, _ time.Duration) {
		mu.Lock()
		updates = append(updates, value)
		mu.Unlock()
	}))

	started := make(chan struct{})
	release := make(chan struct{})
	oldDone := make(chan string)
	go func() {
		v, _ := c.GetOrFetch(context.Background(), "k", time.Minute, func(context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		oldDone <- v
	}()
	<-started

	require.True(t, c.Invalidate("k"))

	// A caller arriving after Invalidate starts its own fetch.
	var calls atomic.Int32
	v, err := c.GetOrFetch(context.Background(), "k", time.Minute, constFetch("new", &calls))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	assert.Equal(t, "old", <-oldDone, "the original caller still gets its load")

	require.NoError(t, c.Close())
	v, state, _ := c.Peek("k")
	assert.Equal(t, "new", v, "detached load must not overwrite the new slot")
	assert.Equal(t, StateFresh, state)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"new"}, updates, "no update hook for the detached entry")
}

func TestOnUpdate_RegisteredAfterNew(t *testing.T) {
	c, _ := newTestCache(t)
	got := make(chan string, 1)
	c.OnUpdate(func(key, _ string, _ time.Time, _ time.Duration) { got <- key })

	var calls atomic.Int32
	_, err := c.GetOrFetch(context.Background(), "k", time.Minute, constFetch("v", &calls))
	require.NoError(t, err)
	select {
	case key := <-got:
		assert.Equal(t, "k", key)
	case <-time.After(time.Second):
		t.Fatal("update hook did not run")
	}
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	c, clock := newTestCache(t, WithMetrics[string](reg, "pages"))
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.GetOrFetch(ctx, "k", time.Minute, constFetch("v", &calls))
	require.NoError(t, err)
	_, err = c.GetOrFetch(ctx, "k", time.Minute, constFetch("v", &calls))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = c.GetOrFetch(ctx, "k", time.Minute, constFetch("v", &calls))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.requests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.requests.WithLabelValues("fresh")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.requests.WithLabelValues("stale")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.fetches.WithLabelValues("load", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.entries))
	require.Eventually(t, func() bool {
		return promtest.ToFloat64(c.metrics.fetches.WithLabelValues("refresh", "ok")) == 1.0
	}, time.Second, 5*time.Millisecond)

	_, err = New(WithMetrics[string](reg, "pages"))
	assert.Error(t, err, "duplicate registration")
}
