package fetcher

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	headerRetryAfter = "Retry-After"
	// defaultRetryAfter applies when a 429 carries no usable Retry-After.
	defaultRetryAfter = time.Second
)

// limiter combines proactive token-bucket throttling with the reactive
// backoff the upstream requests through 429 responses.
type limiter struct {
	bucket *rate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time
}

func newLimiter(perSecond float64, burst int) *limiter {
	l := rate.Inf
	if perSecond > 0 {
		l = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &limiter{bucket: rate.NewLimiter(l, burst)}
}

// Wait blocks until a request may be sent or ctx is done.
func (l *limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	until := l.blockedUntil
	l.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.bucket.Wait(ctx)
}

// backoff records a 429 response and returns how long callers will wait.
func (l *limiter) backoff(resp *http.Response) time.Duration {
	d := retryAfter(resp.Header.Get(headerRetryAfter), time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()
	if until := time.Now().Add(d); until.After(l.blockedUntil) {
		l.blockedUntil = until
	}
	return d
}

// retryAfter parses a Retry-After value in seconds or HTTP-date form.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
