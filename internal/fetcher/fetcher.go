// Package fetcher talks to the upstream headless content delivery API.
// It issues paginated entry queries, throttles itself, and hands the raw
// per-page responses to the parser. It never retries a request: a failed
// page fails the whole call and the cache decides when to try again.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/contentgraph/internal/apperr"
	"github.com/starford/contentgraph/internal/metrics"
	"github.com/starford/contentgraph/internal/parser"
)

// Defaults used when Config leaves a value unset.
const (
	DefaultPageSize     = 100
	DefaultMaxPages     = 10
	DefaultIncludeDepth = 2
	DefaultConcurrency  = 4
	DefaultTimeout      = 10 * time.Second

	maxErrorBody = 512
)

// Config describes the upstream space and the client's limits.
type Config struct {
	BaseURL      string
	Space        string
	Environment  string
	AccessToken  string
	Timeout      time.Duration
	IncludeDepth int
	PageSize     int
	MaxPages     int
	// RateLimit is requests per second; zero disables throttling.
	RateLimit   float64
	Burst       int
	Concurrency int
}

func (c *Config) withDefaults() {
	if c.Environment == "" {
		c.Environment = "master"
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.IncludeDepth <= 0 {
		c.IncludeDepth = DefaultIncludeDepth
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is set for 429 responses.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("upstream status %d (retry after %s)", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps the status onto the shared sentinels.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return apperr.ErrRateLimited
	}
	return apperr.ErrUpstream
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics exports request counters and latency to reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) {
		c.metricsReg = reg
	}
}

// Client fetches entries from one upstream space and environment.
type Client struct {
	cfg        Config
	endpoint   string
	http       *http.Client
	limiter    *limiter
	logger     *slog.Logger
	metricsReg *metrics.Registry
	metrics    *fetchMetrics
}

// New validates cfg and creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.withDefaults()
	if cfg.BaseURL == "" || cfg.Space == "" {
		return nil, errors.New("fetcher: base url and space are required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("fetcher: base url %q must be absolute", cfg.BaseURL)
	}

	c := &Client{
		cfg: cfg,
		endpoint: base.String() + "/spaces/" + url.PathEscape(cfg.Space) +
			"/environments/" + url.PathEscape(cfg.Environment) + "/entries",
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: newLimiter(cfg.RateLimit, cfg.Burst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metricsReg != nil {
		m, err := newFetchMetrics(c.metricsReg)
		if err != nil {
			return nil, fmt.Errorf("fetcher: metrics: %w", err)
		}
		c.metrics = m
	}
	return c, nil
}

// IncludeDepth reports the link include depth requested upstream.
func (c *Client) IncludeDepth() int { return c.cfg.IncludeDepth }

// Fetch requests a single page.
func (c *Client) Fetch(ctx context.Context, q Query) (*parser.Response, error) {
	if q.Include <= 0 {
		q.Include = c.cfg.IncludeDepth
	}
	return c.get(ctx, q)
}

// FetchAll returns every page for q. When q.Limit is set only one page is
// requested. Otherwise pages of PageSize are fetched until the reported
// total is covered or MaxPages is reached. Each page keeps its own
// includes; they are never merged.
func (c *Client) FetchAll(ctx context.Context, q Query) ([]*parser.Response, error) {
	if q.Limit > 0 {
		resp, err := c.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		return []*parser.Response{resp}, nil
	}

	first := q
	first.Limit = c.cfg.PageSize
	head, err := c.Fetch(ctx, first)
	if err != nil {
		return nil, err
	}

	remaining := head.Total - q.Skip - len(head.Items)
	if remaining <= 0 || len(head.Items) == 0 {
		return []*parser.Response{head}, nil
	}
	pages := (remaining + c.cfg.PageSize - 1) / c.cfg.PageSize
	if pages > c.cfg.MaxPages-1 {
		c.logger.Warn("fetcher: page budget exhausted, result truncated",
			slog.String("content_type", q.ContentType),
			slog.Int("total", head.Total),
			slog.Int("max_pages", c.cfg.MaxPages))
		pages = c.cfg.MaxPages - 1
	}

	out := make([]*parser.Response, pages+1)
	out[0] = head

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i := 1; i <= pages; i++ {
		page := q
		page.Limit = c.cfg.PageSize
		page.Skip = q.Skip + len(head.Items) + (i-1)*c.cfg.PageSize
		g.Go(func() error {
			resp, err := c.Fetch(gctx, page)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, q Query) (*parser.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetcher: wait for rate limiter: %w", err)
	}

	reqURL := c.endpoint + "?" + q.Values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe("error", time.Since(start))
		return nil, fmt.Errorf("fetcher: %w: %w", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()
	c.metrics.observe(statusClass(resp.StatusCode), time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := c.limiter.backoff(resp)
		c.logger.Warn("fetcher: upstream rate limited",
			slog.String("content_type", q.ContentType),
			slog.Duration("retry_after", wait))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, RetryAfter: wait}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	parsed, err := parser.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %s: %w", q.ContentType, err)
	}
	c.logger.Debug("fetcher: page fetched",
		slog.String("content_type", q.ContentType),
		slog.Int("items", len(parsed.Items)),
		slog.Int("total", parsed.Total),
		slog.Duration("took", time.Since(start)))
	return parsed, nil
}

func statusClass(code int) string {
	if code == http.StatusTooManyRequests {
		return "429"
	}
	return strconv.Itoa(code/100) + "xx"
}
