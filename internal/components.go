package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/contentgraph/internal/cache"
	"github.com/starford/contentgraph/internal/contentservice"
	"github.com/starford/contentgraph/internal/fallback"
	"github.com/starford/contentgraph/internal/fetcher"
	"github.com/starford/contentgraph/internal/metrics"
	"github.com/starford/contentgraph/internal/models"
	"github.com/starford/contentgraph/internal/ranker"
	"github.com/starford/contentgraph/internal/resolver"
	"github.com/starford/contentgraph/internal/snapshot"
	"github.com/starford/contentgraph/internal/sse"
	"github.com/starford/contentgraph/internal/storage"
)

// components is the object graph shared by every command.
type components struct {
	logger    *slog.Logger
	registry  *metrics.Registry
	broker    *sse.Broker
	cache     *contentservice.Cache
	snapshots *snapshot.DB
	fallback  *fallback.Store
	service   *contentservice.Service
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func buildComponents(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *components, err error) {
	c := &components{
		logger:   logger,
		registry: metrics.NewRegistry(),
		broker:   sse.NewBroker(2 * time.Second),
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	client, err := fetcher.New(fetcher.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		Space:        cfg.Upstream.Space,
		Environment:  cfg.Upstream.Environment,
		AccessToken:  cfg.Upstream.AccessToken,
		Timeout:      cfg.Upstream.Timeout,
		IncludeDepth: cfg.Upstream.IncludeDepth,
		PageSize:     cfg.Upstream.PageSize,
		MaxPages:     cfg.Upstream.MaxPages,
		RateLimit:    cfg.Upstream.RateLimit,
		Burst:        cfg.Upstream.Burst,
		Concurrency:  cfg.Upstream.Concurrency,
	}, fetcher.WithLogger(logger), fetcher.WithMetrics(c.registry))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	c.cache, err = cache.New[*models.Collection](
		cache.WithFetchTimeout[*models.Collection](cfg.Cache.FetchTimeout),
		cache.WithLogger[*models.Collection](logger),
		cache.WithMetrics[*models.Collection](c.registry, "content"),
		cache.WithUpdateHook(func(key string, _ *models.Collection, fetchedAt time.Time, _ time.Duration) {
			c.broker.PublishRefresh(key, fetchedAt)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	opts := []contentservice.Option{
		contentservice.WithTTL(cfg.Cache.TTL),
		contentservice.WithMaxDepth(cfg.Resolver.MaxDepth),
		contentservice.WithRanker(ranker.New(
			ranker.WithDefaultLimit(cfg.Ranker.DefaultLimit),
			ranker.WithFallback(ranker.Fallback(cfg.Ranker.Fallback)),
			ranker.WithTagField(cfg.Ranker.TagField),
		)),
		contentservice.WithNotifier(c.broker),
		contentservice.WithLogger(logger),
		contentservice.WithMetrics(c.registry),
	}

	if cfg.Snapshot.Enabled {
		c.snapshots, err = snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			return nil, fmt.Errorf("init snapshots: %w", err)
		}
		opts = append(opts, contentservice.WithSnapshots(c.snapshots))
	}

	c.fallback, err = openFallback(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, contentservice.WithFallback(c.fallback))

	c.service, err = contentservice.New(client, c.cache, opts...)
	if err != nil {
		return nil, fmt.Errorf("init content service: %w", err)
	}

	if _, err := c.service.Warm(ctx); err != nil {
		logger.Warn("cache warm-up failed", slog.String("error", err.Error()))
	}
	return c, nil
}

func openFallback(cfg *Config, logger *slog.Logger) (*fallback.Store, error) {
	dir := cfg.Fallback.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("init fallback storage: %w", err)
	}
	store := fallback.New(fs, logger, resolver.WithMaxDepth(cfg.Resolver.MaxDepth))
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load fallback: %w", err)
	}
	return store, nil
}

// Close stops background refreshes before the stores they write to.
func (c *components) Close() {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.snapshots != nil {
		errs = append(errs, c.snapshots.Close())
	}
	c.broker.Close()
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("shutdown", slog.String("error", err.Error()))
	}
}
