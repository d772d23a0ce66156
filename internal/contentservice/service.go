// Package contentservice turns upstream entry queries into resolved,
// render-ready records and serves them through the shared cache.
package contentservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/contentgraph/internal/cache"
	"github.com/starford/contentgraph/internal/fetcher"
	"github.com/starford/contentgraph/internal/linkindex"
	"github.com/starford/contentgraph/internal/metrics"
	"github.com/starford/contentgraph/internal/models"
	"github.com/starford/contentgraph/internal/parser"
	"github.com/starford/contentgraph/internal/ranker"
	"github.com/starford/contentgraph/internal/resolver"
	"github.com/starford/contentgraph/internal/snapshot"
	"github.com/starford/contentgraph/internal/sse"
	"github.com/starford/contentgraph/internal/urlnorm"
)

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// persistTimeout bounds a snapshot write after a successful fetch.
const persistTimeout = 5 * time.Second

// Fetcher issues upstream entry queries.
type Fetcher interface {
	FetchAll(ctx context.Context, q fetcher.Query) ([]*parser.Response, error)
}

// FallbackSource provides static documents by cache key.
type FallbackSource interface {
	Get(key string) (*models.Collection, bool)
}

// Notifier is told about cache invalidations.
type Notifier interface {
	PublishChange(kind, key string, at time.Time)
}

// Cache is the shared cache of resolved collections.
type Cache = cache.Cache[*models.Collection]

// Service coordinates fetching, resolution, caching and ranking.
type Service struct {
	fetcher   Fetcher
	cache     *Cache
	resolver  *resolver.Resolver
	ranker    *ranker.Ranker
	snapshots snapshot.Repository
	fallback  FallbackSource
	notifier  Notifier
	logger    *slog.Logger
	ttl       time.Duration

	metricsReg *metrics.Registry
	unresolved *prometheus.CounterVec
	// resolverOpts are applied when the resolver is built in New.
	resolverOpts []resolver.Option
}

// New creates a Service. f and c are required.
func New(f Fetcher, c *Cache, opts ...Option) (*Service, error) {
	if f == nil || c == nil {
		return nil, errors.New("contentservice: fetcher and cache are required")
	}
	s := &Service{
		fetcher: f,
		cache:   c,
		ranker:  ranker.New(),
		logger:  slog.Default(),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metricsReg != nil {
		s.unresolved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "resolver",
			Name:      "unresolved_links_total",
			Help:      "Links replaced by an unresolved sentinel, by reason",
		}, []string{"reason"})
		if err := s.metricsReg.Register("resolver_unresolved", s.unresolved); err != nil {
			return nil, fmt.Errorf("contentservice: metrics: %w", err)
		}
	}

	ropts := append([]resolver.Option{
		resolver.WithLogger(s.logger),
		resolver.WithUnresolvedHook(s.countUnresolved),
	}, s.resolverOpts...)
	s.resolver = resolver.New(ropts...)
	if s.snapshots != nil {
		c.OnUpdate(s.persist)
	}
	return s, nil
}

func (s *Service) countUnresolved(u models.Unresolved) {
	if s.unresolved != nil {
		s.unresolved.WithLabelValues(string(u.Reason)).Inc()
	}
}

// TTL returns the freshness window applied to every key.
func (s *Service) TTL() time.Duration { return s.ttl }

// GetPageCached returns the first entry of content type pageType, cached
// under cacheKey. It returns nil when no live or cached content exists;
// callers then serve their own static fallback.
func (s *Service) GetPageCached(ctx context.Context, pageType, cacheKey string) *models.Record {
	coll, err := s.cache.GetOrFetch(ctx, cacheKey, s.ttl,
		s.load(fetcher.Query{ContentType: pageType, Limit: 1}))
	if err != nil {
		s.logger.Warn("contentservice: page unavailable",
			slog.String("page_type", pageType),
			slog.String("key", cacheKey),
			slog.String("error", err.Error()))
		return nil
	}
	return coll.First()
}

// GetEntriesCached returns the resolved entries of contentType matching
// the upstream query string, cached under cacheKey. An error is returned
// only when the key had no cached value and the upstream load failed.
func (s *Service) GetEntriesCached(ctx context.Context, contentType, cacheKey, queryString string) ([]*models.Record, error) {
	q, err := fetcher.ParseQuery(queryString)
	if err != nil {
		return nil, fmt.Errorf("contentservice: query %q: %w", queryString, err)
	}
	if contentType != "" {
		q.ContentType = contentType
	}
	coll, err := s.cache.GetOrFetch(ctx, cacheKey, s.ttl, s.load(q))
	if err != nil {
		return nil, err
	}
	return coll.Items, nil
}

// Related loads the entries cached under cacheKey and ranks them against
// tags, dropping excludeID.
func (s *Service) Related(ctx context.Context, contentType, cacheKey string, tags []string, excludeID string, limit int) ([]ranker.Candidate, error) {
	items, err := s.GetEntriesCached(ctx, contentType, cacheKey, "")
	if err != nil {
		return nil, err
	}
	return s.ranker.Score(items, tags, excludeID, limit), nil
}

// Rank orders already resolved candidates by tag overlap.
func (s *Service) Rank(candidates []*models.Record, tags []string, excludeID string, limit int) []*models.Record {
	return s.ranker.Rank(candidates, tags, excludeID, limit)
}

// EnsureProtocol makes a protocol-relative URL absolute.
func (s *Service) EnsureProtocol(u string) string {
	return urlnorm.EnsureProtocol(u)
}

// Fallback returns the static document for key, if one is configured.
func (s *Service) Fallback(key string) (*models.Collection, bool) {
	if s.fallback == nil {
		return nil, false
	}
	return s.fallback.Get(key)
}

// Stats reports cache activity.
func (s *Service) Stats() cache.Stats {
	return s.cache.Stats()
}

// Keys lists the cached keys.
func (s *Service) Keys() []string {
	return s.cache.Keys()
}

// Invalidate drops key from the cache and the snapshot store. The next
// read loads it again from upstream.
func (s *Service) Invalidate(ctx context.Context, key string) bool {
	ok := s.cache.Invalidate(key)
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, key); err != nil {
			s.logger.Warn("contentservice: snapshot delete failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
	if ok && s.notifier != nil {
		s.notifier.PublishChange(sse.ChangeInvalidated, key, time.Time{})
	}
	return ok
}

// Warm primes the cache from the snapshot store. Restored entries keep
// their original fetch time, so expired ones are served stale and
// refreshed on first read.
func (s *Service) Warm(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	snaps, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("contentservice: warm: %w", err)
	}
	n := 0
	for _, snap := range snaps {
		if s.cache.Prime(snap.Key, snap.Collection, snap.FetchedAt, s.ttl) {
			n++
		}
	}
	s.logger.Info("contentservice: cache warmed from snapshots", slog.Int("entries", n))
	return n, nil
}

// load returns the fetch function for one query: fetch upstream, resolve
// each page against its own includes, normalize URLs.
func (s *Service) load(q fetcher.Query) cache.FetchFunc[*models.Collection] {
	return func(ctx context.Context) (*models.Collection, error) {
		pages, err := s.fetcher.FetchAll(ctx, q)
		if err != nil {
			return nil, err
		}
		return s.resolvePages(pages), nil
	}
}

func (s *Service) resolvePages(pages []*parser.Response) *models.Collection {
	coll := &models.Collection{Items: []*models.Record{}}
	for i, page := range pages {
		if page == nil {
			continue
		}
		if i == 0 {
			coll.Total = page.Total
		}
		idx := linkindex.Build(page.Includes.Entry, page.Includes.Asset)
		for _, item := range page.Items {
			coll.Items = append(coll.Items, urlnorm.Record(s.resolver.ResolveRecord(item, idx)))
		}
	}
	return coll
}

// persist is the cache update hook. The cache skips it for invalidated
// keys, so a load racing Invalidate cannot bring a deleted snapshot back.
func (s *Service) persist(key string, coll *models.Collection, fetchedAt time.Time, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := s.snapshots.Save(ctx, key, coll, fetchedAt, ttl); err != nil {
		s.logger.Warn("contentservice: snapshot save failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
