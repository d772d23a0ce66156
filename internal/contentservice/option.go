package contentservice

import (
	"log/slog"
	"time"

	"github.com/starford/contentgraph/internal/metrics"
	"github.com/starford/contentgraph/internal/ranker"
	"github.com/starford/contentgraph/internal/resolver"
	"github.com/starford/contentgraph/internal/snapshot"
)

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the freshness window for every key.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxDepth sets the link resolution depth cap.
func WithMaxDepth(n int) Option {
	return func(s *Service) {
		s.resolverOpts = append(s.resolverOpts, resolver.WithMaxDepth(n))
	}
}

// WithRanker replaces the default ranker.
func WithRanker(r *ranker.Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithSnapshots persists every successful load to repo.
func WithSnapshots(repo snapshot.Repository) Option {
	return func(s *Service) {
		s.snapshots = repo
	}
}

// WithFallback sets the static document source.
func WithFallback(f FallbackSource) Option {
	return func(s *Service) {
		s.fallback = f
	}
}

// WithNotifier sets the receiver of invalidation events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics exports resolver counters to reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Service) {
		s.metricsReg = reg
	}
}
