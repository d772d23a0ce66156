// Package fallback serves static documents when live content cannot be
// produced. Documents live in a storage.Provider, one per cache key, and
// are held in memory after loading.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/contentgraph/internal/checksum"
	"github.com/starford/contentgraph/internal/linkindex"
	"github.com/starford/contentgraph/internal/models"
	"github.com/starford/contentgraph/internal/parser"
	"github.com/starford/contentgraph/internal/resolver"
	"github.com/starford/contentgraph/internal/snapshot"
	"github.com/starford/contentgraph/internal/storage"
	"github.com/starford/contentgraph/internal/urlnorm"
)

// Store is an in-memory view of the fallback directory.
type Store struct {
	provider storage.Provider
	logger   *slog.Logger
	resolver *resolver.Resolver

	mu   sync.RWMutex
	docs map[string]*models.Collection
	sums map[string]string
}

// New creates an empty store over provider. Call Load to populate it.
// Links in documents are resolved against their includes with a resolver
// built from opts, the same way live content is.
func New(provider storage.Provider, logger *slog.Logger, opts ...resolver.Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]resolver.Option{resolver.WithLogger(logger)}, opts...)
	return &Store{
		provider: provider,
		logger:   logger,
		resolver: resolver.New(opts...),
		docs:     make(map[string]*models.Collection),
		sums:     make(map[string]string),
	}
}

// Load reads every document, replacing the in-memory set. Documents that
// fail to parse are logged and skipped.
func (s *Store) Load() error {
	metas, err := s.provider.List()
	if err != nil {
		return err
	}

	docs := make(map[string]*models.Collection, len(metas))
	sums := make(map[string]string, len(metas))
	for _, m := range metas {
		coll, sum, err := s.read(m.Key)
		if err != nil {
			s.logger.Warn("fallback: skipping document",
				slog.String("key", m.Key),
				slog.String("error", err.Error()))
			continue
		}
		docs[m.Key] = coll
		sums[m.Key] = sum
	}

	s.mu.Lock()
	s.docs = docs
	s.sums = sums
	s.mu.Unlock()

	s.logger.Info("fallback: documents loaded", slog.Int("count", len(docs)))
	return nil
}

// Reload re-reads a single key. It reports false when the document is
// unchanged since it was last read.
func (s *Store) Reload(key string) (bool, error) {
	coll, sum, err := s.read(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sums[key] == sum {
		return false, nil
	}
	s.docs[key] = coll
	s.sums[key] = sum
	return true, nil
}

// Forget drops key from memory.
func (s *Store) Forget(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[key]
	delete(s.docs, key)
	delete(s.sums, key)
	return ok
}

func (s *Store) read(key string) (*models.Collection, string, error) {
	data, err := s.provider.Read(key)
	if err != nil {
		return nil, "", err
	}
	doc, err := parser.ParseDocument(data)
	if err != nil {
		return nil, "", fmt.Errorf("fallback %s: %w", key, err)
	}
	idx := linkindex.Build(doc.Includes.Entry, doc.Includes.Asset)
	coll := &models.Collection{Items: make([]*models.Record, 0, len(doc.Items)), Total: doc.Total}
	for _, rec := range doc.Items {
		coll.Items = append(coll.Items, urlnorm.Record(s.resolver.ResolveRecord(rec, idx)))
	}
	return coll, checksum.Sum(data), nil
}

// checksums returns a copy of the digests of the loaded documents.
func (s *Store) checksums() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.sums))
	for k, v := range s.sums {
		out[k] = v
	}
	return out
}

// Get returns the document for key.
func (s *Store) Get(key string) (*models.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.docs[key]
	return c, ok
}

// Page returns the first record of the document for key, or nil.
func (s *Store) Page(key string) *models.Record {
	c, _ := s.Get(key)
	return c.First()
}

// Keys returns the loaded keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Export writes every persisted snapshot out as a fallback document and
// returns how many documents were written.
func (s *Store) Export(ctx context.Context, repo snapshot.Repository) (int, error) {
	snaps, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("fallback: export: %w", err)
	}
	n := 0
	for _, snap := range snaps {
		data, err := json.MarshalIndent(snap.Collection, "", "  ")
		if err != nil {
			return n, fmt.Errorf("fallback: encode %s: %w", snap.Key, err)
		}
		if err := s.provider.Write(snap.Key, data); err != nil {
			return n, err
		}
		n++
		s.logger.Debug("fallback: exported", slog.String("key", snap.Key))
	}
	return n, s.Load()
}
