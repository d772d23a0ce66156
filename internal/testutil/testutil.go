// Package testutil provides shared test helpers: temporary snapshot
// databases, fallback directories and a scripted upstream fetcher.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/starford/contentgraph/internal/fallback"
	"github.com/starford/contentgraph/internal/fetcher"
	"github.com/starford/contentgraph/internal/parser"
	"github.com/starford/contentgraph/internal/snapshot"
	"github.com/starford/contentgraph/internal/storage"
)

// TestDB creates a temporary snapshot database that is automatically closed.
func TestDB(t *testing.T) *snapshot.DB {
	t.Helper()
	db, err := snapshot.Open(filepath.Join(t.TempDir(), "contentgraph-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFallback creates a temporary fallback directory holding docs (cache
// key → JSON document) and returns it loaded.
func TestFallback(t *testing.T, docs map[string]string) (*storage.FS, *fallback.Store) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for key, doc := range docs {
		if err := fs.Write(key, []byte(doc)); err != nil {
			t.Fatal(err)
		}
	}
	store := fallback.New(fs, nil)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	return fs, store
}

// MustParse parses a raw upstream response or fails the test.
func MustParse(t *testing.T, raw string) *parser.Response {
	t.Helper()
	resp, err := parser.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	return resp
}

// Fetcher is a scripted upstream. Responses are keyed by content type.
type Fetcher struct {
	mu      sync.Mutex
	pages   map[string][]*parser.Response
	err     error
	queries []fetcher.Query
	calls   atomic.Int32
	// Gate, when set, blocks every call until it is closed.
	Gate chan struct{}
}

// NewFetcher creates an empty scripted fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{pages: make(map[string][]*parser.Response)}
}

// Set scripts the pages returned for contentType.
func (f *Fetcher) Set(contentType string, pages ...*parser.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[contentType] = pages
}

// Fail makes every following call return err; nil restores success.
func (f *Fetcher) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls reports how many times FetchAll ran.
func (f *Fetcher) Calls() int {
	return int(f.calls.Load())
}

// Queries returns the queries received so far.
func (f *Fetcher) Queries() []fetcher.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetcher.Query(nil), f.queries...)
}

// FetchAll implements contentservice.Fetcher.
func (f *Fetcher) FetchAll(ctx context.Context, q fetcher.Query) ([]*parser.Response, error) {
	f.calls.Add(1)
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	pages, ok := f.pages[q.ContentType]
	if !ok {
		return []*parser.Response{{}}, nil
	}
	return pages, nil
}
