// Package snapshot persists resolved cache values in SQLite so a restarted
// process can serve stale content before its first upstream round trip.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/contentgraph/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    BLOB    NOT NULL,
	checksum   TEXT    NOT NULL DEFAULT '',
	fetched_at INTEGER NOT NULL,
	ttl_ms     INTEGER NOT NULL DEFAULT 0
);
`

// Snapshot is one persisted cache value.
type Snapshot struct {
	Key        string
	Collection *models.Collection
	Checksum   string
	FetchedAt  time.Time
	TTL        time.Duration
}

// Repository is the persistence surface the content service depends on.
type Repository interface {
	Save(ctx context.Context, key string, coll *models.Collection, fetchedAt time.Time, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Snapshot, error)
	LoadAll(ctx context.Context) ([]Snapshot, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

var _ Repository = (*DB)(nil)

// DB wraps a sql.DB holding the snapshots table.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
