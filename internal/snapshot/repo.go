package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/contentgraph/internal/apperr"
	"github.com/starford/contentgraph/internal/checksum"
	"github.com/starford/contentgraph/internal/models"
)

// Save stores coll under key. When the payload checksum matches the stored
// row only fetched_at and ttl are updated and false is returned.
func (db *DB) Save(ctx context.Context, key string, coll *models.Collection, fetchedAt time.Time, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(coll)
	if err != nil {
		return false, fmt.Errorf("snapshot: encode %s: %w", key, err)
	}
	sum := checksum.Sum(payload)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var current string
	err = tx.QueryRowContext(ctx, `SELECT checksum FROM snapshots WHERE key = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("snapshot: read checksum: %w", err)
	}

	changed := current != sum
	if changed {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshots (key, payload, checksum, fetched_at, ttl_ms)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				payload    = excluded.payload,
				checksum   = excluded.checksum,
				fetched_at = excluded.fetched_at,
				ttl_ms     = excluded.ttl_ms
		`, key, payload, sum, fetchedAt.UnixMilli(), ttl.Milliseconds())
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE snapshots SET fetched_at = ?, ttl_ms = ? WHERE key = ?`,
			fetchedAt.UnixMilli(), ttl.Milliseconds(), key)
	}
	if err != nil {
		return false, fmt.Errorf("snapshot: save %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("snapshot: commit: %w", err)
	}
	return changed, nil
}

// Get returns the snapshot for key or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, key string) (*Snapshot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT key, payload, checksum, fetched_at, ttl_ms FROM snapshots WHERE key = ?`, key)
	s, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadAll returns every snapshot ordered by key. Rows whose payload no
// longer decodes are skipped.
func (db *DB) LoadAll(ctx context.Context) ([]Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, payload, checksum, fetched_at, ttl_ms FROM snapshots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: query: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scan(rows)
		if errors.Is(err, apperr.ErrShape) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", key, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*Snapshot, error) {
	var (
		s         Snapshot
		payload   []byte
		fetchedAt int64
		ttlMS     int64
	)
	if err := row.Scan(&s.Key, &payload, &s.Checksum, &fetchedAt, &ttlMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("snapshot: scan: %w", err)
	}
	var coll models.Collection
	if err := json.Unmarshal(payload, &coll); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", s.Key, apperr.ErrShape, err)
	}
	s.Collection = &coll
	s.FetchedAt = time.UnixMilli(fetchedAt)
	s.TTL = time.Duration(ttlMS) * time.Millisecond
	return &s, nil
}
