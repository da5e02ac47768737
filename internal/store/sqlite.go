// Package store persists geocode results and fetch-run history in SQLite,
// so repeated fetch runs over the same addresses skip the network.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding the geocode cache and run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and configures WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash      TEXT PRIMARY KEY,
	lat               REAL NOT NULL,
	lng               REAL NOT NULL,
	formatted_address TEXT NOT NULL DEFAULT '',
	matched           INTEGER NOT NULL DEFAULT 0,
	cached_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fetch_runs (
	id              TEXT PRIMARY KEY,
	source_path     TEXT NOT NULL,
	rows            INTEGER NOT NULL,
	resolved        INTEGER NOT NULL,
	cache_hits      INTEGER NOT NULL,
	quota_exhausted INTEGER NOT NULL DEFAULT 0,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return eris.Wrap(s.db.Close(), "store: close")
}

// CachedResult is a geocode result read from or written to the cache.
// Non-matches are cached too, so known-bad addresses skip the network.
type CachedResult struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
	Matched          bool
}

// addressKey returns SHA-256 hex of the lowercased, trimmed address.
func addressKey(address string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(address))))
	return fmt.Sprintf("%x", h)
}

// LookupAddress returns the cached result for an address, or ok=false on a miss.
func (s *Store) LookupAddress(ctx context.Context, address string) (CachedResult, bool, error) {
	var r CachedResult
	var matched int
	err := s.db.QueryRowContext(ctx,
		"SELECT lat, lng, formatted_address, matched FROM geocode_cache WHERE address_hash = ?",
		addressKey(address),
	).Scan(&r.Lat, &r.Lng, &r.FormattedAddress, &matched)
	if err == sql.ErrNoRows {
		return CachedResult{}, false, nil
	}
	if err != nil {
		return CachedResult{}, false, eris.Wrap(err, "store: lookup address")
	}
	r.Matched = matched != 0
	return r, true, nil
}

// StoreAddress upserts a geocode result for an address.
func (s *Store) StoreAddress(ctx context.Context, address string, r CachedResult) error {
	matched := 0
	if r.Matched {
		matched = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, lat, lng, formatted_address, matched, cached_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (address_hash) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			formatted_address = excluded.formatted_address,
			matched = excluded.matched,
			cached_at = datetime('now')`,
		addressKey(address), r.Lat, r.Lng, r.FormattedAddress, matched,
	)
	return eris.Wrap(err, "store: store address")
}

// RunSummary describes one completed fetch run.
type RunSummary struct {
	SourcePath     string
	Rows           int
	Resolved       int
	CacheHits      int
	QuotaExhausted bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RecordRun inserts a fetch-run record and returns its generated ID.
func (s *Store) RecordRun(ctx context.Context, run RunSummary) (string, error) {
	id := uuid.NewString()
	quota := 0
	if run.QuotaExhausted {
		quota = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_runs (id, source_path, rows, resolved, cache_hits, quota_exhausted, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.SourcePath, run.Rows, run.Resolved, run.CacheHits, quota, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "store: record run")
	}
	return id, nil
}
