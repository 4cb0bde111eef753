// Package cache is the SQLite-backed response cache and audit trail for
// upstream fetches. Every fetched payload is recorded with its checksum,
// size, and as-of bucket, so re-runs within a bucket can be served without
// touching the upstream source.
package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Entry is one cached upstream response.
type Entry struct {
	ID        string
	Source    string
	Kind      string
	URL       string
	Bucket    string
	Checksum  string
	SizeBytes int64
	Body      []byte
	CreatedAt time.Time
}

// Store is a response cache backed by modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at dsn and configures WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS responses (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	url        TEXT NOT NULL,
	bucket     TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	body       BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_responses_key ON responses(source, kind, url, bucket);
CREATE INDEX IF NOT EXISTS idx_responses_created_at ON responses(created_at);
`

// Migrate creates the schema if missing. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "cache: migrate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put records a response, replacing any prior entry for the same
// (source, kind, url, bucket) key, and returns the stored entry.
func (s *Store) Put(ctx context.Context, source, kind, url, bucket, checksum string, body []byte) (*Entry, error) {
	e := &Entry{
		ID:        uuid.New().String(),
		Source:    source,
		Kind:      kind,
		URL:       url,
		Bucket:    bucket,
		Checksum:  checksum,
		SizeBytes: int64(len(body)),
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (id, source, kind, url, bucket, checksum, size_bytes, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source, kind, url, bucket) DO UPDATE SET
		   id = excluded.id,
		   checksum = excluded.checksum,
		   size_bytes = excluded.size_bytes,
		   body = excluded.body,
		   created_at = excluded.created_at`,
		e.ID, e.Source, e.Kind, e.URL, e.Bucket, e.Checksum, e.SizeBytes, e.Body, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: put %s/%s %s", source, kind, url)
	}
	return e, nil
}

// Get returns the cached entry for (source, kind, url, bucket), or nil when
// absent.
func (s *Store) Get(ctx context.Context, source, kind, url, bucket string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, kind, url, bucket, checksum, size_bytes, body, created_at
		 FROM responses WHERE source = ? AND kind = ? AND url = ? AND bucket = ?`,
		source, kind, url, bucket,
	).Scan(&e.ID, &e.Source, &e.Kind, &e.URL, &e.Bucket, &e.Checksum, &e.SizeBytes, &e.Body, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s/%s %s", source, kind, url)
	}
	return &e, nil
}

// Fresh reports whether the entry is usable under the given TTL. A zero TTL
// never expires.
func (e *Entry) Fresh(ttl time.Duration, now time.Time) bool {
	if e == nil {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.CreatedAt) < ttl
}
