package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore persists bodies in a SQLite database so the fallback copy
// survives restarts
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	counters
}

// OpenSQLiteStore opens (creating if needed) the database at path.
// ttl <= 0 keeps entries forever.
func OpenSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite cache: empty path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a body. Entries older than the TTL are treated as missing.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	var updated int64
	err := s.db.QueryRowContext(ctx, "SELECT body, updated_at FROM documents WHERE key = ?", key).Scan(&body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		s.miss()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	if s.ttl > 0 && s.now().Sub(time.Unix(0, updated)) > s.ttl {
		s.miss()
		return nil, false, nil
	}

	s.hit()
	return body, true, nil
}

// Put inserts or replaces a body
func (s *SQLiteStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key, body, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	s.write()
	return nil
}

// Stats returns cache statistics
func (s *SQLiteStore) Stats() Stats {
	return s.snapshot()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
