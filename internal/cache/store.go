// Package cache is a small SQLite-backed key/value store whose entries
// expire by age at read time.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a TTL cache persisted in a SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
	mu  sync.Mutex
}

// Open opens (creating if needed) the cache database at path. Use
// ":memory:" for a throwaway cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	// One connection, so ":memory:" refers to a single database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key        TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		data       BLOB NOT NULL
	)`)
	return err
}

// Get returns the value stored under key if it is younger than maxAge.
// A maxAge <= 0 accepts entries of any age.
func (s *Store) Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT data FROM cache WHERE key = ?`
	args := []any{key}
	if maxAge > 0 {
		query += ` AND created_at >= ?`
		args = append(args, s.now().Add(-maxAge).UnixMilli())
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return data, true, nil
}

// Set stores data under key, replacing any previous entry and resetting
// its age.
func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, created_at, data) VALUES (?, ?, ?)`,
		key, s.now().UnixMilli(), data)
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Purge deletes entries older than maxAge and returns how many were
// removed.
func (s *Store) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE created_at < ?`, s.now().Add(-maxAge).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
