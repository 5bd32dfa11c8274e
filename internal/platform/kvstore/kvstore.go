// Package kvstore is the durable per-user key/value store that backs the
// local scan history and other client-side collections. Values are opaque
// JSON blobs; each Set replaces the whole value for a key.
package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	user_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, key)
)`

// Store wraps a SQLite database holding one kv table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open kv store %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value for key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, userID, key string) (value []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, userID, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv(user_id, key, value, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`, userID, key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, userID, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE user_id = ? AND key = ?`, userID, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys stored for userID in lexical order.
func (s *Store) Keys(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE user_id = ? ORDER BY key`, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// For returns a view of the store scoped to one user.
func (s *Store) For(userID string) *Bucket {
	return &Bucket{store: s, userID: userID}
}

// Bucket is a user-scoped view of a Store.
type Bucket struct {
	store  *Store
	userID string
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.store.Get(ctx, b.userID, key)
}

func (b *Bucket) Set(ctx context.Context, key string, value []byte) error {
	return b.store.Set(ctx, b.userID, key, value)
}

func (b *Bucket) Remove(ctx context.Context, key string) error {
	return b.store.Remove(ctx, b.userID, key)
}
