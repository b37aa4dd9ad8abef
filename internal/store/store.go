// Package store provides the durable on-disk cache for propositions.
//
// The cache is a SQLite-backed key-value store with (namespace, key)
// addressing and per-entry metadata, plus a typed PropositionCache on top
// that persists surface->proposition maps so the extension can re-render
// messaging after process restart without a network round trip.
//
// Deserialization failures of any kind (truncated blob, schema mismatch,
// empty map) are treated as "nothing cached", never propagated as fatal.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Entry is one cached value with its metadata.
type Entry struct {
	Data     []byte
	Metadata map[string]string
}

// Store is the SQLite-backed cache. Uses WAL mode for concurrent read
// access while the serialized worker writes.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under the serialized-worker write pattern.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the entry for (namespace, key), or (nil, nil) when absent.
// A row whose metadata blob fails to decode is returned with empty
// metadata rather than failing the read.
func (s *Store) Get(ctx context.Context, namespace, key string) (*Entry, error) {
	var data []byte
	var metaRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, metadata FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&data, &metaRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s/%s: %w", namespace, key, err)
	}

	entry := &Entry{Data: data, Metadata: map[string]string{}}
	if metaRaw != "" {
		// Malformed metadata is ignored; the data blob is what matters.
		_ = json.Unmarshal([]byte(metaRaw), &entry.Metadata)
	}
	return entry, nil
}

// Set upserts (namespace, key) -> data with optional metadata.
func (s *Store) Set(ctx context.Context, namespace, key string, data []byte, metadata map[string]string) error {
	metaRaw, err := json.Marshal(metadataOrEmpty(metadata))
	if err != nil {
		return fmt.Errorf("cache set %s/%s: marshal metadata: %w", namespace, key, err)
	}
	_, err = s.db.ExecContext(ctx, upsertEntrySQL,
		namespace, key, data, string(metaRaw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Remove deletes (namespace, key). Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("cache remove %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Keys lists all keys under a namespace in insertion-stable order.
func (s *Store) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE namespace = ? ORDER BY rowid`, namespace)
	if err != nil {
		return nil, fmt.Errorf("cache keys %s: %w", namespace, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("cache keys %s: %w", namespace, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

const upsertEntrySQL = `
	INSERT INTO cache_entries (namespace, key, data, metadata, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (namespace, key) DO UPDATE SET
		data = excluded.data,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at
`

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
