// Package history provides the event-history store backing qualification
// state transitions.
//
// Records are stored by mask — a deterministic hash over (event type,
// activity id) — never by free text. The engine queries batched mask lists
// and writes records fire-and-forget; a query failure is treated upstream
// as "no record found" (fail open toward re-qualification).
//
// Named queries live in the embedded queries.sql and are managed with
// dotsql; sqlx provides scanning.
package history

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/qustavo/dotsql"
)

//go:embed queries.sql
var queriesFS embed.FS

// Record is one event-history entry.
type Record struct {
	Mask       uint32    `db:"mask"`
	EventType  string    `db:"event_type"`
	ActivityID string    `db:"activity_id"`
	Timestamp  time.Time `db:"ts"`
}

// QueryResult summarizes the records behind one mask.
type QueryResult struct {
	Count           int       `db:"count"`
	OldestTimestamp time.Time `db:"oldest"`
	NewestTimestamp time.Time `db:"newest"`
}

// Found reports whether at least one record exists for the mask.
func (r QueryResult) Found() bool {
	return r.Count > 0
}

// Store persists and queries masked history records.
type Store struct {
	db  *sqlx.DB
	dot *dotsql.DotSql
}

// Open creates or opens the history database at the given path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	raw, err := queriesFS.ReadFile("queries.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read history queries: %w", err)
	}
	dot, err := dotsql.LoadFromString(string(raw))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to parse history queries: %w", err)
	}

	s := &Store{db: db, dot: dot}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, name := range []string{"create-history-table", "create-mask-index"} {
		if _, err := s.dot.Exec(s.db, name); err != nil {
			return fmt.Errorf("history schema %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write inserts one record. Callers treat this as fire-and-forget; the
// returned error exists for logging only.
func (s *Store) Write(ctx context.Context, rec Record) error {
	query, err := s.dot.Raw("insert-record")
	if err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, query,
		int64(rec.Mask), rec.EventType, rec.ActivityID, ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("history write mask %d: %w", rec.Mask, err)
	}
	return nil
}

// Query summarizes the records behind each mask, one result per input mask
// in input order. A mask with no records yields a zero-count result rather
// than being omitted, so callers can index results positionally.
func (s *Store) Query(ctx context.Context, masks []uint32) ([]QueryResult, error) {
	query, err := s.dot.Raw("query-mask")
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}

	out := make([]QueryResult, 0, len(masks))
	for _, mask := range masks {
		var row struct {
			Count  int     `db:"count"`
			Oldest *string `db:"oldest"`
			Newest *string `db:"newest"`
		}
		if err := s.db.GetContext(ctx, &row, query, int64(mask)); err != nil {
			return nil, fmt.Errorf("history query mask %d: %w", mask, err)
		}
		res := QueryResult{Count: row.Count}
		if row.Oldest != nil {
			if t, err := time.Parse(time.RFC3339Nano, *row.Oldest); err == nil {
				res.OldestTimestamp = t
			}
		}
		if row.Newest != nil {
			if t, err := time.Parse(time.RFC3339Nano, *row.Newest); err == nil {
				res.NewestTimestamp = t
			}
		}
		out = append(out, res)
	}
	return out, nil
}
