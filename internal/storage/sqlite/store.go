package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/louisbranch/daylists/internal/changelog"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	list_key TEXT NOT NULL,
	ts TEXT NOT NULL,
	writer TEXT NOT NULL DEFAULT '',
	op TEXT NOT NULL,
	entity_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (list_key, ts, writer)
);
`

// Store is a SQLite-backed event store.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (or creates) the store at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, clock: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append durably appends one event. The store assigns the authoritative
// timestamp when the incoming event carries none; a provisional client
// timestamp is kept as-is so the merge identity stays stable across the
// optimistic and durable copies. A duplicate identity is absorbed.
func (s *Store) Append(ctx context.Context, list changelog.ListID, evt changelog.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := list.Validate(); err != nil {
		return err
	}
	if err := evt.Validate(); err != nil {
		return err
	}

	if evt.TS == "" {
		evt.TS = changelog.Timestamp(s.clock())
	}

	payload, err := json.Marshal(changelog.Encode(evt))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (list_key, ts, writer, op, entity_id, payload) VALUES (?, ?, ?, ?, ?, ?)",
		list.Key(), evt.TS, evt.Writer, string(evt.Op), evt.ID, string(payload),
	)
	if err != nil {
		if isConstraintError(err) {
			// Same identity already stored; the retry converges.
			return nil
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Fetch returns the full event collection for a list ordered by timestamp
// ascending.
func (s *Store) Fetch(ctx context.Context, list changelog.ListID) ([]changelog.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM events WHERE list_key = ? ORDER BY ts ASC, writer ASC",
		list.Key(),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []changelog.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		evt, err := changelog.Decode(fields)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
