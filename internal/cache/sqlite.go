// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"fhirq/cli/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
	fingerprint TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	records     INTEGER NOT NULL,
	payload     BLOB NOT NULL
)`

// SQLiteStore keeps result sets in a single SQLite database.
// WAL mode lets readers proceed while a write is in progress; writes go through
// one mutex so concurrent Puts never contend on the database lock.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.Cache, "open cache database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.Cache, "connect cache database", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.Cache, "create cache schema", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored records for fp.
func (s *SQLiteStore) Get(ctx context.Context, fp string) ([]json.RawMessage, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM results WHERE fingerprint = ?`, fp).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.Cache, "read entry", err)
	}
	var recs []json.RawMessage
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, false, errors.Wrap(errors.Cache, "decode entry", err)
	}
	if recs == nil {
		recs = []json.RawMessage{}
	}
	return recs, true, nil
}

// Put stores records under fp, replacing any previous entry.
func (s *SQLiteStore) Put(ctx context.Context, fp string, records []json.RawMessage) error {
	if records == nil {
		records = []json.RawMessage{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(errors.Cache, "encode entry", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (fingerprint, created_at, records, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			created_at = excluded.created_at,
			records = excluded.records,
			payload = excluded.payload`,
		fp, s.now().UTC().UnixMilli(), len(records), payload)
	if err != nil {
		return errors.Wrap(errors.Cache, "write entry", err)
	}
	return nil
}

// List returns stored entries, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, created_at, records, length(payload) FROM results ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(errors.Cache, "list entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Fingerprint, &created, &e.Records, &e.Size); err != nil {
			return nil, errors.Wrap(errors.Cache, "scan entry", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.Cache, "list entries", err)
	}
	return out, nil
}

// Clear removes every entry and returns how many were removed.
func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM results`)
	if err != nil {
		return 0, errors.Wrap(errors.Cache, "clear entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear entries: %w", err)
	}
	return int(n), nil
}
