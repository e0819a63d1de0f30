package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createFactsTable = `CREATE TABLE IF NOT EXISTS facts (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	instance_id   TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	connection_id TEXT NOT NULL DEFAULT '',
	at            INTEGER NOT NULL,
	detail        TEXT NOT NULL DEFAULT '{}'
)`

// SQLiteSink stores facts in a single sqlite table.
type SQLiteSink struct {
	db *sql.DB
}

func OpenSQLite(path string, busyTimeout time.Duration) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}

	stmts := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		createFactsTable,
		"CREATE INDEX IF NOT EXISTS facts_instance ON facts (instance_id)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("preparing sqlite: %w", err)
		}
	}

	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, f Fact) error {
	detail, err := json.Marshal(f.Detail)
	if err != nil {
		return fmt.Errorf("encoding detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (id, kind, instance_id, user_id, connection_id, at, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, string(f.Kind), f.InstanceID, f.UserID, f.ConnectionID, f.At.UnixMilli(), string(detail))
	if err != nil {
		return fmt.Errorf("inserting fact: %w", err)
	}
	return nil
}

// Recent returns up to limit facts, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, instance_id, user_id, connection_id, at, detail FROM facts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	out := make([]Fact, 0)
	for rows.Next() {
		var (
			f      Fact
			kind   string
			at     int64
			detail string
		)
		if err := rows.Scan(&f.ID, &kind, &f.InstanceID, &f.UserID, &f.ConnectionID, &at, &detail); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		f.Kind = Kind(kind)
		f.At = time.UnixMilli(at)
		if err := json.Unmarshal([]byte(detail), &f.Detail); err != nil {
			return nil, fmt.Errorf("decoding detail of %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
