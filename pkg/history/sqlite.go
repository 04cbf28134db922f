package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS turns (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    chat_id    TEXT NOT NULL,
    turn_id    TEXT NOT NULL DEFAULT '',
    model      TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL DEFAULT '',
    reasoning  TEXT NOT NULL DEFAULT '',
    start_time INTEGER NOT NULL,
    end_time   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_chat_seq ON turns (chat_id, seq);
`

// SQLite stores entries in a local database file. Times are unix
// milliseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite %s: %w", path, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, chat_id, turn_id, model, message, content, reasoning, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChatID, e.TurnID, e.Model, e.Message, e.Content, e.Reasoning,
		e.StartTime.UnixMilli(), e.EndTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: sqlite insert: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, chatID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, turn_id, model, message, content, reasoning, start_time, end_time FROM (
		     SELECT * FROM turns WHERE chat_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: sqlite list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var start, end int64
		if err := rows.Scan(&e.ID, &e.ChatID, &e.TurnID, &e.Model, &e.Message, &e.Content, &e.Reasoning, &start, &end); err != nil {
			return nil, fmt.Errorf("history: sqlite scan: %w", err)
		}
		e.StartTime = time.UnixMilli(start).UTC()
		e.EndTime = time.UnixMilli(end).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: sqlite rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
