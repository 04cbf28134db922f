// Package history persists Turn Completion Records, the one classification
// result a turn produces durably, and reads them back per chat.
//
// Backends:
//   - memory: process-local, for tests and single-node development
//   - jsonl: one append-only file per chat (header line + turn lines)
//   - sqlite: a single local database file (modernc.org/sqlite, no cgo)
//   - postgres: a shared table through pgx
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Entry is one completed turn.
type Entry struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	TurnID    string    `json:"turnId"`
	Model     string    `json:"model"`
	Message   string    `json:"message"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Store saves and lists entries. Implementations are safe for concurrent use.
type Store interface {
	// Save appends e. An empty e.ID is filled in.
	Save(ctx context.Context, e Entry) error
	// List returns the most recent limit entries of chatID, oldest first.
	// limit <= 0 returns all of them.
	List(ctx context.Context, chatID string, limit int) ([]Entry, error)
	Close() error
}

// ErrInvalidChatID is returned for an empty or unsafe chat ID.
var ErrInvalidChatID = errors.New("history: invalid chat id")

var chatIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidChatID reports whether id can be used as a storage key.
func ValidChatID(id string) bool {
	return chatIDPattern.MatchString(id) && id != "." && id != ".."
}

// prepare validates e and fills its ID.
func prepare(e Entry) (Entry, error) {
	if !ValidChatID(e.ChatID) {
		return e, fmt.Errorf("%w: %q", ErrInvalidChatID, e.ChatID)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e, nil
}

// tail returns the last limit entries.
func tail(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		return []Entry{}
	}
	return entries
}

// Backend names accepted by Open.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendJSONL    = "jsonl"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the directory (jsonl) or database file (sqlite).
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Open returns the configured store. The none backend (or an empty one)
// returns a nil Store and no error.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendJSONL:
		if cfg.Path == "" {
			return nil, errors.New("history: jsonl backend needs a path")
		}
		return NewJSONL(cfg.Path)
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, errors.New("history: sqlite backend needs a path")
		}
		return OpenSQLite(ctx, cfg.Path)
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("history: postgres backend needs a dsn")
		}
		var opts []PostgresOption
		if cfg.Table != "" {
			opts = append(opts, WithTable(cfg.Table))
		}
		return OpenPostgres(ctx, cfg.DSN, logger, opts...)
	}
	return nil, fmt.Errorf("history: unknown backend %q", cfg.Backend)
}
