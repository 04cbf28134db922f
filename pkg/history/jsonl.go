package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const jsonlVersion = 1

// Line types of a chat file.
const (
	lineTypeChat = "chat"
	lineTypeTurn = "turn"
)

// fileHeader is the first line of every chat file.
type fileHeader struct {
	Type      string `json:"type"`
	ChatID    string `json:"chat_id"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type turnLine struct {
	Type string `json:"type"`
	Entry
}

// JSONL stores each chat as dir/<chatID>.jsonl. Writes are append-only.
type JSONL struct {
	mu  sync.Mutex
	dir string
}

// NewJSONL creates dir if needed.
func NewJSONL(dir string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
	}
	return &JSONL{dir: dir}, nil
}

func (s *JSONL) path(chatID string) string {
	return filepath.Join(s.dir, chatID+".jsonl")
}

func (s *JSONL) Save(_ context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(e.ChatID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("history: open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("history: stat %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if st.Size() == 0 {
		header := fileHeader{
			Type:      lineTypeChat,
			ChatID:    e.ChatID,
			Version:   jsonlVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := writeLine(w, header); err != nil {
			return err
		}
	}
	if err := writeLine(w, turnLine{Type: lineTypeTurn, Entry: e}); err != nil {
		return err
	}
	return w.Flush()
}

func (s *JSONL) List(_ context.Context, chatID string, limit int) ([]Entry, error) {
	if !ValidChatID(chatID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChatID, chatID)
	}
	s.mu.Lock()
	data, err := os.ReadFile(s.path(chatID))
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", chatID, err)
	}
	return tail(parseLines(data), limit), nil
}

func (s *JSONL) Close() error { return nil }

// parseLines returns the turn entries of a chat file. Malformed lines are
// skipped.
func parseLines(data []byte) []Entry {
	var out []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err != nil || probe.Type != lineTypeTurn {
			continue
		}
		var tl turnLine
		if err := json.Unmarshal([]byte(line), &tl); err != nil {
			continue
		}
		out = append(out, tl.Entry)
	}
	return out
}

func writeLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("history: marshal entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("history: write newline: %w", err)
	}
	return nil
}
