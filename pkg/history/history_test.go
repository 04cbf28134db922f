package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func entry(chatID string, i int) Entry {
	start := time.Date(2026, 10, 17, 12, 0, i, 0, time.UTC)
	return Entry{
		ChatID:    chatID,
		TurnID:    fmt.Sprintf("t%d", i),
		Model:     "scout",
		Message:   fmt.Sprintf("question %d", i),
		Content:   fmt.Sprintf("answer %d", i),
		Reasoning: "because",
		StartTime: start,
		EndTime:   start.Add(time.Second),
	}
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.Save(ctx, entry("c1", i)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := s.Save(ctx, entry("c2", 9)); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, "c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	for i, e := range all {
		if e.TurnID != fmt.Sprintf("t%d", i+1) {
			t.Errorf("entry %d turn = %q (want oldest first)", i, e.TurnID)
		}
		if e.ID == "" {
			t.Errorf("entry %d has no ID", i)
		}
	}
	if !all[0].StartTime.Equal(entry("c1", 1).StartTime) || !all[0].EndTime.Equal(entry("c1", 1).EndTime) {
		t.Errorf("times = %v / %v", all[0].StartTime, all[0].EndTime)
	}
	if all[0].Content != "answer 1" || all[0].Reasoning != "because" || all[0].Message != "question 1" {
		t.Errorf("entry = %+v", all[0])
	}

	last, err := s.List(ctx, "c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].TurnID != "t4" || last[1].TurnID != "t5" {
		t.Errorf("last 2 = %+v", last)
	}

	none, err := s.List(ctx, "unknown", 10)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("unknown chat = %v, %v", none, err)
	}

	if err := s.Save(ctx, entry("../escape", 1)); !errors.Is(err, ErrInvalidChatID) {
		t.Errorf("save bad chat id: %v", err)
	}
}

func TestMemory(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestJSONL(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONL(dir)
	if err != nil {
		t.Fatal(err)
	}
	storeContract(t, s)

	data, err := os.ReadFile(filepath.Join(dir, "c1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Fatalf("lines = %d, want header + 5", len(lines))
	}
	if !strings.Contains(lines[0], `"type":"chat"`) || !strings.Contains(lines[1], `"type":"turn"`) {
		t.Errorf("header = %s\nfirst = %s", lines[0], lines[1])
	}
}

func TestJSONL_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONL(dir)
	if err := s.Save(context.Background(), entry("c1", 1)); err != nil {
		t.Fatal(err)
	}
	f, _ := os.OpenFile(filepath.Join(dir, "c1.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("not json\n")
	f.Close()
	if err := s.Save(context.Background(), entry("c1", 2)); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(context.Background(), "c1", 0)
	if err != nil || len(got) != 2 {
		t.Errorf("got %d entries, %v", len(got), err)
	}
}

func TestJSONL_ListRejectsTraversal(t *testing.T) {
	s, _ := NewJSONL(t.TempDir())
	if _, err := s.List(context.Background(), "../../etc/passwd", 0); !errors.Is(err, ErrInvalidChatID) {
		t.Errorf("err = %v", err)
	}
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	storeContract(t, s)
}

func TestSQLite_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	s.Save(ctx, entry("c1", 1))
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, _ := s.List(ctx, "c1", 0)
	if len(got) != 1 {
		t.Errorf("entries after reopen = %d", len(got))
	}
}

func TestConcurrentSaves(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemory() },
		"jsonl": func(t *testing.T) Store {
			s, _ := NewJSONL(t.TempDir())
			return s
		},
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					s.Save(context.Background(), entry("c1", i))
				}(i)
			}
			wg.Wait()
			got, _ := s.List(context.Background(), "c1", 0)
			if len(got) != 20 {
				t.Errorf("entries = %d, want 20", len(got))
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{}, nil)
	if s != nil || err != nil {
		t.Errorf("empty backend = %v, %v", s, err)
	}
	s, err = Open(ctx, Config{Backend: BackendNone}, nil)
	if s != nil || err != nil {
		t.Errorf("none backend = %v, %v", s, err)
	}
	if s, err := Open(ctx, Config{Backend: BackendMemory}, nil); err != nil {
		t.Error(err)
	} else if _, ok := s.(*Memory); !ok {
		t.Errorf("memory backend = %T", s)
	}
	if s, err := Open(ctx, Config{Backend: BackendJSONL, Path: t.TempDir()}, nil); err != nil {
		t.Error(err)
	} else if _, ok := s.(*JSONL); !ok {
		t.Errorf("jsonl backend = %T", s)
	}
	if s, err := Open(ctx, Config{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "h.db")}, nil); err != nil {
		t.Error(err)
	} else {
		s.Close()
	}

	for _, cfg := range []Config{
		{Backend: "redis"},
		{Backend: BackendJSONL},
		{Backend: BackendSQLite},
		{Backend: BackendPostgres},
	} {
		if _, err := Open(ctx, cfg, nil); err == nil {
			t.Errorf("Open(%+v) should fail", cfg)
		}
	}
}

func TestValidChatID(t *testing.T) {
	for _, id := range []string{"c1", "chat_2026-10-17", "550e8400-e29b-41d4-a716-446655440000", "user:42"} {
		if !ValidChatID(id) {
			t.Errorf("%q should be valid", id)
		}
	}
	for _, id := range []string{"", ".", "..", "a/b", "a b", strings.Repeat("x", 129)} {
		if ValidChatID(id) {
			t.Errorf("%q should be invalid", id)
		}
	}
}
