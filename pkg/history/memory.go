package history

import (
	"context"
	"sync"
)

// Memory keeps entries in process memory.
type Memory struct {
	mu    sync.RWMutex
	chats map[string][]Entry
}

func NewMemory() *Memory {
	return &Memory{chats: make(map[string][]Entry)}
}

func (m *Memory) Save(_ context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.chats[e.ChatID] = append(m.chats[e.ChatID], e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, chatID string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := tail(m.chats[chatID], limit)
	out := make([]Entry, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) Close() error { return nil }
