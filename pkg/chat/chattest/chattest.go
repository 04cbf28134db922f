// Package chattest provides scripted chat.Adapter fakes for tests.
package chattest

import (
	"context"
	"sync"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
)

// Stub is an adapter that yields a fixed list of fragments.
type Stub struct {
	ID        string
	Fragments []string
	// Err, when set, is returned from wait after the fragments.
	Err error
	// FailAfter > 0 stops after that many fragments and fails with Err.
	FailAfter int
	// Panic makes Generate itself panic before any stream exists.
	Panic bool
	// PanicAfter > 0 makes the producer goroutine panic after that many
	// fragments. The panic is recovered into a *chat.ProviderError, as the
	// real adapters do.
	PanicAfter int
	// Delay is slept before each fragment.
	Delay time.Duration
	// Gate, when non-nil, is received from before each fragment.
	Gate chan struct{}
	MIME []string

	mu       sync.Mutex
	requests []chat.Request
}

func (s *Stub) Name() string { return s.ID }

func (s *Stub) Supports(mime string) bool {
	mime = chat.NormalizeMIME(mime)
	for _, m := range s.MIME {
		if chat.NormalizeMIME(m) == mime {
			return true
		}
	}
	return false
}

// Requests returns every request Generate received.
func (s *Stub) Requests() []chat.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Request(nil), s.requests...)
}

func (s *Stub) Generate(ctx context.Context, req chat.Request) (<-chan string, func() error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Panic {
		panic("chattest: scripted panic")
	}

	out := make(chan string)
	done := make(chan struct{})
	var err error

	go func() {
		defer close(done)
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				err = chat.PanicError(s.ID, "", r)
			}
		}()
		for i, f := range s.Fragments {
			if s.PanicAfter > 0 && i == s.PanicAfter {
				var m map[string]int
				m[f]++
			}
			if s.FailAfter > 0 && i == s.FailAfter {
				err = &chat.ProviderError{Model: s.ID, Err: s.Err}
				return
			}
			if s.Gate != nil {
				select {
				case <-s.Gate:
				case <-ctx.Done():
					err = &chat.ProviderError{Model: s.ID, Err: ctx.Err()}
					return
				}
			}
			if s.Delay > 0 {
				time.Sleep(s.Delay)
			}
			select {
			case out <- f:
			case <-ctx.Done():
				err = &chat.ProviderError{Model: s.ID, Err: ctx.Err()}
				return
			}
		}
		if s.Err != nil {
			err = &chat.ProviderError{Model: s.ID, Err: s.Err}
		}
	}()

	return out, func() error {
		<-done
		return err
	}
}
