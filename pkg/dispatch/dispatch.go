// Package dispatch resolves a model identifier and republishes the adapter's
// fragments as one ordered stream of frames that always ends exactly once.
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
)

// DefaultTurnTimeout bounds a detached vendor call.
const DefaultTurnTimeout = 5 * time.Minute

// Frame is one element of a dispatch stream: a non-empty text fragment or a
// terminal error.
type Frame struct {
	Text string
	Err  error
}

// IsError reports whether the frame is the terminal error frame.
func (f Frame) IsError() bool { return f.Err != nil }

// Dispatcher drives one adapter per call. It holds no per-turn state, so a
// single Dispatcher serves any number of concurrent turns.
type Dispatcher struct {
	Registry *chat.Registry
	Logger   *slog.Logger

	// TurnTimeout bounds the vendor call, which is detached from the
	// consumer's context. Zero means DefaultTurnTimeout.
	TurnTimeout time.Duration
}

// New returns a Dispatcher over reg. logger may be nil.
func New(reg *chat.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Registry: reg, Logger: logger}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dispatch resolves modelID and streams the adapter's fragments.
//
// It never returns an error directly: resolution and provider failures
// arrive as a single error frame after any text already produced. The
// channel is closed exactly once on every path.
//
// When ctx is done the stream stops early and is closed, but the vendor call
// itself is left to finish in the background, bounded by TurnTimeout.
func (d *Dispatcher) Dispatch(ctx context.Context, modelID string, req chat.Request) <-chan Frame {
	out := make(chan Frame)
	log := d.logger().With("model", modelID, "chat_id", req.ChatID)

	go func() {
		defer close(out)

		send := func(f Frame) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		adapter, err := d.Registry.Resolve(modelID)
		if err != nil {
			log.Warn("dispatch: resolve failed", "err", err)
			send(Frame{Err: err})
			return
		}

		start := time.Now()
		fragments, wait, err := d.generate(ctx, adapter, req)
		if err != nil {
			log.Error("dispatch: adapter failed to start", "err", err)
			send(Frame{Err: err})
			return
		}

		count := 0
	loop:
		for {
			select {
			case frag, ok := <-fragments:
				if !ok {
					break loop
				}
				if frag == "" {
					continue
				}
				if !send(Frame{Text: frag}) {
					log.Debug("dispatch: consumer gone, draining in background", "fragments", count)
					go drain(fragments, wait, log)
					return
				}
				count++
			case <-ctx.Done():
				log.Debug("dispatch: consumer gone, draining in background", "fragments", count)
				go drain(fragments, wait, log)
				return
			}
		}

		if err := wait(); err != nil {
			var pe *chat.ProviderError
			if !errors.As(err, &pe) {
				err = &chat.ProviderError{Model: modelID, Err: err}
			}
			log.Error("dispatch: provider failed", "err", err, "fragments", count, "duration", time.Since(start))
			send(Frame{Err: err})
			return
		}
		log.Debug("dispatch: complete", "fragments", count, "duration", time.Since(start))
	}()

	return out
}

// generate starts the adapter with a context detached from the consumer and
// converts a panic inside Generate into an error.
func (d *Dispatcher) generate(ctx context.Context, a chat.Adapter, req chat.Request) (frags <-chan string, wait func() error, err error) {
	timeout := d.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	defer func() {
		if r := recover(); r != nil {
			cancel()
			frags, wait = nil, nil
			err = chat.PanicError(a.Name(), "", r)
		}
	}()

	frags, innerWait := a.Generate(callCtx, req)
	if frags == nil || innerWait == nil {
		cancel()
		return nil, nil, &chat.ProviderError{Model: a.Name(), Err: errors.New("adapter returned no stream")}
	}
	wait = func() error {
		defer cancel()
		return innerWait()
	}
	return frags, wait, nil
}

// drain consumes the rest of an abandoned stream so the vendor call can run
// to completion and release its resources.
func drain(fragments <-chan string, wait func() error, log *slog.Logger) {
	for range fragments {
	}
	if err := wait(); err != nil {
		log.Debug("dispatch: abandoned call failed", "err", err)
	}
}

// Collect reads a dispatch stream to the end and returns the concatenated
// text and the error frame, if any.
func Collect(frames <-chan Frame) (string, error) {
	var text string
	var err error
	for f := range frames {
		if f.IsError() {
			err = f.Err
			continue
		}
		text += f.Text
	}
	return text, err
}
