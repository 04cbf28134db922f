// Package turn runs the lifecycle of one chat turn independently of the
// transport: dispatch, per-fragment classification, exactly one terminal
// event, and optional persistence of the completion record. The HTTP-SSE
// and WebSocket transports are thin Sinks over this loop.
package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/classify"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/dispatch"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/history"
)

// StatusProcessing is the status emitted when a turn starts.
const StatusProcessing = "processing"

// ErrStop may be returned by a Sink to end the turn without further events.
// Any other sink error has the same effect.
var ErrStop = errors.New("turn: stopped by sink")

// Chunk is the classification after one fragment.
type Chunk struct {
	Delta     string `json:"chunk"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// Record is the Turn Completion Record.
type Record struct {
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Sink receives the events of one turn in order: one Status, any number of
// Chunks, then exactly one of Complete or Error.
type Sink interface {
	Status(ctx context.Context, status string) error
	Chunk(ctx context.Context, c Chunk) error
	Complete(ctx context.Context, r Record) error
	Error(ctx context.Context, message string) error
}

// Input identifies one turn.
type Input struct {
	ChatID  string
	TurnID  string // generated when empty
	Request chat.Request
}

// Runner drives turns. It is safe for concurrent use.
type Runner struct {
	Dispatcher *dispatch.Dispatcher
	// History, when set, receives every completed turn.
	History history.Store
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one turn against sink.
//
// It returns the record on completion. A dispatch error is reported to the
// sink and returned. If the sink stops the turn, or ctx ends first, Run
// returns ErrStop or ctx.Err() and sends nothing further.
func (r *Runner) Run(ctx context.Context, in Input, sink Sink) (*Record, error) {
	if in.TurnID == "" {
		in.TurnID = uuid.NewString()
	}
	req := in.Request
	if req.ChatID == "" {
		req.ChatID = in.ChatID
	}
	log := r.logger().With("chat_id", in.ChatID, "turn_id", in.TurnID, "model", req.Model)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := r.now()
	if err := sink.Status(ctx, StatusProcessing); err != nil {
		return nil, stopped(err)
	}

	if err := req.Validate(); err != nil {
		log.Debug("turn: invalid request", "err", err)
		if serr := sink.Error(ctx, err.Error()); serr != nil {
			return nil, stopped(serr)
		}
		return nil, err
	}

	var acc classify.Accumulator
	fragments := 0
	for frame := range r.Dispatcher.Dispatch(ctx, req.Model, req) {
		if frame.IsError() {
			log.Warn("turn: failed", "err", frame.Err, "fragments", fragments)
			if err := sink.Error(ctx, frame.Err.Error()); err != nil {
				return nil, stopped(err)
			}
			return nil, frame.Err
		}
		fragments++
		res := acc.Append(frame.Text)
		if err := sink.Chunk(ctx, Chunk{Delta: frame.Text, Content: res.Display, Reasoning: res.Reasoning}); err != nil {
			log.Debug("turn: sink stopped", "err", err, "fragments", fragments)
			return nil, stopped(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := acc.Result()
	rec := &Record{Content: final.Display, Reasoning: final.Reasoning, StartTime: start, EndTime: r.now()}
	// Saved before Complete so a client that reads history right after the
	// terminal event sees this turn.
	r.persist(ctx, in, req, rec, log)
	if err := sink.Complete(ctx, *rec); err != nil {
		return nil, stopped(err)
	}
	log.Info("turn: complete", "fragments", fragments, "duration", rec.EndTime.Sub(rec.StartTime))
	return rec, nil
}

func (r *Runner) persist(ctx context.Context, in Input, req chat.Request, rec *Record, log *slog.Logger) {
	if r.History == nil || in.ChatID == "" {
		return
	}
	err := r.History.Save(context.WithoutCancel(ctx), history.Entry{
		ChatID:    in.ChatID,
		TurnID:    in.TurnID,
		Model:     req.Model,
		Message:   req.Message,
		Content:   rec.Content,
		Reasoning: rec.Reasoning,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
	})
	if err != nil {
		log.Error("turn: history save failed", "err", err)
	}
}

func stopped(err error) error {
	if errors.Is(err, ErrStop) || errors.Is(err, context.Canceled) {
		return ErrStop
	}
	return errors.Join(ErrStop, err)
}
