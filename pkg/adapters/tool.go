package adapters

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

// ToolAdapter runs one round of tool calling before streaming the answer.
//
// The first vendor call carries the tool definitions and is drained without
// emitting anything. If the model calls no tools its text is the only
// fragment. Otherwise every call is executed in order, the results are
// appended to the conversation, and a second call without tools is
// streamed.
type ToolAdapter struct {
	*VendorAdapter
	tools *tools.Registry
}

// NewToolAdapter returns the tool-calling adapter for info. logger may be nil.
func NewToolAdapter(info models.ModelInfo, backend Backend, reg *tools.Registry, logger *slog.Logger) *ToolAdapter {
	if reg == nil {
		reg = tools.NewRegistry(logger)
	}
	return &ToolAdapter{VendorAdapter: NewVendorAdapter(info, backend, logger), tools: reg}
}

func (a *ToolAdapter) Generate(ctx context.Context, req chat.Request) (<-chan string, func() error) {
	out := make(chan string)
	done := make(chan struct{})
	var err error
	go func() {
		var events <-chan ai.StreamEvent
		defer close(done)
		defer close(out)
		defer a.recoverPanic(&err, &events)
		err = a.run(ctx, req, out, &events)
	}()
	return out, func() error {
		<-done
		return err
	}
}

// run performs the round. events always holds the vendor stream currently
// being read.
func (a *ToolAdapter) run(ctx context.Context, req chat.Request, out chan<- string, events *<-chan ai.StreamEvent) error {
	llmCtx := a.buildContext(req)
	llmCtx.Tools = a.tools.Definitions()
	opts := a.options()

	var wait func() (*ai.AssistantMessage, error)
	*events, wait = a.backend.Provider.Stream(ctx, a.info.VendorModel, llmCtx, opts)
	var streamErr error
	for ev := range *events {
		if ev.Type == ai.StreamEventError && ev.Error != nil {
			streamErr = ev.Error
		}
	}
	first, err := wait()
	if perr := a.providerError(first, err, streamErr); perr != nil {
		return perr
	}
	if first == nil {
		return &chat.ProviderError{Model: a.info.ID, Provider: a.backend.Provider.Name(), Err: errors.New("vendor returned no message")}
	}

	calls := first.ToolCalls()
	if len(calls) == 0 {
		text := first.Text()
		if thought := thinkingText(first); thought != "" {
			text = ThinkOpen + thought + ThinkClose + text
		}
		if text != "" {
			select {
			case out <- text:
			case <-ctx.Done():
			}
		}
		return nil
	}

	a.logger.Debug("adapter: tool round", "chat_id", req.ChatID, "calls", len(calls))
	llmCtx.Messages = append(llmCtx.Messages, *first)
	for _, call := range calls {
		res := a.tools.Execute(ctx, call.Name, call.Arguments)
		llmCtx.Messages = append(llmCtx.Messages, ai.ToolResultMessage{
			Role:       ai.RoleToolResult,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    []ai.ContentBlock{ai.TextContent{Type: "text", Text: res.Content}},
			IsError:    !res.Status,
			Timestamp:  time.Now().UnixMilli(),
		})
	}

	llmCtx.Tools = nil
	*events, wait = a.backend.Provider.Stream(ctx, a.info.VendorModel, llmCtx, opts)
	return a.forward(ctx, *events, wait, out)
}

func thinkingText(msg *ai.AssistantMessage) string {
	var out string
	for _, c := range msg.Content {
		if tc, ok := c.(ai.ThinkingContent); ok {
			out += tc.Thinking
		}
	}
	return out
}
