// Package adapters implements chat.Adapter on top of the ai.Provider vendor
// wrappers: a plain streaming adapter per catalog model, and the two-phase
// tool-calling variant.
package adapters

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
)

// Reasoning markers wrapped around vendor-native thinking deltas.
const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

// Backend is a configured vendor: the provider and the key it is called with.
type Backend struct {
	Provider ai.Provider
	APIKey   string
}

// VendorAdapter streams a single vendor call for one catalog model.
type VendorAdapter struct {
	info    models.ModelInfo
	backend Backend
	logger  *slog.Logger
}

// NewVendorAdapter returns the adapter for info. logger may be nil.
func NewVendorAdapter(info models.ModelInfo, backend Backend, logger *slog.Logger) *VendorAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &VendorAdapter{
		info:    info,
		backend: backend,
		logger:  logger.With("model", info.ID, "provider", backend.Provider.Name()),
	}
}

func (a *VendorAdapter) Name() string { return a.info.ID }

func (a *VendorAdapter) Supports(mime string) bool { return a.info.Supports(mime) }

// Info returns the catalog entry the adapter serves.
func (a *VendorAdapter) Info() models.ModelInfo { return a.info }

func (a *VendorAdapter) Generate(ctx context.Context, req chat.Request) (<-chan string, func() error) {
	llmCtx := a.buildContext(req)
	events, wait := a.backend.Provider.Stream(ctx, a.info.VendorModel, llmCtx, a.options())

	out := make(chan string)
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		defer close(out)
		defer a.recoverPanic(&err, &events)
		err = a.forward(ctx, events, wait, out)
	}()
	return out, func() error {
		<-done
		return err
	}
}

// recoverPanic is deferred by producer goroutines. A panic becomes a
// *chat.ProviderError in err, and the vendor stream still open in events is
// drained in the background so the provider can finish.
func (a *VendorAdapter) recoverPanic(err *error, events *<-chan ai.StreamEvent) {
	r := recover()
	if r == nil {
		return
	}
	a.logger.Error("adapter: panic", "panic", r)
	*err = chat.PanicError(a.info.ID, a.backend.Provider.Name(), r)
	if pending := *events; pending != nil {
		go func() {
			for range pending {
			}
		}()
	}
}

func (a *VendorAdapter) options() ai.StreamOptions {
	return ai.StreamOptions{
		Temperature:    a.info.Temperature,
		MaxTokens:      a.info.MaxOutputTokens,
		APIKey:         a.backend.APIKey,
		ThinkingBudget: a.info.ThinkingBudget,
	}
}

// buildContext maps the turn into the vendor context: prior turns in order,
// then the new user message with its supported attachments.
func (a *VendorAdapter) buildContext(req chat.Request) ai.Context {
	now := time.Now().UnixMilli()
	msgs := make([]ai.Message, 0, len(req.History)+1)
	for _, t := range req.History {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		block := []ai.ContentBlock{ai.TextContent{Type: "text", Text: t.Text}}
		if t.Role == chat.RoleAssistant {
			msgs = append(msgs, ai.AssistantMessage{Role: ai.RoleAssistant, Content: block, Timestamp: now})
			continue
		}
		msgs = append(msgs, ai.UserMessage{Role: ai.RoleUser, Content: block, Timestamp: now})
	}

	content := []ai.ContentBlock{ai.TextContent{Type: "text", Text: req.Message}}
	for _, att := range req.Attachments {
		mime := chat.NormalizeMIME(att.MIMEType)
		if !a.Supports(mime) {
			a.logger.Debug("adapter: attachment dropped", "mime", att.MIMEType, "chat_id", req.ChatID)
			continue
		}
		data := base64.StdEncoding.EncodeToString(att.Data)
		if strings.HasPrefix(mime, "image/") {
			content = append(content, ai.ImageContent{Type: "image", Data: data, MIMEType: mime})
			continue
		}
		content = append(content, ai.FileContent{Type: "file", Data: data, MIMEType: mime, Name: att.Name})
	}
	msgs = append(msgs, ai.UserMessage{Role: ai.RoleUser, Content: content, Timestamp: now})

	return ai.Context{SystemPrompt: a.info.SystemPrompt, Messages: msgs}
}

// forward republishes text deltas as fragments. Thinking deltas are wrapped
// in think markers. When ctx is done it stops sending but still drains the
// provider so wait can return.
func (a *VendorAdapter) forward(
	ctx context.Context,
	events <-chan ai.StreamEvent,
	wait func() (*ai.AssistantMessage, error),
	out chan<- string,
) error {
	live := true
	send := func(s string) {
		if !live || s == "" {
			return
		}
		select {
		case out <- s:
		case <-ctx.Done():
			live = false
		}
	}

	var streamErr error
	thinking := false
	for ev := range events {
		switch ev.Type {
		case ai.StreamEventThinkingDelta:
			if ev.Delta == "" {
				continue
			}
			if !thinking {
				send(ThinkOpen)
				thinking = true
			}
			send(ev.Delta)
		case ai.StreamEventTextDelta:
			if ev.Delta == "" {
				continue
			}
			if thinking {
				send(ThinkClose)
				thinking = false
			}
			send(ev.Delta)
		case ai.StreamEventError:
			if ev.Error != nil {
				streamErr = ev.Error
			}
		}
	}
	if thinking {
		send(ThinkClose)
	}

	msg, err := wait()
	return a.providerError(msg, err, streamErr)
}

// providerError folds the outcome of a vendor call into nil or a
// *chat.ProviderError.
func (a *VendorAdapter) providerError(msg *ai.AssistantMessage, err, streamErr error) error {
	if err == nil {
		err = streamErr
	}
	if err == nil && msg != nil && msg.StopReason == ai.StopReasonError {
		err = errors.New(msg.ErrorMessage)
		if msg.ErrorMessage == "" {
			err = errors.New("vendor reported an error")
		}
	}
	if err == nil {
		return nil
	}
	if ai.IsContextOverflow(msg, err) && !errors.Is(err, ai.ErrContextOverflow) {
		err = fmt.Errorf("%w: %v", ai.ErrContextOverflow, err)
	}
	a.logger.Warn("adapter: vendor call failed", "err", err)
	return &chat.ProviderError{Model: a.info.ID, Provider: a.backend.Provider.Name(), Err: err}
}
