// Package relay implements ai.Provider by forwarding the conversation to
// another rapidchat server's /chat-stream endpoint.
//
// The remote server owns the vendor keys; this side authenticates with the
// server's bearer token (StreamOptions.APIKey). Remote chunk deltas arrive
// as raw text, reasoning markers included, and are re-emitted as text
// deltas so the local classifier sees exactly what the remote model wrote.
//
//	providers:
//	  upstream:
//	    type: relay
//	    base_url: https://chat.example.com
//	    api_key: ${RELAY_TOKEN}
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/httpsse"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

// Provider forwards calls to a remote server.
type Provider struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a Provider for the server at baseURL.
func New(baseURL string) *Provider {
	return &Provider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string { return "relay" }

func (p *Provider) Stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
) (<-chan ai.StreamEvent, func() (*ai.AssistantMessage, error)) {
	events := make(chan ai.StreamEvent, 64)
	done := make(chan struct{})
	var finalMsg *ai.AssistantMessage
	var finalErr error

	go func() {
		defer close(events)
		defer close(done)
		finalMsg, finalErr = p.stream(ctx, model, llmCtx, opts, events)
	}()

	return events, func() (*ai.AssistantMessage, error) {
		<-done
		return finalMsg, finalErr
	}
}

func (p *Provider) stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
	events chan<- ai.StreamEvent,
) (*ai.AssistantMessage, error) {
	if len(llmCtx.Tools) > 0 {
		return nil, fmt.Errorf("relay: tool definitions cannot be forwarded")
	}
	req, err := BuildRequest(model, llmCtx)
	if err != nil {
		return nil, err
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  p.Name(),
		Timestamp: time.Now().UnixMilli(),
	}
	emit := func(t ai.StreamEventType, delta string) {
		ai.Emit(ctx, events, ai.StreamEvent{Type: t, Partial: ai.Snapshot(partial), Delta: delta})
	}
	emit(ai.StreamEventStart, "")

	client := &httpsse.Client{BaseURL: p.BaseURL, Token: opts.APIKey, HTTPClient: p.HTTPClient}
	textStarted := false
	_, err = client.Stream(ctx, req, func(ev httpsse.Event) error {
		if ev.Type != httpsse.EventChunk {
			return nil
		}
		var c turn.Chunk
		if err := json.Unmarshal(ev.Data, &c); err != nil {
			return fmt.Errorf("relay: bad chunk: %w", err)
		}
		if c.Delta == "" {
			return nil
		}
		if !textStarted {
			textStarted = true
			emit(ai.StreamEventTextStart, "")
		}
		ai.AppendText(partial, c.Delta)
		emit(ai.StreamEventTextDelta, c.Delta)
		return nil
	})
	if err != nil {
		partial.StopReason = ai.StopReasonError
		partial.ErrorMessage = err.Error()
		emit(ai.StreamEventError, "")
		return partial, fmt.Errorf("relay: %w", err)
	}
	if textStarted {
		emit(ai.StreamEventTextEnd, "")
	}
	partial.StopReason = ai.StopReasonStop
	emit(ai.StreamEventDone, "")
	return partial, nil
}

// BuildRequest maps llmCtx onto a chat-stream body. The last user message
// becomes the turn message and its attachments; earlier user and assistant
// messages become previousMessages. The system prompt is not forwarded: the
// remote catalog applies its own.
func BuildRequest(model string, llmCtx ai.Context) (wire.ChatRequest, error) {
	req := wire.ChatRequest{Model: model}
	last := -1
	for i, m := range llmCtx.Messages {
		if _, ok := m.(ai.UserMessage); ok {
			last = i
		}
	}
	if last < 0 {
		return req, fmt.Errorf("relay: no user message")
	}

	for i, m := range llmCtx.Messages {
		switch m := m.(type) {
		case ai.UserMessage:
			text, images := splitContent(m.Content)
			if i == last {
				req.Message = text
				req.Images = images
				continue
			}
			req.PreviousMessages = append(req.PreviousMessages, chat.Turn{Role: chat.RoleUser, Text: text})
		case ai.AssistantMessage:
			if text := m.Text(); text != "" {
				req.PreviousMessages = append(req.PreviousMessages, chat.Turn{Role: chat.RoleAssistant, Text: text})
			}
		}
	}
	return req, nil
}

func splitContent(blocks []ai.ContentBlock) (string, []wire.Image) {
	var text strings.Builder
	var images []wire.Image
	for _, b := range blocks {
		switch b := b.(type) {
		case ai.TextContent:
			text.WriteString(b.Text)
		case ai.ImageContent:
			images = append(images, wire.Image{MIMEType: b.MIMEType, Data: b.Data})
		case ai.FileContent:
			images = append(images, wire.Image{MIMEType: b.MIMEType, Data: b.Data, Name: b.Name})
		}
	}
	return text.String(), images
}
