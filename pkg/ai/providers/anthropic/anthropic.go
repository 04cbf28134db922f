// Package anthropic implements ai.Provider for the Anthropic Messages API
// (streaming via SSE).
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/sse"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 8192
)

type Provider struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string { return "anthropic" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
	// tool_result
	ToolUseID string        `json:"tool_use_id,omitempty"`
	Content   []wireContent `json:"content,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
	// image | document
	Source *wireSource `json:"source,omitempty"`
	Title  string      `json:"title,omitempty"`
}

type wireSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "image/png", "application/pdf"
	Data      string `json:"data"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireThinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	Thinking    *wireThinking `json:"thinking,omitempty"`
}

type evContentBlockStart struct {
	Index        int         `json:"index"`
	ContentBlock wireContent `json:"content_block"`
}

type evContentBlockDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type evMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type evMessageStart struct {
	Message struct {
		Usage struct {
			InputTokens          int `json:"input_tokens"`
			CacheReadInputTokens int `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type evError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

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

// BuildRequest converts an ai.Context into a Messages API request body.
func BuildRequest(model string, llmCtx ai.Context, opts ai.StreamOptions) (wireRequest, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	req := wireRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      llmCtx.SystemPrompt,
		Stream:      true,
		Temperature: opts.Temperature,
	}
	if opts.ThinkingBudget > 0 {
		req.Thinking = &wireThinking{Type: "enabled", BudgetTokens: opts.ThinkingBudget}
		// The budget must fit below max_tokens, and thinking rejects a custom
		// temperature.
		if req.MaxTokens <= opts.ThinkingBudget {
			req.MaxTokens = opts.ThinkingBudget + defaultMaxTokens
		}
		req.Temperature = nil
	}

	for _, m := range llmCtx.Messages {
		wm, err := convertMessage(m)
		if err != nil {
			return wireRequest{}, err
		}
		// Consecutive same-role messages (several tool results in a row) are
		// merged, the API requires alternating roles.
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == wm.Role {
			req.Messages[n-1].Content = append(req.Messages[n-1].Content, wm.Content...)
			continue
		}
		req.Messages = append(req.Messages, wm)
	}

	for _, t := range llmCtx.Tools {
		req.Tools = append(req.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return req, nil
}

type blockState struct {
	kind string // "text" | "thinking" | "tool_use"
	id   string
	name string
	args strings.Builder
}

func (p *Provider) stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
	events chan<- ai.StreamEvent,
) (*ai.AssistantMessage, error) {
	req, err := BuildRequest(model, llmCtx, opts)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", opts.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  "anthropic",
		Timestamp: time.Now().UnixMilli(),
	}
	send := func(t ai.StreamEventType, delta string) {
		ai.Emit(ctx, events, ai.StreamEvent{Type: t, Partial: ai.Snapshot(partial), Delta: delta})
	}

	blocks := map[int]*blockState{}
	reader := sse.NewReader(resp.Body)

	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("anthropic: sse read: %w", err)
		}
		if ev.Data == "" {
			continue
		}

		switch ev.Type {
		case "message_start":
			var ms evMessageStart
			if json.Unmarshal([]byte(ev.Data), &ms) == nil {
				partial.Usage.Input = ms.Message.Usage.InputTokens
				partial.Usage.CacheRead = ms.Message.Usage.CacheReadInputTokens
			}
			send(ai.StreamEventStart, "")

		case "content_block_start":
			var cbs evContentBlockStart
			if json.Unmarshal([]byte(ev.Data), &cbs) != nil {
				continue
			}
			bs := &blockState{kind: cbs.ContentBlock.Type}
			blocks[cbs.Index] = bs
			switch bs.kind {
			case "text":
				send(ai.StreamEventTextStart, "")
			case "thinking":
				send(ai.StreamEventThinkingStart, "")
			case "tool_use":
				bs.id = cbs.ContentBlock.ID
				if bs.id == "" {
					bs.id = "call_" + uuid.NewString()[:8]
				}
				bs.name = cbs.ContentBlock.Name
				send(ai.StreamEventToolCallStart, bs.name)
			}

		case "content_block_delta":
			var cbd evContentBlockDelta
			if json.Unmarshal([]byte(ev.Data), &cbd) != nil {
				continue
			}
			bs := blocks[cbd.Index]
			if bs == nil {
				continue
			}
			switch cbd.Delta.Type {
			case "text_delta":
				ai.AppendText(partial, cbd.Delta.Text)
				send(ai.StreamEventTextDelta, cbd.Delta.Text)
			case "thinking_delta":
				ai.AppendThinking(partial, cbd.Delta.Thinking)
				send(ai.StreamEventThinkingDelta, cbd.Delta.Thinking)
			case "input_json_delta":
				bs.args.WriteString(cbd.Delta.PartialJSON)
				send(ai.StreamEventToolCallDelta, cbd.Delta.PartialJSON)
			}

		case "content_block_stop":
			var idx struct {
				Index int `json:"index"`
			}
			if json.Unmarshal([]byte(ev.Data), &idx) != nil {
				continue
			}
			bs := blocks[idx.Index]
			if bs == nil {
				continue
			}
			switch bs.kind {
			case "text":
				send(ai.StreamEventTextEnd, "")
			case "thinking":
				send(ai.StreamEventThinkingEnd, "")
			case "tool_use":
				partial.Content = append(partial.Content, ai.ToolCall{
					Type:      "tool_call",
					ID:        bs.id,
					Name:      bs.name,
					Arguments: ai.ParseArguments(bs.args.String()),
				})
				send(ai.StreamEventToolCallEnd, "")
			}

		case "message_delta":
			var md evMessageDelta
			if json.Unmarshal([]byte(ev.Data), &md) == nil {
				partial.StopReason = mapStopReason(md.Delta.StopReason)
				partial.Usage.Output = md.Usage.OutputTokens
				partial.Usage.TotalTokens = partial.Usage.Input + partial.Usage.Output + partial.Usage.CacheRead
			}

		case "error":
			var e evError
			_ = json.Unmarshal([]byte(ev.Data), &e)
			return nil, fmt.Errorf("anthropic: stream error: %s: %s", e.Error.Type, e.Error.Message)

		case "message_stop":
			send(ai.StreamEventDone, "")
		}
	}

	if partial.StopReason == "" {
		partial.StopReason = ai.StopReasonStop
	}
	return partial, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func convertMessage(m ai.Message) (wireMessage, error) {
	switch msg := m.(type) {
	case ai.UserMessage:
		var content []wireContent
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				content = append(content, wireContent{Type: "text", Text: blk.Text})
			case ai.ImageContent:
				content = append(content, wireContent{
					Type:   "image",
					Source: &wireSource{Type: "base64", MediaType: blk.MIMEType, Data: blk.Data},
				})
			case ai.FileContent:
				// Only PDFs are accepted as documents.
				if blk.MIMEType != "application/pdf" {
					continue
				}
				content = append(content, wireContent{
					Type:   "document",
					Title:  blk.Name,
					Source: &wireSource{Type: "base64", MediaType: blk.MIMEType, Data: blk.Data},
				})
			}
		}
		return wireMessage{Role: "user", Content: content}, nil

	case ai.AssistantMessage:
		var content []wireContent
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				if blk.Text != "" {
					content = append(content, wireContent{Type: "text", Text: blk.Text})
				}
			case ai.ToolCall:
				input := blk.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, wireContent{Type: "tool_use", ID: blk.ID, Name: blk.Name, Input: input})
			}
		}
		return wireMessage{Role: "assistant", Content: content}, nil

	case ai.ToolResultMessage:
		var inner []wireContent
		for _, c := range msg.Content {
			if tc, ok := c.(ai.TextContent); ok {
				inner = append(inner, wireContent{Type: "text", Text: tc.Text})
			}
		}
		return wireMessage{
			Role: "user",
			Content: []wireContent{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   inner,
				IsError:   msg.IsError,
			}},
		}, nil
	}
	return wireMessage{}, fmt.Errorf("anthropic: unsupported message type %T", m)
}

func mapStopReason(s string) ai.StopReason {
	switch s {
	case "end_turn", "stop_sequence":
		return ai.StopReasonStop
	case "max_tokens":
		return ai.StopReasonLength
	case "tool_use":
		return ai.StopReasonTool
	default:
		return ai.StopReason(s)
	}
}
