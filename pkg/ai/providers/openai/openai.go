// Package openai implements ai.Provider for the chat-completions streaming
// API. Any OpenAI-compatible endpoint (Groq, OpenRouter, Together, a local
// server) works by setting BaseURL.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/sse"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider is the chat-completions streaming provider.
type Provider struct {
	BaseURL    string
	HTTPClient *http.Client

	// Label is reported by Name and stamped on messages. Defaults to "openai".
	Label string

	// Path overrides the request path (default "/chat/completions").
	Path string

	// Authorize sets auth headers on every request. Defaults to a bearer
	// token from StreamOptions.APIKey.
	Authorize func(h http.Header, apiKey string)
}

// New creates a Provider. Pass "" for baseURL to use the OpenAI endpoint.
func New(baseURL string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return "openai"
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"` // string | []wirePart
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireFile struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"` // data URL
}

type wireAudio struct {
	Data   string `json:"data"`   // base64
	Format string `json:"format"` // "wav" | "mp3"
}

type wirePart struct {
	Type       string        `json:"type"`
	Text       string        `json:"text,omitempty"`
	ImageURL   *wireImageURL `json:"image_url,omitempty"`
	File       *wireFile     `json:"file,omitempty"`
	InputAudio *wireAudio    `json:"input_audio,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"` // "function"
	Function wireToolFunc `json:"function"`
}

type wireToolFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON text, streamed in pieces
}

type wireToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireFunctionCall `json:"function"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireRequest struct {
	Model         string             `json:"model"`
	Messages      []wireMessage      `json:"messages"`
	Tools         []wireTool         `json:"tools,omitempty"`
	Stream        bool               `json:"stream"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StreamOptions *wireStreamOptions `json:"stream_options,omitempty"`
}

type chunkDelta struct {
	Content string `json:"content"`
	// Reasoning text: "reasoning" on Groq/OpenRouter, "reasoning_content"
	// on DeepSeek-style servers.
	Reasoning        string         `json:"reasoning"`
	ReasoningContent string         `json:"reasoning_content"`
	ToolCalls        []wireToolCall `json:"tool_calls"`
}

type chunkChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type chunkUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

type streamChunk struct {
	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
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

type toolCallState struct {
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
		return nil, fmt.Errorf("%s: marshal request: %w", p.Name(), err)
	}

	path := p.Path
	if path == "" {
		path = "/chat/completions"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.Authorize != nil {
		p.Authorize(httpReq.Header, opts.APIKey)
	} else if opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+opts.APIKey)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%s: HTTP %d: %s", p.Name(), resp.StatusCode, strings.TrimSpace(string(b)))
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

	calls := map[int]*toolCallState{}
	started := false
	reader := sse.NewReader(resp.Body)

	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: sse read: %w", p.Name(), err)
		}
		if ev.Data == "[DONE]" {
			break
		}
		if ev.Data == "" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("%s: stream error: %s", p.Name(), chunk.Error.Message)
		}

		if !started {
			emit(ai.StreamEventStart, "")
			started = true
		}

		if chunk.Usage != nil {
			partial.Usage.Input = chunk.Usage.PromptTokens
			partial.Usage.Output = chunk.Usage.CompletionTokens
			partial.Usage.TotalTokens = chunk.Usage.TotalTokens
			if chunk.Usage.PromptTokensDetails != nil {
				partial.Usage.CacheRead = chunk.Usage.PromptTokensDetails.CachedTokens
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := choice.Delta

		if r := delta.Reasoning + delta.ReasoningContent; r != "" {
			ai.AppendThinking(partial, r)
			emit(ai.StreamEventThinkingDelta, r)
		}
		if delta.Content != "" {
			ai.AppendText(partial, delta.Content)
			emit(ai.StreamEventTextDelta, delta.Content)
		}

		for _, tc := range delta.ToolCalls {
			st, ok := calls[tc.Index]
			if !ok {
				st = &toolCallState{}
				calls[tc.Index] = st
			}
			if tc.ID != "" {
				st.id = tc.ID
			}
			if tc.Function.Name != "" {
				st.name = tc.Function.Name
				emit(ai.StreamEventToolCallStart, tc.Function.Name)
			}
			if tc.Function.Arguments != "" {
				st.args.WriteString(tc.Function.Arguments)
				emit(ai.StreamEventToolCallDelta, tc.Function.Arguments)
			}
		}

		if choice.FinishReason != "" {
			partial.StopReason = mapStopReason(choice.FinishReason)
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		st := calls[i]
		partial.Content = append(partial.Content, ai.ToolCall{
			Type:      "tool_call",
			ID:        st.id,
			Name:      st.name,
			Arguments: ai.ParseArguments(st.args.String()),
		})
		emit(ai.StreamEventToolCallEnd, "")
	}

	if partial.StopReason == "" {
		partial.StopReason = ai.StopReasonStop
	}
	emit(ai.StreamEventDone, "")
	return partial, nil
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

// BuildRequest converts an ai.Context into a chat-completions request body.
func BuildRequest(model string, llmCtx ai.Context, opts ai.StreamOptions) (wireRequest, error) {
	req := wireRequest{
		Model:         model,
		Stream:        true,
		MaxTokens:     opts.MaxTokens,
		Temperature:   opts.Temperature,
		StreamOptions: &wireStreamOptions{IncludeUsage: true},
	}
	if llmCtx.SystemPrompt != "" {
		req.Messages = append(req.Messages, wireMessage{Role: "system", Content: llmCtx.SystemPrompt})
	}
	for _, m := range llmCtx.Messages {
		wm, err := convertMessage(m)
		if err != nil {
			return wireRequest{}, err
		}
		req.Messages = append(req.Messages, wm)
	}
	for _, t := range llmCtx.Tools {
		req.Tools = append(req.Tools, wireTool{
			Type:     "function",
			Function: wireToolFunc{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return req, nil
}

func convertMessage(m ai.Message) (wireMessage, error) {
	switch msg := m.(type) {
	case ai.UserMessage:
		parts := make([]wirePart, 0, len(msg.Content))
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				parts = append(parts, wirePart{Type: "text", Text: blk.Text})
			case ai.ImageContent:
				parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: dataURL(blk.MIMEType, blk.Data)}})
			case ai.FileContent:
				parts = append(parts, filePart(blk))
			}
		}
		if len(parts) == 1 && parts[0].Type == "text" {
			return wireMessage{Role: "user", Content: parts[0].Text}, nil
		}
		return wireMessage{Role: "user", Content: parts}, nil

	case ai.AssistantMessage:
		wm := wireMessage{Role: "assistant"}
		var text strings.Builder
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				text.WriteString(blk.Text)
			case ai.ToolCall:
				argsJSON, _ := json.Marshal(blk.Arguments)
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:       blk.ID,
					Type:     "function",
					Function: wireFunctionCall{Name: blk.Name, Arguments: string(argsJSON)},
				})
			}
		}
		if text.Len() > 0 || len(wm.ToolCalls) == 0 {
			wm.Content = text.String()
		}
		return wm, nil

	case ai.ToolResultMessage:
		var content strings.Builder
		for _, c := range msg.Content {
			if tc, ok := c.(ai.TextContent); ok {
				content.WriteString(tc.Text)
			}
		}
		return wireMessage{Role: "tool", ToolCallID: msg.ToolCallID, Content: content.String()}, nil
	}
	return wireMessage{}, fmt.Errorf("openai: unsupported message type %T", m)
}

func filePart(f ai.FileContent) wirePart {
	switch f.MIMEType {
	case "audio/wav", "audio/x-wav":
		return wirePart{Type: "input_audio", InputAudio: &wireAudio{Data: f.Data, Format: "wav"}}
	case "audio/mpeg", "audio/mp3":
		return wirePart{Type: "input_audio", InputAudio: &wireAudio{Data: f.Data, Format: "mp3"}}
	}
	name := f.Name
	if name == "" {
		name = "attachment.pdf"
	}
	return wirePart{Type: "file", File: &wireFile{Filename: name, FileData: dataURL(f.MIMEType, f.Data)}}
}

func dataURL(mime, b64 string) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, b64)
}

func mapStopReason(s string) ai.StopReason {
	switch s {
	case "stop":
		return ai.StopReasonStop
	case "length":
		return ai.StopReasonLength
	case "tool_calls", "function_call":
		return ai.StopReasonTool
	default:
		return ai.StopReason(s)
	}
}
