// Package google implements ai.Provider for the Gemini REST API
// (streamGenerateContent with alt=sse). No Google SDK, plain HTTP + SSE.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/sse"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

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

func (p *Provider) Name() string { return "google" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type wirePart struct {
	Text             string        `json:"text,omitempty"`
	Thought          bool          `json:"thought,omitempty"`
	InlineData       *wireInline   `json:"inlineData,omitempty"`
	FunctionCall     *wireFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFuncResp `json:"functionResponse,omitempty"`
}

type wireInline struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireFuncCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type wireFuncResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireFuncDecl struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	ParametersJsonSchema json.RawMessage `json:"parametersJsonSchema,omitempty"`
}

type wireTool struct {
	FunctionDeclarations []wireFuncDecl `json:"functionDeclarations"`
}

type wireThinkConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
}

type wireGenConfig struct {
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens int              `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *wireThinkConfig `json:"thinkingConfig,omitempty"`
}

type wireRequest struct {
	SystemInstruction *wireContent   `json:"systemInstruction,omitempty"`
	Contents          []wireContent  `json:"contents"`
	Tools             []wireTool     `json:"tools,omitempty"`
	GenerationConfig  *wireGenConfig `json:"generationConfig,omitempty"`
}

type wireChunk struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
		TotalTokenCount         int `json:"totalTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
	} `json:"usageMetadata"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
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

func (p *Provider) stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
	events chan<- ai.StreamEvent,
) (*ai.AssistantMessage, error) {
	req, err := BuildRequest(llmCtx, opts)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", opts.APIKey)

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("google: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  "google",
		Timestamp: time.Now().UnixMilli(),
	}
	send := func(t ai.StreamEventType, delta string) {
		ai.Emit(ctx, events, ai.StreamEvent{Type: t, Partial: ai.Snapshot(partial), Delta: delta})
	}

	started := false
	reader := sse.NewReader(resp.Body)

	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("google: sse read: %w", err)
		}
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			continue
		}
		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("google: prompt blocked: %s", chunk.PromptFeedback.BlockReason)
		}

		if !started {
			send(ai.StreamEventStart, "")
			started = true
		}

		if u := chunk.UsageMetadata; u.TotalTokenCount > 0 {
			partial.Usage.Input = u.PromptTokenCount
			partial.Usage.Output = u.CandidatesTokenCount + u.ThoughtsTokenCount
			partial.Usage.CacheRead = u.CachedContentTokenCount
			partial.Usage.TotalTokens = u.TotalTokenCount
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		cand := chunk.Candidates[0]
		if cand.FinishReason != "" {
			partial.StopReason = mapStopReason(cand.FinishReason)
		}

		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				tc := ai.ToolCall{
					Type:      "tool_call",
					ID:        part.FunctionCall.Name + "_" + uuid.NewString()[:8],
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				}
				if tc.Arguments == nil {
					tc.Arguments = map[string]any{}
				}
				partial.Content = append(partial.Content, tc)
				send(ai.StreamEventToolCallStart, tc.Name)
				send(ai.StreamEventToolCallEnd, "")
			case part.Text == "":
			case part.Thought:
				ai.AppendThinking(partial, part.Text)
				send(ai.StreamEventThinkingDelta, part.Text)
			default:
				ai.AppendText(partial, part.Text)
				send(ai.StreamEventTextDelta, part.Text)
			}
		}
	}

	if len(partial.ToolCalls()) > 0 {
		partial.StopReason = ai.StopReasonTool
	}
	if partial.StopReason == "" {
		partial.StopReason = ai.StopReasonStop
	}
	send(ai.StreamEventDone, "")
	return partial, nil
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

// BuildRequest converts an ai.Context into a Gemini request body.
func BuildRequest(llmCtx ai.Context, opts ai.StreamOptions) (wireRequest, error) {
	var req wireRequest

	if llmCtx.SystemPrompt != "" {
		req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: llmCtx.SystemPrompt}}}
	}

	cfg := wireGenConfig{Temperature: opts.Temperature, MaxOutputTokens: opts.MaxTokens}
	if opts.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &wireThinkConfig{IncludeThoughts: true, ThinkingBudget: opts.ThinkingBudget}
	}
	if cfg != (wireGenConfig{}) {
		req.GenerationConfig = &cfg
	}

	for _, m := range llmCtx.Messages {
		wc, err := convertMessage(m)
		if err != nil {
			return wireRequest{}, err
		}
		if wc == nil {
			continue
		}
		if n := len(req.Contents); n > 0 && req.Contents[n-1].Role == wc.Role {
			req.Contents[n-1].Parts = append(req.Contents[n-1].Parts, wc.Parts...)
			continue
		}
		req.Contents = append(req.Contents, *wc)
	}

	if len(llmCtx.Tools) > 0 {
		decls := make([]wireFuncDecl, 0, len(llmCtx.Tools))
		for _, t := range llmCtx.Tools {
			decls = append(decls, wireFuncDecl{Name: t.Name, Description: t.Description, ParametersJsonSchema: t.Parameters})
		}
		req.Tools = []wireTool{{FunctionDeclarations: decls}}
	}
	return req, nil
}

func convertMessage(m ai.Message) (*wireContent, error) {
	switch msg := m.(type) {
	case ai.UserMessage:
		var parts []wirePart
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				parts = append(parts, wirePart{Text: blk.Text})
			case ai.ImageContent:
				parts = append(parts, wirePart{InlineData: &wireInline{MIMEType: blk.MIMEType, Data: blk.Data}})
			case ai.FileContent:
				parts = append(parts, wirePart{InlineData: &wireInline{MIMEType: blk.MIMEType, Data: blk.Data}})
			}
		}
		return &wireContent{Role: "user", Parts: parts}, nil

	case ai.AssistantMessage:
		var parts []wirePart
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				if strings.TrimSpace(blk.Text) != "" {
					parts = append(parts, wirePart{Text: blk.Text})
				}
			case ai.ToolCall:
				parts = append(parts, wirePart{FunctionCall: &wireFuncCall{Name: blk.Name, Args: blk.Arguments}})
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return &wireContent{Role: "model", Parts: parts}, nil

	case ai.ToolResultMessage:
		var text strings.Builder
		for _, c := range msg.Content {
			if tc, ok := c.(ai.TextContent); ok {
				text.WriteString(tc.Text)
			}
		}
		key := "output"
		if msg.IsError {
			key = "error"
		}
		part := wirePart{FunctionResponse: &wireFuncResp{Name: msg.ToolName, Response: map[string]any{key: text.String()}}}
		return &wireContent{Role: "user", Parts: []wirePart{part}}, nil
	}
	return nil, fmt.Errorf("google: unsupported message type %T", m)
}

func mapStopReason(r string) ai.StopReason {
	switch r {
	case "STOP":
		return ai.StopReasonStop
	case "MAX_TOKENS":
		return ai.StopReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return ai.StopReasonError
	default:
		return ai.StopReasonStop
	}
}
