// Package bedrock implements ai.Provider for Amazon Bedrock's ConverseStream
// API (used for the Nova models).
//
// Credentials come from the AWS SDK v2 default chain: environment variables,
// a named profile, the shared credentials file, or an instance/task role.
package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brdoc "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
)

type Provider struct {
	Region  string
	Profile string

	mu     sync.Mutex
	client *bedrockruntime.Client
}

func New(region, profile string) *Provider {
	return &Provider{Region: region, Profile: profile}
}

func (p *Provider) Name() string { return "bedrock" }

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
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("bedrock: build client: %w", err)
	}

	input, err := BuildInput(model, llmCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("bedrock: build input: %w", err)
	}

	resp, err := client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: ConverseStream: %w", err)
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  "bedrock",
		Timestamp: time.Now().UnixMilli(),
	}
	send := func(t ai.StreamEventType, delta string) {
		ai.Emit(ctx, events, ai.StreamEvent{Type: t, Partial: ai.Snapshot(partial), Delta: delta})
	}
	send(ai.StreamEventStart, "")

	type toolState struct {
		id, name string
		args     strings.Builder
	}
	tools := map[int32]*toolState{}

	stream := resp.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				idx := aws.ToInt32(ev.Value.ContentBlockIndex)
				tools[idx] = &toolState{id: aws.ToString(tu.Value.ToolUseId), name: aws.ToString(tu.Value.Name)}
				send(ai.StreamEventToolCallStart, aws.ToString(tu.Value.Name))
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			idx := aws.ToInt32(ev.Value.ContentBlockIndex)
			switch d := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				ai.AppendText(partial, d.Value)
				send(ai.StreamEventTextDelta, d.Value)
			case *types.ContentBlockDeltaMemberReasoningContent:
				if t, ok := d.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
					ai.AppendThinking(partial, t.Value)
					send(ai.StreamEventThinkingDelta, t.Value)
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if st := tools[idx]; st != nil {
					st.args.WriteString(aws.ToString(d.Value.Input))
					send(ai.StreamEventToolCallDelta, aws.ToString(d.Value.Input))
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			idx := aws.ToInt32(ev.Value.ContentBlockIndex)
			if st := tools[idx]; st != nil {
				partial.Content = append(partial.Content, ai.ToolCall{
					Type:      "tool_call",
					ID:        st.id,
					Name:      st.name,
					Arguments: ai.ParseArguments(st.args.String()),
				})
				delete(tools, idx)
				send(ai.StreamEventToolCallEnd, "")
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			partial.StopReason = mapStopReason(ev.Value.StopReason)

		case *types.ConverseStreamOutputMemberMetadata:
			if u := ev.Value.Usage; u != nil {
				partial.Usage.Input = int(aws.ToInt32(u.InputTokens))
				partial.Usage.Output = int(aws.ToInt32(u.OutputTokens))
				partial.Usage.TotalTokens = int(aws.ToInt32(u.TotalTokens))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock: stream error: %w", err)
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

// getClient builds the runtime client once; credential resolution is not
// free and the client is safe for concurrent use.
func (p *Provider) getClient(ctx context.Context) (*bedrockruntime.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if p.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(p.Region))
	}
	if p.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(p.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	p.client = bedrockruntime.NewFromConfig(cfg)
	return p.client, nil
}

// BuildInput converts an ai.Context into a ConverseStream request.
func BuildInput(model string, llmCtx ai.Context, opts ai.StreamOptions) (*bedrockruntime.ConverseStreamInput, error) {
	input := &bedrockruntime.ConverseStreamInput{ModelId: aws.String(model)}

	if llmCtx.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: llmCtx.SystemPrompt},
		}
	}

	ic := &types.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		ic.MaxTokens = aws.Int32(int32(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		ic.Temperature = aws.Float32(float32(*opts.Temperature))
	}
	input.InferenceConfig = ic

	msgs, err := convertMessages(llmCtx.Messages)
	if err != nil {
		return nil, err
	}
	input.Messages = msgs

	if len(llmCtx.Tools) > 0 {
		toolList := make([]types.Tool, 0, len(llmCtx.Tools))
		for _, t := range llmCtx.Tools {
			var schema map[string]any
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
			}
			toolList = append(toolList, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(t.Name),
					Description: aws.String(t.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{Value: brdoc.NewLazyDocument(schema)},
				},
			})
		}
		input.ToolConfig = &types.ToolConfiguration{
			Tools:      toolList,
			ToolChoice: &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}},
		}
	}
	return input, nil
}

func convertMessages(msgs []ai.Message) ([]types.Message, error) {
	var out []types.Message
	appendBlocks := func(role types.ConversationRole, blocks []types.ContentBlock) {
		if len(blocks) == 0 {
			return
		}
		// Converse requires alternating roles; tool results share one user turn.
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch msg := m.(type) {
		case ai.UserMessage:
			var blocks []types.ContentBlock
			for _, c := range msg.Content {
				switch blk := c.(type) {
				case ai.TextContent:
					blocks = append(blocks, &types.ContentBlockMemberText{Value: blk.Text})
				case ai.ImageContent:
					raw, err := base64.StdEncoding.DecodeString(blk.Data)
					if err != nil {
						return nil, fmt.Errorf("image: %w", err)
					}
					blocks = append(blocks, &types.ContentBlockMemberImage{
						Value: types.ImageBlock{Format: imageFormat(blk.MIMEType), Source: &types.ImageSourceMemberBytes{Value: raw}},
					})
				case ai.FileContent:
					if blk.MIMEType != "application/pdf" {
						continue
					}
					raw, err := base64.StdEncoding.DecodeString(blk.Data)
					if err != nil {
						return nil, fmt.Errorf("document: %w", err)
					}
					blocks = append(blocks, &types.ContentBlockMemberDocument{
						Value: types.DocumentBlock{
							Format: types.DocumentFormatPdf,
							Name:   aws.String(documentName(blk.Name)),
							Source: &types.DocumentSourceMemberBytes{Value: raw},
						},
					})
				}
			}
			appendBlocks(types.ConversationRoleUser, blocks)

		case ai.AssistantMessage:
			var blocks []types.ContentBlock
			for _, c := range msg.Content {
				switch blk := c.(type) {
				case ai.TextContent:
					if strings.TrimSpace(blk.Text) != "" {
						blocks = append(blocks, &types.ContentBlockMemberText{Value: blk.Text})
					}
				case ai.ToolCall:
					args := blk.Arguments
					if args == nil {
						args = map[string]any{}
					}
					blocks = append(blocks, &types.ContentBlockMemberToolUse{
						Value: types.ToolUseBlock{
							ToolUseId: aws.String(blk.ID),
							Name:      aws.String(blk.Name),
							Input:     brdoc.NewLazyDocument(args),
						},
					})
				}
			}
			appendBlocks(types.ConversationRoleAssistant, blocks)

		case ai.ToolResultMessage:
			var content []types.ToolResultContentBlock
			for _, c := range msg.Content {
				if tc, ok := c.(ai.TextContent); ok {
					content = append(content, &types.ToolResultContentBlockMemberText{Value: tc.Text})
				}
			}
			status := types.ToolResultStatusSuccess
			if msg.IsError {
				status = types.ToolResultStatusError
			}
			appendBlocks(types.ConversationRoleUser, []types.ContentBlock{
				&types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Status:    status,
					Content:   content,
				}},
			})

		default:
			return nil, fmt.Errorf("unsupported message type %T", m)
		}
	}
	return out, nil
}

// documentName keeps only the characters Converse accepts in document names.
func documentName(name string) string {
	name = strings.TrimSuffix(name, ".pdf")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == ' ':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "attachment"
	}
	return b.String()
}

func mapStopReason(r types.StopReason) ai.StopReason {
	switch r {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return ai.StopReasonStop
	case types.StopReasonMaxTokens:
		return ai.StopReasonLength
	case types.StopReasonToolUse:
		return ai.StopReasonTool
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return ai.StopReasonError
	default:
		return ai.StopReasonStop
	}
}

func imageFormat(mimeType string) types.ImageFormat {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatPng
	}
}
