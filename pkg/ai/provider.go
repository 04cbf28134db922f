package ai

import "context"

// Provider streams one LLM response for a given context.
//
// Events are sent on the returned channel, which is closed when the vendor
// call ends. Implementations must close the channel even when ctx is
// cancelled so callers can always range over it. The wait func blocks until
// the call is finished and returns the final message or the vendor error.
type Provider interface {
	// Name returns the vendor identifier, e.g. "openai", "anthropic".
	Name() string

	Stream(
		ctx context.Context,
		model string,
		llmCtx Context,
		opts StreamOptions,
	) (<-chan StreamEvent, func() (*AssistantMessage, error))
}

// Emit sends ev on events unless ctx is done first. It reports whether the
// event was delivered.
func Emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Snapshot returns a copy of msg whose content slice can be retained by a
// consumer while the producer keeps appending.
func Snapshot(msg *AssistantMessage) *AssistantMessage {
	cp := *msg
	cp.Content = make([]ContentBlock, len(msg.Content))
	copy(cp.Content, msg.Content)
	return &cp
}

// AppendText adds delta to the last text block of msg, starting a new block
// when the last block is not text.
func AppendText(msg *AssistantMessage, delta string) {
	if n := len(msg.Content); n > 0 {
		if tb, ok := msg.Content[n-1].(TextContent); ok {
			tb.Text += delta
			msg.Content[n-1] = tb
			return
		}
	}
	msg.Content = append(msg.Content, TextContent{Type: "text", Text: delta})
}

// AppendThinking is AppendText for thinking blocks.
func AppendThinking(msg *AssistantMessage, delta string) {
	if n := len(msg.Content); n > 0 {
		if tb, ok := msg.Content[n-1].(ThinkingContent); ok {
			tb.Thinking += delta
			msg.Content[n-1] = tb
			return
		}
	}
	msg.Content = append(msg.Content, ThinkingContent{Type: "thinking", Thinking: delta})
}
