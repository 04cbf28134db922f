package ai

import (
	"errors"
	"regexp"
)

// ErrContextOverflow is reported when a vendor rejects a turn because the
// conversation no longer fits the model's context window.
var ErrContextOverflow = errors.New("conversation exceeds the model's context window")

// Vendor error texts that mean the prompt was too long.
var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)prompt is too long`),                     // Anthropic
	regexp.MustCompile(`(?i)input is too long for requested model`),  // Bedrock
	regexp.MustCompile(`(?i)exceed.*context window`),                 // OpenAI
	regexp.MustCompile(`(?i)input token count.*exceeds the maximum`), // Gemini
	regexp.MustCompile(`(?i)reduce the length of the messages`),      // Groq
	regexp.MustCompile(`(?i)maximum context length is \d+ tokens`),   // OpenRouter, Together
	regexp.MustCompile(`(?i)context[_ ]length[_ ]exceeded`),
	regexp.MustCompile(`(?i)too many tokens`),
	regexp.MustCompile(`(?i)token limit exceeded`),
}

// IsContextOverflow reports whether a vendor failure is a context-window
// overflow. Both wait errors and error-stopped messages are inspected;
// either may be nil.
func IsContextOverflow(msg *AssistantMessage, err error) bool {
	if errors.Is(err, ErrContextOverflow) {
		return true
	}
	var text string
	switch {
	case err != nil:
		text = err.Error()
	case msg != nil && msg.StopReason == StopReasonError:
		text = msg.ErrorMessage
	}
	if text == "" {
		return false
	}
	for _, re := range overflowPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
