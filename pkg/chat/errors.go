package chat

import "fmt"

// ValidationError is a missing or malformed request field. It is reported
// before any stream opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// UnknownModelError is returned when a model identifier is not registered.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

// ProviderError wraps any failure of a vendor call.
type ProviderError struct {
	Model    string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider error [%s]: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("provider error [%s/%s]: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PanicError converts a value recovered from a panicking adapter into a
// *ProviderError.
func PanicError(model, provider string, r any) error {
	return &ProviderError{Model: model, Provider: provider, Err: fmt.Errorf("adapter panic: %v", r)}
}

// ToolError is a failed tool invocation. It never aborts a turn; its text
// becomes the tool's result content.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// TransportError is a connection-level failure: a dropped socket or an
// unparseable inbound frame.
type TransportError struct {
	Op  string // "read", "write", "decode", "dial"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
