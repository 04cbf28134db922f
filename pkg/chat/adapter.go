package chat

import "context"

// Adapter turns one Request into a lazy sequence of text fragments for a
// single model.
//
// The vendor call starts eagerly inside Generate. The returned channel is
// single-pass and is always closed; fragments may be empty and are filtered
// by the consumer. wait blocks until the call has finished and returns nil or
// a *ProviderError. Callers must drain the channel before calling wait.
type Adapter interface {
	// Name is the model identifier the adapter is registered under.
	Name() string

	// Supports reports whether attachments of the given MIME type are
	// forwarded to the vendor. Others are dropped silently.
	Supports(mime string) bool

	Generate(ctx context.Context, req Request) (fragments <-chan string, wait func() error)
}
