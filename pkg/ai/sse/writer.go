package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer frames JSON payloads as "data: <json>\n\n" lines and flushes after
// every event when the underlying writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. Flushing is enabled when w implements http.Flusher.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// CanFlush reports whether events reach the client as they are written.
func (w *Writer) CanFlush() bool { return w.flusher != nil }

// WriteJSON marshals v and writes it as one data event.
func (w *Writer) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	return w.WriteData(data)
}

// WriteData writes a raw single-line payload as one data event.
func (w *Writer) WriteData(data []byte) error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// SetHeaders declares an uncached, kept-alive event stream on h.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
