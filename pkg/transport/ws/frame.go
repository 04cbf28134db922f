// Package ws carries chat turns over WebSocket. The Hub is the server side;
// Client is a reconnecting consumer.
package ws

import (
	"encoding/json"
	"time"
)

// Frame types.
const (
	TypeChatStart    = "chat_start"
	TypeChatStatus   = "chat_status"
	TypeChatChunk    = "chat_chunk"
	TypeChatComplete = "chat_complete"
	TypeChatError    = "chat_error"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Error messages for frames the hub cannot act on.
const (
	MsgInvalidFormat = "invalid message format"
	MsgUnknownType   = "unknown message type"
)

// Frame is one JSON message in either direction.
type Frame struct {
	Type      string          `json:"type"`
	ChatID    string          `json:"chatId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	// Timestamp is Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewFrame marshals data into a frame stamped with now.
func NewFrame(typ, chatID, messageID string, data any, now time.Time) (Frame, error) {
	f := Frame{Type: typ, ChatID: chatID, MessageID: messageID, Timestamp: now.UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Frame{}, err
		}
		f.Data = raw
	}
	return f, nil
}

// Decode unmarshals the frame's data into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}
