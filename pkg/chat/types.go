// Package chat defines the uniform provider contract: the turn request every
// adapter accepts, the Adapter interface, the immutable Registry that maps
// model identifiers to adapters, and the error taxonomy shared by the
// dispatcher and the transports.
package chat

import (
	"strconv"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Attachment is an immutable inline file keyed by MIME type.
type Attachment struct {
	MIMEType string
	Data     []byte
	Name     string
}

// Request is one chat turn. History is in chronological order and adapters
// must not reorder it.
type Request struct {
	Model       string
	Message     string
	History     []Turn
	Attachments []Attachment
	ChatID      string
}

// Validate reports the first missing required field.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Reason: "is required"}
	}
	for i, t := range r.History {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return &ValidationError{Field: "previousMessages", Reason: "entry " + strconv.Itoa(i) + " has unknown role " + string(t.Role)}
		}
	}
	return nil
}

// NormalizeMIME lower-cases a MIME type, drops parameters and maps the
// non-standard image/jpg alias to image/jpeg.
func NormalizeMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}
