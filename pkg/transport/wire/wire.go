// Package wire holds the JSON shapes shared by the HTTP-SSE and WebSocket
// transports: the inbound turn request and the event payloads.
package wire

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
)

// ChatRequest is the body of POST /chat-stream and the data of a WebSocket
// chat_start frame.
type ChatRequest struct {
	Message          string      `json:"message"`
	Model            string      `json:"model"`
	PreviousMessages []chat.Turn `json:"previousMessages,omitempty"`
	Images           []Image     `json:"images,omitempty"`
	ChatID           string      `json:"chatId,omitempty"`
}

// Image is an inline attachment. Despite the name it carries any MIME type
// (PDF and audio included). Data is base64, optionally as a data URL.
type Image struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
	Name     string `json:"name,omitempty"`
}

// ToRequest decodes attachments and validates the result. Errors are
// *chat.ValidationError.
func (r ChatRequest) ToRequest() (chat.Request, error) {
	req := chat.Request{
		Model:   strings.TrimSpace(r.Model),
		Message: r.Message,
		History: r.PreviousMessages,
		ChatID:  r.ChatID,
	}
	for i, img := range r.Images {
		att, err := img.decode()
		if err != nil {
			return req, &chat.ValidationError{Field: "images", Reason: fmt.Sprintf("entry %d: %v", i, err)}
		}
		req.Attachments = append(req.Attachments, att)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// EncodeImage is the inverse of ToRequest's attachment decoding.
func EncodeImage(a chat.Attachment) Image {
	return Image{MIMEType: a.MIMEType, Data: base64.StdEncoding.EncodeToString(a.Data), Name: a.Name}
}

func (img Image) decode() (chat.Attachment, error) {
	mime, data := img.MIMEType, strings.TrimSpace(img.Data)
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return chat.Attachment{}, fmt.Errorf("malformed data URL")
		}
		if mime == "" {
			mime = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	if mime == "" {
		return chat.Attachment{}, fmt.Errorf("missing mimeType")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(data); err != nil {
			return chat.Attachment{}, fmt.Errorf("invalid base64 data")
		}
	}
	return chat.Attachment{MIMEType: chat.NormalizeMIME(mime), Data: raw, Name: img.Name}, nil
}

// StatusData is the payload of a status event.
type StatusData struct {
	Status string `json:"status"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Error string `json:"error"`
}

// Authorized reports whether r carries token as "Authorization: Bearer" or,
// for browser WebSocket clients that cannot set headers, as ?token=.
func Authorized(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		got = r.URL.Query().Get("token")
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
