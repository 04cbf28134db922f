package httpsse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/sse"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/history"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

// RemoteError is a turn failure reported by the server as an error event.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

// StatusError is a non-200 answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// ErrIncomplete is returned when the stream ends without a terminal event.
var ErrIncomplete = errors.New("httpsse: stream ended before complete")

// Client talks to a Server.
type Client struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token      string
	HTTPClient *http.Client
	// Path overrides the stream path, default /chat-stream.
	Path string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// Stream posts one turn and calls fn for every event in order. It returns
// the completion record, a *RemoteError if the turn failed, or the first
// error fn returns.
func (c *Client) Stream(ctx context.Context, in wire.ChatRequest, fn func(Event) error) (*turn.Record, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("httpsse: marshal: %w", err)
	}
	path := c.Path
	if path == "" {
		path = "/chat-stream"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpsse: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	r := sse.NewReader(resp.Body)
	for {
		raw, err := r.Next()
		if err == io.EOF {
			return nil, ErrIncomplete
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("httpsse: read: %w", err)
		}
		if raw.Data == "" || raw.Data == "[DONE]" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw.Data), &ev); err != nil {
			return nil, fmt.Errorf("httpsse: bad event: %w", err)
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return nil, err
			}
		}
		switch ev.Type {
		case EventComplete:
			var rec turn.Record
			if err := json.Unmarshal(ev.Data, &rec); err != nil {
				return nil, fmt.Errorf("httpsse: bad complete event: %w", err)
			}
			return &rec, nil
		case EventError:
			var e wire.ErrorData
			json.Unmarshal(ev.Data, &e)
			return nil, &RemoteError{Message: e.Error}
		}
	}
}

// Models fetches the server's model catalog.
func (c *Client) Models(ctx context.Context) (models.Catalog, error) {
	var out struct {
		Models models.Catalog `json:"models"`
	}
	if err := c.getJSON(ctx, "/models", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// History fetches the stored turns of chatID; limit 0 means all.
func (c *Client) History(ctx context.Context, chatID string, limit int) ([]history.Entry, error) {
	path := "/chats/" + url.PathEscape(chatID) + "/turns"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Turns []history.Entry `json:"turns"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("httpsse: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func readStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e wire.ErrorData
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
