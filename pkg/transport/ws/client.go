package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
)

// Status is the client's connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusDisconnected is permanent: reconnection gave up or Close was called.
	StatusDisconnected Status = "disconnected"
)

// Client defaults.
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

// ErrDisconnected is returned by Send once the client has given up.
var ErrDisconnected = errors.New("ws: disconnected")

// ClientConfig configures Dial.
type ClientConfig struct {
	URL string
	// Token is sent as a bearer token when set.
	Token  string
	Header http.Header
	Dialer *websocket.Dialer
	// BaseDelay is the wait before the first reconnect attempt; each further
	// attempt doubles it.
	BaseDelay   time.Duration
	MaxAttempts int
	// OnFrame receives every inbound frame on the read goroutine.
	OnFrame func(Frame)
	// OnStatus is called on every status change.
	OnStatus func(Status)
	Logger   *slog.Logger
}

// Client is a WebSocket client that reconnects with exponential backoff and
// queues outbound frames while the socket is down.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	queue  []Frame
}

// Dial connects to cfg.URL. The first connection must succeed; later drops
// are retried in the background.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{cfg: cfg, logger: logger}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.setStatus(StatusConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.cancel()
		c.setStatus(StatusDisconnected)
		return nil, err
	}
	c.attach(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := c.cfg.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// attach installs conn, flushes the queue in order and starts reading. A
// conn dialed after Close is closed instead, and attach reports false.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	for len(c.queue) > 0 {
		if err := conn.WriteJSON(c.queue[0]); err != nil {
			c.logger.Debug("ws client: flush failed", "err", err)
			break
		}
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()
	c.setStatus(StatusConnected)
	go c.read(conn)
	return true
}

func (c *Client) read(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Debug("ws client: connection lost", "err", err)
			c.reconnect(conn)
			return
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(f)
		}
	}
}

func (c *Client) reconnect(lost *websocket.Conn) {
	c.mu.Lock()
	if c.conn == lost {
		c.conn = nil
	}
	c.mu.Unlock()
	c.setStatus(StatusReconnecting)

	delay := c.cfg.BaseDelay
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}
		conn, err := c.dial(c.ctx)
		if err == nil {
			if c.attach(conn) {
				c.logger.Info("ws client: reconnected", "attempt", attempt)
			}
			return
		}
		c.logger.Debug("ws client: reconnect failed", "attempt", attempt, "err", err)
		delay *= 2
	}
	c.logger.Warn("ws client: giving up", "attempts", c.cfg.MaxAttempts)
	c.setStatus(StatusDisconnected)
}

// Send writes f now, or queues it while reconnecting.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusDisconnected {
		return ErrDisconnected
	}
	if c.conn == nil || len(c.queue) > 0 {
		c.queue = append(c.queue, f)
		return nil
	}
	if err := c.conn.WriteJSON(f); err != nil {
		// The read goroutine notices the broken socket and reconnects.
		c.queue = append(c.queue, f)
		c.conn.Close()
	}
	return nil
}

// StartChat sends a chat_start frame for req.
func (c *Client) StartChat(req wire.ChatRequest, messageID string) error {
	f, err := NewFrame(TypeChatStart, req.ChatID, messageID, req, time.Now())
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s || c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}

// Close stops reconnecting and closes the socket.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setStatus(StatusDisconnected)
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
