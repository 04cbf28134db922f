package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

// Defaults for Config.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultMaxMissedPongs    = 1
	DefaultWriteTimeout      = 10 * time.Second
	DefaultMaxMessageBytes   = 32 << 20
)

// errGone is returned by a turn sink once its connection or turn is no
// longer current.
var errGone = errors.New("ws: turn no longer current")

// Config configures a Hub.
type Config struct {
	Runner *turn.Runner
	// AuthToken, when set, must be presented as a bearer token or ?token=.
	AuthToken string
	// AllowedOrigins lists accepted Origin headers; "*" accepts any. Empty
	// means same-origin only.
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	MaxMissedPongs    int
	WriteTimeout      time.Duration
	MaxMessageBytes   int64
	Logger            *slog.Logger
	Now               func() time.Time
}

// ChatState is the per-chat part of a Session.
type ChatState struct {
	Model        string
	IsLoading    bool
	LastActivity time.Time
}

// Session lives as long as its connection.
type Session struct {
	SessionID string
	ConnID    string
	Chats     map[string]*ChatState
}

type turnOwner struct {
	TurnID string
	ConnID string
}

// conn is one upgraded socket.
type conn struct {
	id      string
	ws      *websocket.Conn
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	missed  atomic.Int32

	writeMu sync.Mutex
	closed  bool
}

// Hub accepts WebSocket connections and runs turns for them.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*conn
	turns map[string]turnOwner // chatID -> current turn

	// afterSend observes every frame written by a turn.
	afterSend func(connID string, f Frame)
}

func NewHub(cfg Config) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxMissedPongs <= 0 {
		cfg.MaxMissedPongs = DefaultMaxMissedPongs
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*conn),
		turns:  make(map[string]turnOwner),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// Run pings every connection each HeartbeatInterval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.sweep()
		}
	}
}

// sweep terminates connections that missed too many pongs and pings the rest.
func (h *Hub) sweep() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(h.cfg.WriteTimeout)
	for _, c := range conns {
		if int(c.missed.Load()) >= h.cfg.MaxMissedPongs {
			h.logger.Info("ws: heartbeat timeout", "conn_id", c.id)
			h.drop(c)
			continue
		}
		c.missed.Add(1)
		if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.logger.Debug("ws: ping failed", "conn_id", c.id, "err", err)
			h.drop(c)
		}
	}
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Session returns a snapshot of the session on connection connID.
func (h *Hub) Session(connID string) (Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return Session{}, false
	}
	return c.session.snapshot(), true
}

// Sessions returns snapshots of every live session.
func (h *Hub) Sessions() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Session, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.session.snapshot())
	}
	return out
}

// snapshot copies s. Callers hold the hub lock.
func (s *Session) snapshot() Session {
	cp := Session{SessionID: s.SessionID, ConnID: s.ConnID, Chats: make(map[string]*ChatState, len(s.Chats))}
	for id, st := range s.Chats {
		v := *st
		cp.Chats[id] = &v
	}
	return cp
}

// Close terminates every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.drop(c)
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AuthToken != "" && !wire.Authorized(r, h.cfg.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws: upgrade failed", "err", err)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
	}
	c.session = &Session{SessionID: sessionID, ConnID: c.id, Chats: make(map[string]*ChatState)}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	log := h.logger.With("conn_id", c.id, "session_id", sessionID)
	log.Info("ws: connected", "remote", r.RemoteAddr)
	defer func() {
		h.drop(c)
		log.Info("ws: disconnected")
	}()

	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	ws.SetPongHandler(func(string) error {
		c.missed.Store(0)
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws: read failed", "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			h.reply(c, TypeChatError, "", "", wire.ErrorData{Error: MsgInvalidFormat})
			continue
		}
		h.handle(c, f, log)
	}
}

func (h *Hub) handle(c *conn, f Frame, log *slog.Logger) {
	switch f.Type {
	case TypePing:
		h.reply(c, TypePong, f.ChatID, f.MessageID, nil)
	case TypeChatStart:
		h.start(c, f, log)
	default:
		h.reply(c, TypeChatError, f.ChatID, f.MessageID, wire.ErrorData{Error: MsgUnknownType})
	}
}

func (h *Hub) start(c *conn, f Frame, log *slog.Logger) {
	var body wire.ChatRequest
	if len(f.Data) == 0 || f.Decode(&body) != nil {
		h.reply(c, TypeChatError, f.ChatID, f.MessageID, wire.ErrorData{Error: MsgInvalidFormat})
		return
	}
	chatID := f.ChatID
	if chatID == "" {
		chatID = body.ChatID
	}
	if chatID == "" {
		chatID = uuid.NewString()
	}
	body.ChatID = chatID
	req, err := body.ToRequest()
	if err != nil {
		h.reply(c, TypeChatError, chatID, f.MessageID, wire.ErrorData{Error: err.Error()})
		return
	}

	turnID := uuid.NewString()
	messageID := f.MessageID
	if messageID == "" {
		messageID = turnID
	}

	h.mu.Lock()
	if prev, ok := h.turns[chatID]; ok {
		log.Debug("ws: turn superseded", "chat_id", chatID, "turn_id", prev.TurnID)
	}
	h.turns[chatID] = turnOwner{TurnID: turnID, ConnID: c.id}
	c.session.Chats[chatID] = &ChatState{Model: req.Model, IsLoading: true, LastActivity: h.cfg.Now()}
	h.mu.Unlock()

	sink := &turnSink{hub: h, conn: c, chatID: chatID, turnID: turnID, messageID: messageID}
	go func() {
		defer h.finish(c, chatID, turnID)
		_, err := h.cfg.Runner.Run(c.ctx, turn.Input{ChatID: chatID, TurnID: turnID, Request: req}, sink)
		if errors.Is(err, turn.ErrStop) {
			log.Debug("ws: turn stopped", "chat_id", chatID, "turn_id", turnID)
		}
	}()
}

// finish clears the turn entry if this turn still owns it.
func (h *Hub) finish(c *conn, chatID, turnID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if owner, ok := h.turns[chatID]; ok && owner.TurnID == turnID {
		delete(h.turns, chatID)
	}
	if st, ok := c.session.Chats[chatID]; ok {
		if owner, busy := h.turns[chatID]; !busy || owner.ConnID != c.id {
			st.IsLoading = false
		}
		st.LastActivity = h.cfg.Now()
	}
}

// drop unregisters c, purges its turns and closes the socket. It is safe to
// call more than once.
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; ok {
		delete(h.conns, c.id)
		for chatID, owner := range h.turns {
			if owner.ConnID == c.id {
				delete(h.turns, chatID)
			}
		}
		for _, st := range c.session.Chats {
			st.IsLoading = false
		}
		clear(c.session.Chats)
	}
	h.mu.Unlock()

	c.cancel()
	c.writeMu.Lock()
	if !c.closed {
		c.closed = true
		c.ws.Close()
	}
	c.writeMu.Unlock()
}

// sendTurn writes f only while c is registered and turnID is the chat's
// current turn. The hub lock is held until the connection's write lock is
// taken, so once drop has returned no turn can write to c.
func (h *Hub) sendTurn(c *conn, chatID, turnID string, f Frame) error {
	h.mu.Lock()
	_, live := h.conns[c.id]
	owner, tracked := h.turns[chatID]
	if !live || !tracked || owner.TurnID != turnID || owner.ConnID != c.id {
		h.mu.Unlock()
		return errGone
	}
	c.writeMu.Lock()
	h.mu.Unlock()
	defer c.writeMu.Unlock()

	if c.closed {
		return errGone
	}
	if err := h.write(c, f); err != nil {
		return err
	}
	if h.afterSend != nil {
		h.afterSend(c.id, f)
	}
	return nil
}

// reply sends a frame that is not part of a turn.
func (h *Hub) reply(c *conn, typ, chatID, messageID string, data any) {
	f, err := NewFrame(typ, chatID, messageID, data, h.cfg.Now())
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	if err := h.write(c, f); err != nil {
		h.logger.Debug("ws: reply failed", "conn_id", c.id, "type", typ, "err", err)
	}
}

// write must be called with c.writeMu held.
func (h *Hub) write(c *conn, f Frame) error {
	c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	return c.ws.WriteJSON(f)
}

// turnSink adapts one turn to WebSocket frames.
type turnSink struct {
	hub       *Hub
	conn      *conn
	chatID    string
	turnID    string
	messageID string
}

func (s *turnSink) send(typ string, data any) error {
	f, err := NewFrame(typ, s.chatID, s.messageID, data, s.hub.cfg.Now())
	if err != nil {
		return err
	}
	return s.hub.sendTurn(s.conn, s.chatID, s.turnID, f)
}

func (s *turnSink) Status(_ context.Context, status string) error {
	return s.send(TypeChatStatus, wire.StatusData{Status: status})
}

func (s *turnSink) Chunk(_ context.Context, c turn.Chunk) error {
	return s.send(TypeChatChunk, c)
}

func (s *turnSink) Complete(_ context.Context, r turn.Record) error {
	return s.send(TypeChatComplete, r)
}

func (s *turnSink) Error(_ context.Context, msg string) error {
	return s.send(TypeChatError, wire.ErrorData{Error: msg})
}
