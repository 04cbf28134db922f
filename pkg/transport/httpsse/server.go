// Package httpsse serves chat turns over HTTP Server-Sent Events and provides
// a client for consuming them.
//
// POST /chat-stream answers with text/event-stream where every event is one
// JSON object:
//
//	data: {"type":"status","chatId":"c1","data":{"status":"processing"}}
//	data: {"type":"chunk","chatId":"c1","data":{"chunk":"he","content":"he","reasoning":""}}
//	data: {"type":"complete","chatId":"c1","data":{"content":"hello","reasoning":"","startTime":"...","endTime":"..."}}
//
// A failed turn ends with {"type":"error","data":{"error":"..."}} instead of
// complete. Validation failures are reported before the stream opens as a
// JSON {"error": "..."} body with status 400.
package httpsse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/sse"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/history"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

// Event types.
const (
	EventStatus   = "status"
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one SSE data line.
type Event struct {
	Type   string          `json:"type"`
	ChatID string          `json:"chatId"`
	Data   json.RawMessage `json:"data"`
}

// Decode unmarshals the event's data into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// DefaultMaxBodyBytes caps the request body, attachments included.
const DefaultMaxBodyBytes = 32 << 20

// Config configures a Server.
type Config struct {
	Runner  *turn.Runner
	Catalog models.Catalog
	// History, when set, is served at GET /chats/{chatId}/turns.
	History history.Store
	// AuthToken, when set, is required as a bearer token on every route but
	// /health.
	AuthToken    string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Server is the HTTP side of the chat backend.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{cfg: cfg, logger: logger}
}

// Register mounts the routes on mux. ssePath defaults to /chat-stream.
func (s *Server) Register(mux *http.ServeMux, ssePath string) {
	if ssePath == "" {
		ssePath = "/chat-stream"
	}
	mux.Handle(ssePath, s.authorize(http.HandlerFunc(s.ServeChatStream)))
	mux.Handle("GET /models", s.authorize(http.HandlerFunc(s.ServeModels)))
	mux.Handle("GET /chats/{chatId}/turns", s.authorize(http.HandlerFunc(s.ServeHistory)))
	mux.HandleFunc("GET /health", s.ServeHealth)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux, "")
	return mux
}

func (s *Server) authorize(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !wire.Authorized(r, s.cfg.AuthToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// POST /chat-stream
// ---------------------------------------------------------------------------

// ServeChatStream runs one turn and streams it as SSE.
func (s *Server) ServeChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body wire.ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sw := sse.NewWriter(w)
	if !sw.CanFlush() {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sse.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	sink := &eventSink{w: sw, chatID: body.ChatID}
	_, err = s.cfg.Runner.Run(r.Context(), turn.Input{ChatID: body.ChatID, Request: req}, sink)
	if errors.Is(err, turn.ErrStop) || errors.Is(err, context.Canceled) {
		s.logger.Debug("sse: client went away", "chat_id", body.ChatID)
	}
}

// eventSink writes turn events as SSE data lines. A write failure means the
// client is gone; the error stops the turn.
type eventSink struct {
	w      *sse.Writer
	chatID string
}

func (s *eventSink) send(typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.w.WriteJSON(Event{Type: typ, ChatID: s.chatID, Data: raw})
}

func (s *eventSink) Status(_ context.Context, status string) error {
	return s.send(EventStatus, wire.StatusData{Status: status})
}

func (s *eventSink) Chunk(_ context.Context, c turn.Chunk) error {
	return s.send(EventChunk, c)
}

func (s *eventSink) Complete(_ context.Context, r turn.Record) error {
	return s.send(EventComplete, r)
}

func (s *eventSink) Error(_ context.Context, msg string) error {
	return s.send(EventError, wire.ErrorData{Error: msg})
}

// ---------------------------------------------------------------------------
// GET /models, GET /chats/{chatId}/turns, GET /health
// ---------------------------------------------------------------------------

// ServeModels lists the catalog.
func (s *Server) ServeModels(w http.ResponseWriter, _ *http.Request) {
	list := s.cfg.Catalog
	if list == nil {
		list = models.Catalog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": list})
}

// ServeHistory lists stored turns of a chat. ?limit=N keeps the last N.
func (s *Server) ServeHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	chatID := r.PathValue("chatId")
	if !history.ValidChatID(chatID) {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.cfg.History.List(r.Context(), chatID, limit)
	if err != nil {
		s.logger.Error("sse: history list failed", "chat_id", chatID, "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatId": chatID, "turns": entries})
}

func (s *Server) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, wire.ErrorData{Error: msg})
}
