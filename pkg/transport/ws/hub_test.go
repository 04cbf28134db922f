package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat/chattest"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/dispatch"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

func newHub(t *testing.T, cfg Config, adapters ...chat.Adapter) (*Hub, *httptest.Server) {
	t.Helper()
	cfg.Runner = &turn.Runner{Dispatcher: dispatch.New(chat.MustRegistry(adapters...), nil)}
	h := NewHub(cfg)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialRaw(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func sendStart(t *testing.T, conn *websocket.Conn, chatID, messageID string, req wire.ChatRequest) {
	t.Helper()
	f, err := NewFrame(TypeChatStart, chatID, messageID, req, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(f); err != nil {
		t.Fatal(err)
	}
}

// readUntil reads frames until one of type typ arrives and returns all of
// them.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []Frame {
	t.Helper()
	var frames []Frame
	for {
		f := readFrame(t, conn)
		frames = append(frames, f)
		if f.Type == typ {
			return frames
		}
	}
}

func frameTypes(frames []Frame) string {
	var parts []string
	for _, f := range frames {
		parts = append(parts, f.Type)
	}
	return strings.Join(parts, ",")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *Hub) trackedTurn(chatID string) (turnOwner, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.turns[chatID]
	return o, ok
}

func TestHub_TurnLifecycle(t *testing.T) {
	stub := &chattest.Stub{ID: "scout", Fragments: []string{"<think>", "ok", "</think>", "hello"}}
	h, srv := newHub(t, Config{}, stub)
	conn := dialRaw(t, srv)

	sendStart(t, conn, "c1", "m1", wire.ChatRequest{Message: "hi", Model: "scout"})
	frames := readUntil(t, conn, TypeChatComplete)

	if got := frameTypes(frames); got != "chat_status,chat_chunk,chat_chunk,chat_chunk,chat_chunk,chat_complete" {
		t.Fatalf("frames = %s", got)
	}
	for _, f := range frames {
		if f.ChatID != "c1" || f.MessageID != "m1" {
			t.Errorf("frame ids = %q/%q", f.ChatID, f.MessageID)
		}
		if f.Timestamp == 0 {
			t.Errorf("%s frame has no timestamp", f.Type)
		}
	}
	var last turn.Chunk
	if err := frames[4].Decode(&last); err != nil {
		t.Fatal(err)
	}
	if last != (turn.Chunk{Delta: "hello", Content: "hello", Reasoning: "ok"}) {
		t.Errorf("last chunk = %+v", last)
	}
	var rec turn.Record
	if err := frames[5].Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.Content != "hello" || rec.Reasoning != "ok" {
		t.Errorf("record = %+v", rec)
	}

	waitFor(t, "turn entry removal", func() bool {
		_, ok := h.trackedTurn("c1")
		return !ok
	})
	if got := stub.Requests()[0].ChatID; got != "c1" {
		t.Errorf("request chat id = %q", got)
	}
}

func TestHub_ProviderError(t *testing.T) {
	stub := &chattest.Stub{ID: "scout", Fragments: []string{"par", "tial"}, Err: errors.New("boom")}
	h, srv := newHub(t, Config{}, stub)
	conn := dialRaw(t, srv)

	sendStart(t, conn, "c1", "", wire.ChatRequest{Message: "hi", Model: "scout"})
	frames := readUntil(t, conn, TypeChatError)
	if got := frameTypes(frames); got != "chat_status,chat_chunk,chat_chunk,chat_error" {
		t.Fatalf("frames = %s", got)
	}
	var e wire.ErrorData
	frames[3].Decode(&e)
	if !strings.Contains(e.Error, "boom") {
		t.Errorf("error = %q", e.Error)
	}
	if frames[0].MessageID == "" {
		t.Error("generated message id missing")
	}
	waitFor(t, "turn entry removal", func() bool {
		_, ok := h.trackedTurn("c1")
		return !ok
	})
}

func TestHub_PingPong(t *testing.T) {
	_, srv := newHub(t, Config{}, &chattest.Stub{ID: "scout"})
	conn := dialRaw(t, srv)

	conn.WriteJSON(Frame{Type: TypePing, MessageID: "p1"})
	f := readFrame(t, conn)
	if f.Type != TypePong || f.MessageID != "p1" {
		t.Errorf("reply = %+v", f)
	}
}

func TestHub_BadFramesKeepConnection(t *testing.T) {
	_, srv := newHub(t, Config{}, &chattest.Stub{ID: "scout"})
	conn := dialRaw(t, srv)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"malformed json", `{"type":`, MsgInvalidFormat},
		{"no type", `{"chatId":"c1"}`, MsgInvalidFormat},
		{"unknown type", `{"type":"chat_stop","chatId":"c1"}`, MsgUnknownType},
		{"start without data", `{"type":"chat_start","chatId":"c1"}`, MsgInvalidFormat},
		{"missing message", `{"type":"chat_start","chatId":"c1","data":{"model":"scout"}}`, "message"},
		{"missing model", `{"type":"chat_start","chatId":"c1","data":{"message":"hi"}}`, "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatal(err)
			}
			f := readFrame(t, conn)
			if f.Type != TypeChatError {
				t.Fatalf("type = %q", f.Type)
			}
			var e wire.ErrorData
			f.Decode(&e)
			if !strings.Contains(e.Error, tt.want) {
				t.Errorf("error = %q, want %q", e.Error, tt.want)
			}
		})
	}

	// Still usable, and no turn was started by the rejected frames.
	conn.WriteJSON(Frame{Type: TypePing})
	if f := readFrame(t, conn); f.Type != TypePong {
		t.Errorf("after errors got %q", f.Type)
	}
}

// A disconnect mid-stream purges the turn and nothing more is written for it.
func TestHub_DisconnectStopsTurn(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	stub := &chattest.Stub{ID: "scout", Fragments: []string{"a", "b", "c"}, Gate: gate}

	var mu sync.Mutex
	sent := map[string][]string{}
	h, srv := newHub(t, Config{}, stub)
	h.afterSend = func(connID string, f Frame) {
		mu.Lock()
		sent[connID] = append(sent[connID], f.Type)
		mu.Unlock()
	}
	conn := dialRaw(t, srv)

	sendStart(t, conn, "c1", "m1", wire.ChatRequest{Message: "hi", Model: "scout"})
	if f := readFrame(t, conn); f.Type != TypeChatStatus {
		t.Fatalf("first frame = %q", f.Type)
	}
	gate <- struct{}{}
	if f := readFrame(t, conn); f.Type != TypeChatChunk {
		t.Fatalf("second frame = %q", f.Type)
	}
	owner, ok := h.trackedTurn("c1")
	if !ok {
		t.Fatal("turn not tracked while streaming")
	}

	conn.Close()
	waitFor(t, "disconnect", func() bool { return h.Connections() == 0 })
	if _, ok := h.trackedTurn("c1"); ok {
		t.Error("turn entry survived disconnect")
	}

	// Let the vendor call run to completion.
	gate <- struct{}{}
	gate <- struct{}{}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(sent[owner.ConnID], ","); got != "chat_status,chat_chunk" {
		t.Errorf("frames written for turn = %s", got)
	}
}

func TestHub_NewStartSupersedesTurn(t *testing.T) {
	gate := make(chan struct{})
	slow := &chattest.Stub{ID: "slow", Fragments: []string{"old"}, Gate: gate}
	fast := &chattest.Stub{ID: "fast", Fragments: []string{"new"}}
	_, srv := newHub(t, Config{}, slow, fast)
	conn := dialRaw(t, srv)

	sendStart(t, conn, "c1", "first", wire.ChatRequest{Message: "hi", Model: "slow"})
	if f := readFrame(t, conn); f.Type != TypeChatStatus || f.MessageID != "first" {
		t.Fatalf("frame = %+v", f)
	}
	sendStart(t, conn, "c1", "second", wire.ChatRequest{Message: "again", Model: "fast"})
	frames := readUntil(t, conn, TypeChatComplete)
	close(gate)
	time.Sleep(50 * time.Millisecond)

	conn.WriteJSON(Frame{Type: TypePing})
	frames = append(frames, readUntil(t, conn, TypePong)...)
	for _, f := range frames {
		if f.MessageID == "first" {
			t.Errorf("superseded turn sent %s", f.Type)
		}
	}
}

// chatState returns the state of chatID on the hub's only session.
func chatState(t *testing.T, h *Hub, chatID string) (ChatState, bool) {
	t.Helper()
	sessions := h.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	st, ok := sessions[0].Chats[chatID]
	if !ok {
		return ChatState{}, false
	}
	return *st, true
}

func TestHub_SessionTracksLoading(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var clock atomic.Int64
	clock.Store(now.UnixNano())
	gate := make(chan struct{})
	good := &chattest.Stub{ID: "scout", Fragments: []string{"a"}, Gate: gate}
	bad := &chattest.Stub{ID: "broken", Err: errors.New("boom")}
	h, srv := newHub(t, Config{Now: func() time.Time { return time.Unix(0, clock.Load()) }}, good, bad)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?sessionId=s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sendStart(t, conn, "c1", "m1", wire.ChatRequest{Message: "hi", Model: "scout"})
	if f := readFrame(t, conn); f.Type != TypeChatStatus {
		t.Fatalf("first frame = %q", f.Type)
	}
	st, found := chatState(t, h, "c1")
	if !found || !st.IsLoading || st.Model != "scout" || !st.LastActivity.Equal(now) {
		t.Fatalf("while streaming: %+v found=%v", st, found)
	}
	sess := h.Sessions()[0]
	if sess.SessionID != "s1" || sess.ConnID == "" {
		t.Errorf("session = %+v", sess)
	}
	if got, ok := h.Session(sess.ConnID); !ok || got.SessionID != "s1" {
		t.Errorf("Session(%q) = %+v, %v", sess.ConnID, got, ok)
	}

	// Snapshots are copies.
	sess.Chats["c1"].IsLoading = false
	if st, _ := chatState(t, h, "c1"); !st.IsLoading {
		t.Error("snapshot shares state with the hub")
	}

	now = now.Add(time.Minute)
	clock.Store(now.UnixNano())
	gate <- struct{}{}
	readUntil(t, conn, TypeChatComplete)
	waitFor(t, "complete clears loading", func() bool {
		st, _ := chatState(t, h, "c1")
		return !st.IsLoading
	})
	if st, _ := chatState(t, h, "c1"); !st.LastActivity.Equal(now) {
		t.Errorf("last activity = %v, want %v", st.LastActivity, now)
	}

	sendStart(t, conn, "c2", "m2", wire.ChatRequest{Message: "hi", Model: "broken"})
	readUntil(t, conn, TypeChatError)
	waitFor(t, "error clears loading", func() bool {
		st, found := chatState(t, h, "c2")
		return found && !st.IsLoading && st.Model == "broken"
	})

	conn.Close()
	waitFor(t, "disconnect", func() bool { return h.Connections() == 0 })
	if _, ok := h.Session(sess.ConnID); ok {
		t.Error("session survived disconnect")
	}
	if len(h.Sessions()) != 0 {
		t.Error("sessions not purged")
	}
}

func TestHub_DisconnectClearsLoadingChats(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	stub := &chattest.Stub{ID: "scout", Fragments: []string{"a"}, Gate: gate}
	h, srv := newHub(t, Config{}, stub)
	conn := dialRaw(t, srv)

	sendStart(t, conn, "c1", "m1", wire.ChatRequest{Message: "hi", Model: "scout"})
	readFrame(t, conn)
	sess := h.Sessions()[0]

	h.mu.Lock()
	c := h.conns[sess.ConnID]
	h.mu.Unlock()
	h.drop(c)

	h.mu.Lock()
	chats := len(c.session.Chats)
	h.mu.Unlock()
	if chats != 0 {
		t.Errorf("chats after disconnect = %d", chats)
	}
	if _, ok := h.trackedTurn("c1"); ok {
		t.Error("turn entry survived disconnect")
	}
}

func TestHub_HeartbeatDropsSilentConnection(t *testing.T) {
	h, srv := newHub(t, Config{MaxMissedPongs: 1}, &chattest.Stub{ID: "scout"})
	dialRaw(t, srv) // never reads, so never answers pings
	waitFor(t, "registration", func() bool { return h.Connections() == 1 })

	h.sweep()
	if h.Connections() != 1 {
		t.Fatal("dropped before missing a pong")
	}
	h.sweep()
	if h.Connections() != 0 {
		t.Error("silent connection survived second sweep")
	}
}

func TestHub_HeartbeatKeepsResponsiveConnection(t *testing.T) {
	h, srv := newHub(t, Config{MaxMissedPongs: 1}, &chattest.Stub{ID: "scout"})
	conn := dialRaw(t, srv)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitFor(t, "registration", func() bool { return h.Connections() == 1 })

	for range 3 {
		h.sweep()
		waitFor(t, "pong", func() bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			for _, c := range h.conns {
				return c.missed.Load() == 0
			}
			return false
		})
	}
	if h.Connections() != 1 {
		t.Error("responsive connection dropped")
	}
}

func TestHub_Auth(t *testing.T) {
	_, srv := newHub(t, Config{AuthToken: "tok"}, &chattest.Stub{ID: "scout"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=tok", nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}

func TestHub_OriginCheck(t *testing.T) {
	_, srv := newHub(t, Config{AllowedOrigins: []string{"https://chat.example"}}, &chattest.Stub{ID: "scout"})

	bad := http.Header{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(wsURL(srv), bad); err == nil {
		t.Error("foreign origin accepted")
	}
	good := http.Header{"Origin": {"https://chat.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), good)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestFrame_JSONShape(t *testing.T) {
	f, err := NewFrame(TypeChatStatus, "c1", "", wire.StatusData{Status: "processing"}, time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(f)
	want := `{"type":"chat_status","chatId":"c1","data":{"status":"processing"},"timestamp":1700000000000}`
	if string(raw) != want {
		t.Errorf("json = %s", raw)
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	h := NewHub(Config{HeartbeatInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
