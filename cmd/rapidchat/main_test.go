package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/openai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/relay"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat/chattest"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/config"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/dispatch"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/httpsse"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/ws"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuildProvider(t *testing.T) {
	tests := []struct {
		name    string
		pc      config.ProviderConfig
		wantErr bool
		check   func(t *testing.T, p any)
	}{
		{name: "groq", pc: config.ProviderConfig{Type: "groq"}, check: func(t *testing.T, p any) {
			o := p.(*openai.Provider)
			if o.BaseURL != "https://api.groq.com/openai/v1" || o.Name() != "groq" {
				t.Errorf("groq = %s (%s)", o.BaseURL, o.Name())
			}
		}},
		{name: "fast", pc: config.ProviderConfig{Type: "groq", BaseURL: "http://local/v1"}, check: func(t *testing.T, p any) {
			if o := p.(*openai.Provider); o.BaseURL != "http://local/v1" || o.Name() != "fast" {
				t.Errorf("override = %s (%s)", o.BaseURL, o.Name())
			}
		}},
		{name: "up", pc: config.ProviderConfig{Type: "relay", BaseURL: "http://relay"}, check: func(t *testing.T, p any) {
			if _, ok := p.(*relay.Provider); !ok {
				t.Errorf("relay type = %T", p)
			}
		}},
		{name: "anthropic", pc: config.ProviderConfig{Type: "anthropic"}},
		{name: "google", pc: config.ProviderConfig{Type: "google"}},
		{name: "bedrock", pc: config.ProviderConfig{Type: "bedrock", Region: "us-east-1"}},
		{name: "azure", pc: config.ProviderConfig{Type: "azure"}, wantErr: true},
		{name: "relay", pc: config.ProviderConfig{Type: "relay"}, wantErr: true},
		{name: "mystery", pc: config.ProviderConfig{Type: "mystery"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildProvider(tt.name, tt.pc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestPrintModels(t *testing.T) {
	catalog := models.Default()

	var buf bytes.Buffer
	if err := printModels(&buf, catalog, "json"); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if len(decoded) != len(catalog) {
		t.Errorf("json has %d models", len(decoded))
	}

	buf.Reset()
	if err := printModels(&buf, catalog, "yaml"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "id: "+catalog[0].ID) {
		t.Errorf("yaml output missing first id:\n%s", buf.String())
	}

	buf.Reset()
	if err := printModels(&buf, catalog, "table"); err != nil {
		t.Fatal(err)
	}
	for _, m := range catalog {
		if !strings.Contains(buf.String(), m.ID) {
			t.Errorf("table missing %q", m.ID)
		}
	}

	if err := printModels(&buf, catalog, "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestWSURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080": "ws://localhost:8080/ws",
		"https://chat.example/": "wss://chat.example/ws",
		"ws://host/custom":      "ws://host/custom",
	}
	for in, want := range tests {
		got, err := wsURL(in)
		if err != nil || got != want {
			t.Errorf("wsURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := wsURL("ftp://x"); err == nil {
		t.Error("ftp accepted")
	}
}

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := &renderer{out: &buf, showReasoning: true}
	r.update("", "")
	r.update("", "thinking")
	r.update("", "thinking hard")
	r.update("he", "thinking hard")
	r.update("hello", "thinking hard")
	r.finish()

	got := buf.String()
	if !strings.Contains(got, "thinking hard") || !strings.HasSuffix(got, "hello\n") {
		t.Errorf("output = %q", got)
	}
	if strings.Count(got, "hello") != 1 {
		t.Errorf("content repeated: %q", got)
	}

	buf.Reset()
	r = &renderer{out: &buf}
	r.update("", "secret")
	r.update("ok", "secret")
	r.finish()
	if strings.Contains(buf.String(), "secret") {
		t.Errorf("reasoning shown without flag: %q", buf.String())
	}
}

// remoteServer is a second rapidchat server the relay provider talks to.
func remoteServer(t *testing.T, stub chat.Adapter) *httptest.Server {
	t.Helper()
	s := httpsse.NewServer(httpsse.Config{
		Runner: &turn.Runner{Dispatcher: dispatch.New(chat.MustRegistry(stub), nil)},
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildApp_EndToEnd(t *testing.T) {
	remote := remoteServer(t, &chattest.Stub{ID: "scout", Fragments: []string{"<think>", "hm", "</think>", "hi"}})

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
providers:
  upstream:
    type: relay
    base_url: %s
models:
  - id: relayed
    provider: upstream
    vendor_model: scout
tools:
  enabled: [calculator, clock]
history:
  backend: memory
`, remote.URL)))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, discard())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	client := &httpsse.Client{BaseURL: srv.URL}
	rec, err := client.Stream(ctx, wire.ChatRequest{Message: "hello", Model: "relayed", ChatID: "e2e"}, nil)
	if err != nil {
		t.Fatalf("sse stream: %v", err)
	}
	if rec.Content != "hi" || rec.Reasoning != "hm" {
		t.Errorf("sse record = %+v", rec)
	}

	done := make(chan turn.Record, 1)
	c, err := ws.Dial(ctx, ws.ClientConfig{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		OnFrame: func(f ws.Frame) {
			if f.Type == ws.TypeChatComplete {
				var r turn.Record
				f.Decode(&r)
				done <- r
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.StartChat(wire.ChatRequest{Message: "again", Model: "relayed", ChatID: "e2e"}, ""); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-done:
		if r.Content != "hi" || r.Reasoning != "hm" {
			t.Errorf("ws record = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no chat_complete over ws")
	}

	list, err := client.Models(ctx)
	if err != nil || len(list) != 1 || list[0].ID != "relayed" {
		t.Errorf("models = %+v, %v", list, err)
	}

	entries, err := client.History(ctx, "e2e", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Message != "hello" || entries[1].Message != "again" {
		t.Errorf("history = %+v", entries)
	}
}

func TestBuildApp_UnknownProviderType(t *testing.T) {
	cfg, err := config.Parse([]byte("providers:\n  x:\n    type: mystery\nmodels:\n  - {id: a, provider: x, vendor_model: m}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buildApp(context.Background(), cfg, discard()); err == nil {
		t.Fatal("expected error")
	}
}
