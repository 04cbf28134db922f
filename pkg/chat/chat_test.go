package chat_test

import (
	"errors"
	"testing"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat/chattest"
)

func TestRegistry_ResolvesRegistered(t *testing.T) {
	reg := chat.MustRegistry(&chattest.Stub{ID: "scout"}, &chattest.Stub{ID: "qwen"})

	for _, id := range []string{"scout", "qwen"} {
		a, err := reg.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", id, err)
		}
		if a == nil || a.Name() != id {
			t.Errorf("Resolve(%q) = %v", id, a)
		}
	}
}

func TestRegistry_RejectsUnknown(t *testing.T) {
	reg := chat.MustRegistry(&chattest.Stub{ID: "scout"})

	a, err := reg.Resolve("not-a-real-model")
	if a != nil {
		t.Errorf("expected nil adapter, got %v", a)
	}
	var unknown *chat.UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownModelError, got %T (%v)", err, err)
	}
	if unknown.Model != "not-a-real-model" {
		t.Errorf("Model = %q", unknown.Model)
	}
}

func TestRegistry_NilRejectsEverything(t *testing.T) {
	var reg *chat.Registry
	if _, err := reg.Resolve("scout"); err == nil {
		t.Error("nil registry resolved a model")
	}
	if reg.Names() != nil {
		t.Error("nil registry should have no names")
	}
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	_, err := chat.NewRegistry(&chattest.Stub{ID: "a"}, &chattest.Stub{ID: "a"})
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestRegistry_NamesSortedCopy(t *testing.T) {
	reg := chat.MustRegistry(&chattest.Stub{ID: "qwen"}, &chattest.Stub{ID: "claude"}, &chattest.Stub{ID: "scout"})
	names := reg.Names()
	want := []string{"claude", "qwen", "scout"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
	names[0] = "mutated"
	if reg.Names()[0] != "claude" {
		t.Error("Names must return a copy")
	}
	if !reg.Has("qwen") || reg.Has("gpt") {
		t.Error("Has mismatch")
	}
}

func TestRequest_Validate(t *testing.T) {
	cases := []struct {
		name  string
		req   chat.Request
		field string
	}{
		{"ok", chat.Request{Model: "scout", Message: "hi"}, ""},
		{"missing message", chat.Request{Model: "scout", Message: "  "}, "message"},
		{"missing model", chat.Request{Message: "hi"}, "model"},
		{"bad role", chat.Request{Model: "scout", Message: "hi", History: []chat.Turn{{Role: "system", Text: "x"}}}, "previousMessages"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *chat.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestNormalizeMIME(t *testing.T) {
	cases := map[string]string{
		"image/jpg":                "image/jpeg",
		"IMAGE/PNG":                "image/png",
		"application/pdf; q=1":     "application/pdf",
		" audio/wav ":              "audio/wav",
	}
	for in, want := range cases {
		if got := chat.NormalizeMIME(in); got != want {
			t.Errorf("NormalizeMIME(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrors_Unwrap(t *testing.T) {
	base := errors.New("boom")
	for _, err := range []error{
		&chat.ProviderError{Model: "scout", Provider: "openai", Err: base},
		&chat.ToolError{Tool: "calculator", Err: base},
		&chat.TransportError{Op: "read", Err: base},
	} {
		if !errors.Is(err, base) {
			t.Errorf("%T does not unwrap to base", err)
		}
	}
}
