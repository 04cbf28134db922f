package models

import (
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	for _, id := range []string{"scout", "maverick", "qwen", "deepseek", "llama", "gemini", "gemini-pro", "claude", "gpt", "nova", "agent"} {
		if _, ok := c.Lookup(id); !ok {
			t.Errorf("default catalog missing %q", id)
		}
	}
}

func TestDefault_OnlyAgentUsesTools(t *testing.T) {
	for _, m := range Default() {
		if m.Tools != (m.ID == "agent") {
			t.Errorf("%s: Tools = %v", m.ID, m.Tools)
		}
	}
}

func TestLookup_ExactOnly(t *testing.T) {
	c := Default()
	if _, ok := c.Lookup("gemini"); !ok {
		t.Fatal("gemini not found")
	}
	if _, ok := c.Lookup("gem"); ok {
		t.Error("prefix must not match")
	}
	if _, ok := c.Lookup("not-a-real-model"); ok {
		t.Error("unknown id matched")
	}
}

func TestSupports(t *testing.T) {
	c := Default()
	scout, _ := c.Lookup("scout")
	claude, _ := c.Lookup("claude")
	llama, _ := c.Lookup("llama")

	cases := []struct {
		model ModelInfo
		mime  string
		want  bool
	}{
		{scout, "image/png", true},
		{scout, "image/jpg", true}, // alias of image/jpeg
		{scout, "IMAGE/JPEG", true},
		{scout, "application/pdf", false},
		{claude, "application/pdf", true},
		{claude, "audio/wav", false},
		{llama, "image/png", false},
	}
	for _, tc := range cases {
		if got := tc.model.Supports(tc.mime); got != tc.want {
			t.Errorf("%s.Supports(%q) = %v, want %v", tc.model.ID, tc.mime, got, tc.want)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		c    Catalog
		want string
	}{
		{"missing id", Catalog{{Provider: "groq", VendorModel: "x"}}, "id is required"},
		{"missing provider", Catalog{{ID: "a", VendorModel: "x"}}, "provider is required"},
		{"missing vendor model", Catalog{{ID: "a", Provider: "groq"}}, "vendor_model is required"},
		{"duplicate", Catalog{{ID: "a", Provider: "p", VendorModel: "x"}, {ID: "a", Provider: "p", VendorModel: "y"}}, "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestProvidersAndIDs(t *testing.T) {
	c := Catalog{
		{ID: "b", Provider: "groq", VendorModel: "x"},
		{ID: "a", Provider: "google", VendorModel: "y"},
		{ID: "c", Provider: "groq", VendorModel: "z"},
	}
	if got := strings.Join(c.Providers(), ","); got != "google,groq" {
		t.Errorf("Providers() = %s", got)
	}
	if got := strings.Join(c.IDs(), ","); got != "a,b,c" {
		t.Errorf("IDs() = %s", got)
	}
}
