// Package models holds the model catalog: the closed set of model
// identifiers a client may select, and for each one the vendor model it maps
// to and what it accepts.
package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
)

// MIME groups used by the built-in catalog.
var (
	Images   = []string{"image/png", "image/jpeg", "image/webp"}
	PDF      = []string{"application/pdf"}
	Audio    = []string{"audio/wav", "audio/mpeg"}
)

// ModelInfo describes one selectable model.
type ModelInfo struct {
	// ID is the identifier clients send, e.g. "scout".
	ID string `yaml:"id" json:"id"`

	// Provider names an entry of the providers config section.
	Provider string `yaml:"provider" json:"provider"`

	// VendorModel is the model name sent to the vendor API.
	VendorModel string `yaml:"vendor_model" json:"vendorModel"`

	DisplayName string `yaml:"display_name" json:"displayName"`
	Description string `yaml:"description" json:"description"`

	// Attachments lists accepted MIME types. Anything else is dropped.
	Attachments []string `yaml:"attachments" json:"attachments"`

	// Reasoning marks models that emit think blocks or native reasoning.
	Reasoning bool `yaml:"reasoning" json:"reasoning"`

	// Tools enables the two-phase tool-calling adapter for this model.
	Tools bool `yaml:"tools" json:"tools"`

	ContextWindow   int      `yaml:"context_window" json:"contextWindow"`
	MaxOutputTokens int      `yaml:"max_output_tokens" json:"maxOutputTokens"`
	Temperature     *float64 `yaml:"temperature" json:"temperature,omitempty"`

	// ThinkingBudget enables vendor-native reasoning with this token budget
	// (Anthropic, Gemini). Zero leaves it off.
	ThinkingBudget int `yaml:"thinking_budget" json:"-"`

	SystemPrompt string `yaml:"system_prompt" json:"-"`
}

// Supports reports whether the model accepts attachments of mime.
func (m ModelInfo) Supports(mime string) bool {
	mime = chat.NormalizeMIME(mime)
	for _, a := range m.Attachments {
		if chat.NormalizeMIME(a) == mime {
			return true
		}
	}
	return false
}

// Catalog is an ordered list of models.
type Catalog []ModelInfo

// Lookup returns the model with the exact id.
func (c Catalog) Lookup(id string) (ModelInfo, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// IDs returns the model identifiers, sorted.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, m := range c {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks for missing fields and duplicate IDs.
func (c Catalog) Validate() error {
	seen := map[string]bool{}
	for i, m := range c {
		switch {
		case strings.TrimSpace(m.ID) == "":
			return fmt.Errorf("models[%d]: id is required", i)
		case m.Provider == "":
			return fmt.Errorf("models[%d] (%s): provider is required", i, m.ID)
		case m.VendorModel == "":
			return fmt.Errorf("models[%d] (%s): vendor_model is required", i, m.ID)
		case seen[m.ID]:
			return fmt.Errorf("models[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// Providers returns the distinct provider names the catalog references.
func (c Catalog) Providers() []string {
	set := map[string]bool{}
	for _, m := range c {
		set[m.Provider] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func join(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
