// Package builtin provides the tools available to the tool-calling model:
// weather, wikipedia, read_website, calculator, run_code, clock and
// video_transcript. Each tool is independent and keeps no shared state.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

// Tool names.
const (
	NameWeather    = "weather"
	NameWikipedia  = "wikipedia"
	NameWebsite    = "read_website"
	NameCalculator = "calculator"
	NameRunCode    = "run_code"
	NameClock      = "clock"
	NameTranscript = "video_transcript"
)

// All lists every built-in tool name.
var All = []string{NameWeather, NameWikipedia, NameWebsite, NameCalculator, NameRunCode, NameClock, NameTranscript}

// Known reports whether name is a built-in tool.
func Known(name string) bool {
	return slices.Contains(All, name)
}

// Options configures the built-in tools. Zero values select public
// endpoints and conservative limits.
type Options struct {
	// Enabled restricts registration to these names. Empty means all.
	Enabled []string

	HTTPClient *http.Client
	UserAgent  string

	GeocodeURL    string // Open-Meteo geocoding search endpoint
	ForecastURL   string // Open-Meteo forecast endpoint
	WikipediaURL  string // REST base, e.g. https://en.wikipedia.org/api/rest_v1
	TranscriptURL string // YouTube timedtext endpoint

	Sandbox SandboxOptions
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 20 * time.Second}
}

func (o Options) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return "RapidChat/1.0 (+https://github.com/real-zephex/Rapid-Chat)"
}

// Register adds the enabled tools to reg. Unknown names are an error.
func Register(reg *tools.Registry, opts Options) error {
	names := opts.Enabled
	if len(names) == 0 {
		names = All
	}
	for _, name := range names {
		t, err := New(name, opts)
		if err != nil {
			return err
		}
		reg.Register(t)
	}
	return nil
}

// New constructs one tool by name.
func New(name string, opts Options) (tools.Tool, error) {
	switch name {
	case NameWeather:
		return NewWeatherTool(opts), nil
	case NameWikipedia:
		return NewWikipediaTool(opts), nil
	case NameWebsite:
		return NewWebsiteTool(opts), nil
	case NameCalculator:
		return NewCalculatorTool(), nil
	case NameRunCode:
		return NewRunCodeTool(opts.Sandbox), nil
	case NameClock:
		return NewClockTool(nil), nil
	case NameTranscript:
		return NewTranscriptTool(opts), nil
	}
	return nil, fmt.Errorf("builtin: unknown tool %q", name)
}

// getJSON fetches url and decodes a JSON body into v. A 404 is reported as
// errNotFound so callers can phrase a friendly miss.
func getJSON(ctx context.Context, client *http.Client, userAgent, url string, v any) error {
	body, err := get(ctx, client, userAgent, url, 2<<20)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.Code == http.StatusNotFound
}

func get(ctx context.Context, client *http.Client, userAgent, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(truncateBytes(string(body), 200))}
	}
	return body, nil
}

// FormatSize formats a byte count as a human-readable string.
func FormatSize(bytes int) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%dB", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1024*1024))
	}
}

// truncateBytes cuts s to at most max bytes without splitting a UTF-8 rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// truncateWithNote truncates s to max bytes and appends a note saying so.
func truncateWithNote(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimRight(truncateBytes(s, max), "\n") +
		fmt.Sprintf("\n\n[truncated at %s of %s]", FormatSize(max), FormatSize(len(s)))
}
