// Package config loads the server configuration from YAML.
//
// A minimal rapidchat.yaml:
//
//	server:
//	  addr: :8080
//	  auth_token: ${RAPIDCHAT_TOKEN}
//	providers:
//	  groq:
//	    api_key: ${GROQ_API_KEY}
//	history:
//	  backend: sqlite
//	  path: ./rapidchat.db
//
// Without a models section the built-in catalog is served. Providers the
// catalog references but the file does not configure are added with their
// API key taken from <NAME>_API_KEY.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/history"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools/builtin"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "rapidchat.yaml"

type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    models.Catalog            `yaml:"models"`
	Tools     ToolsConfig               `yaml:"tools"`
	History   history.Config            `yaml:"history"`
	Log       LogConfig                 `yaml:"log"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	SSEPath string `yaml:"sse_path"`
	WSPath  string `yaml:"ws_path"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxMissedPongs    int           `yaml:"max_missed_pongs"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	// TurnTimeout bounds one vendor call, which keeps running after the
	// client leaves.
	TurnTimeout     time.Duration `yaml:"turn_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

// ProviderConfig configures one named vendor backend. Type defaults to the
// map key, so "groq:" alone is a groq provider.
type ProviderConfig struct {
	Type       string `yaml:"type"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"` // azure
	Region     string `yaml:"region"`      // bedrock
	Profile    string `yaml:"profile"`     // bedrock
}

type ToolsConfig struct {
	// Enabled limits the builtin tools; empty enables all.
	Enabled       []string      `yaml:"enabled"`
	UserAgent     string        `yaml:"user_agent"`
	GeocodeURL    string        `yaml:"geocode_url"`
	ForecastURL   string        `yaml:"forecast_url"`
	WikipediaURL  string        `yaml:"wikipedia_url"`
	TranscriptURL string        `yaml:"transcript_url"`
	Sandbox       SandboxConfig `yaml:"sandbox"`
}

type SandboxConfig struct {
	Timeout      time.Duration       `yaml:"timeout"`
	MaxOutput    int                 `yaml:"max_output"`
	Interpreters map[string][]string `yaml:"interpreters"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads path, or returns the defaults when path is DefaultPath and the
// file does not exist. A .env file beside the config (or in the working
// directory) is loaded first; existing environment variables win.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && path == DefaultPath {
		return Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return cfg, nil
}

// LoadDotEnv loads each existing file once. Missing files are skipped.
func LoadDotEnv(paths ...string) {
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err == nil {
			godotenv.Load(abs)
		}
	}
}

// Parse expands ${ENV_VAR} references in data, decodes it and applies
// defaults. Empty data yields the default configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if strings.TrimSpace(expanded) != "" {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Server
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.SSEPath == "" {
		s.SSEPath = "/chat-stream"
	}
	if s.WSPath == "" {
		s.WSPath = "/ws"
	}
	if s.HeartbeatInterval == 0 {
		s.HeartbeatInterval = 30 * time.Second
	}
	if s.MaxMissedPongs == 0 {
		s.MaxMissedPongs = 1
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.TurnTimeout == 0 {
		s.TurnTimeout = 5 * time.Minute
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 15 * time.Second
	}

	if len(c.Models) == 0 {
		c.Models = models.Default()
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for _, name := range c.Models.Providers() {
		if _, ok := c.Providers[name]; !ok {
			c.Providers[name] = ProviderConfig{}
		}
	}
	for name, pc := range c.Providers {
		if pc.Type == "" {
			pc.Type = name
		}
		pc.Type = strings.ToLower(strings.TrimSpace(pc.Type))
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(EnvKey(name))
		}
		c.Providers[name] = pc
	}

	if c.History.Backend == "" {
		c.History.Backend = history.BackendNone
	}
	c.History.Backend = strings.ToLower(c.History.Backend)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// EnvKey is the variable a provider's API key falls back to: "groq" reads
// GROQ_API_KEY, "my-relay" reads MY_RELAY_API_KEY.
func EnvKey(provider string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(provider)) + "_API_KEY"
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	s := c.Server
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"server.heartbeat_interval", s.HeartbeatInterval},
		{"server.write_timeout", s.WriteTimeout},
		{"server.turn_timeout", s.TurnTimeout},
		{"server.shutdown_timeout", s.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("config: %s must be positive", d.name)
		}
	}
	if c.Tools.Sandbox.Timeout < 0 {
		return fmt.Errorf("config: tools.sandbox.timeout must be positive")
	}
	if s.MaxMissedPongs < 0 {
		return fmt.Errorf("config: server.max_missed_pongs must be positive")
	}
	if !strings.HasPrefix(s.SSEPath, "/") || !strings.HasPrefix(s.WSPath, "/") {
		return fmt.Errorf("config: server paths must start with /")
	}
	if s.SSEPath == s.WSPath {
		return fmt.Errorf("config: sse_path and ws_path must differ")
	}

	if err := c.Models.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, m := range c.Models {
		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("config: model %q uses unconfigured provider %q", m.ID, m.Provider)
		}
	}

	switch c.History.Backend {
	case history.BackendNone, history.BackendMemory:
	case history.BackendJSONL, history.BackendSQLite:
		if c.History.Path == "" {
			return fmt.Errorf("config: history backend %q requires path", c.History.Backend)
		}
	case history.BackendPostgres:
		if c.History.DSN == "" {
			return fmt.Errorf("config: history backend postgres requires dsn")
		}
	default:
		return fmt.Errorf("config: unknown history backend %q", c.History.Backend)
	}

	for _, name := range c.Tools.Enabled {
		if !builtin.Known(name) {
			return fmt.Errorf("config: unknown tool %q", name)
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json")
	}
	return nil
}

// BuiltinOptions maps the tools section onto builtin.Options.
func (t ToolsConfig) BuiltinOptions() builtin.Options {
	return builtin.Options{
		Enabled:       t.Enabled,
		UserAgent:     t.UserAgent,
		GeocodeURL:    t.GeocodeURL,
		ForecastURL:   t.ForecastURL,
		WikipediaURL:  t.WikipediaURL,
		TranscriptURL: t.TranscriptURL,
		Sandbox: builtin.SandboxOptions{
			Timeout:      t.Sandbox.Timeout,
			MaxOutput:    t.Sandbox.MaxOutput,
			Interpreters: t.Sandbox.Interpreters,
		},
	}
}
