// Binary rapidchat serves chat turns from many LLM vendors over HTTP-SSE and
// WebSocket, and talks to a running server from the terminal.
//
// Usage:
//
//	rapidchat serve   [--config rapidchat.yaml]
//	rapidchat models  [--output table|yaml|json]
//	rapidchat chat    --model scout "hello"
//	rapidchat history <chat-id>
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/config"
)

var (
	configPath string
	verbose    bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "rapidchat",
	Short: "Multi-vendor streaming chat backend",
	Long: `rapidchat dispatches chat turns to LLM vendors by model name, separates
reasoning from display text as it streams, and serves the result over
HTTP Server-Sent Events and WebSocket.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the process logger from config and flags. Logs go to w
// so command output on stdout stays clean.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	format := cfg.Log.Format
	if logFormat != "" {
		format = logFormat
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
