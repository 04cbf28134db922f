package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/config"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/history"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/httpsse"
)

var (
	historyLimit  int
	historyServer string
	historyToken  string
)

var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("135"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))
)

var historyCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Show the stored turns of a chat",
	Long: `Show the stored turns of a chat from the configured history backend, or
from a running server's GET /chats/{chatId}/turns with --server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := args[0]
		if !history.ValidChatID(chatID) {
			return history.ErrInvalidChatID
		}

		var entries []history.Entry
		var err error
		if historyServer != "" {
			c := &httpsse.Client{BaseURL: historyServer, Token: historyToken}
			entries, err = c.History(cmd.Context(), chatID, historyLimit)
		} else {
			entries, err = localHistory(cmd.Context(), chatID)
		}
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the last N turns")
	historyCmd.Flags().StringVar(&historyServer, "server", "", "read from a running server instead of the local store")
	historyCmd.Flags().StringVar(&historyToken, "token", os.Getenv("RAPIDCHAT_TOKEN"), "bearer token for --server")
	rootCmd.AddCommand(historyCmd)
}

func localHistory(ctx context.Context, chatID string) ([]history.Entry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.Backend == history.BackendNone || cfg.History.Backend == history.BackendMemory {
		return nil, fmt.Errorf("history backend %q keeps nothing on disk; use --server", cfg.History.Backend)
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, chatID, historyLimit)
}

func openStore(ctx context.Context, cfg *config.Config) (history.Store, error) {
	return history.Open(ctx, cfg.History, newLogger(cfg, os.Stderr))
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, headerStyle.Render("no turns"))
		return
	}
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		took := e.EndTime.Sub(e.StartTime).Round(time.Millisecond)
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s  %s  %s", e.StartTime.Local().Format("2006-01-02 15:04:05"), e.Model, took)))
		fmt.Fprintln(w, userStyle.Render("user: ")+e.Message)
		if e.Reasoning != "" {
			fmt.Fprintln(w, reasoningStyle.Render(e.Reasoning))
		}
		fmt.Fprintln(w, assistantStyle.Render("assistant: ")+e.Content)
	}
}
