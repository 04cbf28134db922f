package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/adapters"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/config"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/dispatch"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/history"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools/builtin"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/httpsse"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/ws"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Serve chat turns over HTTP-SSE (POST /chat-stream) and WebSocket (/ws),
plus GET /models, GET /health and GET /chats/{chatId}/turns.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		logger := newLogger(cfg, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// app is the wired server.
type app struct {
	handler http.Handler
	hub     *ws.Hub
	store   history.Store
}

func (a *app) Close() error {
	a.hub.Close()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	toolReg := tools.NewRegistry(logger)
	if err := builtin.Register(toolReg, cfg.Tools.BuiltinOptions()); err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}

	backends, err := buildBackends(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := adapters.Build(cfg.Models, backends, toolReg, logger)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(ctx, cfg.History, logger)
	if err != nil {
		return nil, err
	}

	d := dispatch.New(registry, logger)
	d.TurnTimeout = cfg.Server.TurnTimeout
	runner := &turn.Runner{Dispatcher: d, History: store, Logger: logger}

	sse := httpsse.NewServer(httpsse.Config{
		Runner:       runner,
		Catalog:      cfg.Models,
		History:      store,
		AuthToken:    cfg.Server.AuthToken,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
	})
	hub := ws.NewHub(ws.Config{
		Runner:            runner,
		AuthToken:         cfg.Server.AuthToken,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		MaxMissedPongs:    cfg.Server.MaxMissedPongs,
		WriteTimeout:      cfg.Server.WriteTimeout,
		MaxMessageBytes:   cfg.Server.MaxBodyBytes,
		Logger:            logger,
	})

	mux := http.NewServeMux()
	sse.Register(mux, cfg.Server.SSEPath)
	mux.Handle(cfg.Server.WSPath, hub)

	logger.Info("server: ready",
		"models", len(cfg.Models),
		"tools", toolReg.Names(),
		"history", cfg.History.Backend,
		"auth", cfg.Server.AuthToken != "",
	)
	return &app{handler: mux, hub: hub, store: store}, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", cfg.Server.Addr, "sse", cfg.Server.SSEPath, "ws", cfg.Server.WSPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
