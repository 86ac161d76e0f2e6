package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lighthouse/config"
	"lighthouse/server"
	"lighthouse/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	slog.Info("Connected to database")

	if cfg.ClientID == "" {
		slog.Warn("CLIENT_ID not set, google login will fail")
	}

	return server.New(cfg, st, server.Options{}).Start(ctx)
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProd() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
