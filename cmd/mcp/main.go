package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/floraqa/internal/adapters/mcp"
	"github.com/kirillkom/floraqa/internal/bootstrap"
	"github.com/kirillkom/floraqa/internal/config"
	"github.com/kirillkom/floraqa/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol, so logs go to stderr.
	_, syncLogs := logging.New(logging.Config{
		Service: "floraqa-mcp",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  os.Stderr,
	})
	defer syncLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{ClientName: "floraqa-mcp"})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sweeper := app.Sessions.StartSweeper(ctx, cfg.SessionSweepInterval)
	defer sweeper.Stop()

	if err := mcpadapter.New(app.Answers).ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
