package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/pdfqa-gateway/internal/adapters/mcp"
	"github.com/kirillkom/pdfqa-gateway/internal/bootstrap"
	"github.com/kirillkom/pdfqa-gateway/internal/config"
	"github.com/kirillkom/pdfqa-gateway/internal/observability/logging"
)

const serviceName = "pdfqa-mcp"

// The MCP server speaks JSON-RPC on stdout, so every log line goes to stderr.
func main() {
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, "info")
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("mcp_serving_stdio", "backend_url", cfg.BackendURL)
	if err := server.ServeStdio(mcpadapter.NewServer(app.Lifecycle)); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
