package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/slide-rag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/slide-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	// stdout carries MCP frames.
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel, "text")

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(version, app.NewEngine("mcp"), app.Formatter, logger)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_error", "error", err)
		os.Exit(1)
	}
}
