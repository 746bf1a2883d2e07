// repflow-mcp exposes the session engine as MCP tools over stdio. It
// talks to a running repflow server over its REST API, so it can run on
// a laptop while the session lives on the server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/repflow/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "base URL of the repflow server")
	apiKey := flag.String("api-key", os.Getenv("REPFLOW_AUTH_API_KEY"), "API key for session mutations")
	flag.Parse()

	// Logs go to stderr; stdout belongs to the MCP transport.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ds := mcp.NewHTTPClient(*serverURL, *apiKey)
	srv := mcp.New(ds, Version, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("repflow-mcp serving stdio", "server", *serverURL)
	if err := server.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}
