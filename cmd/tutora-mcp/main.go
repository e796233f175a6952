// tutora-mcp exposes the strategy chain as an MCP tool over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matiasleandrokruk/tutora/internal/app"
	"github.com/matiasleandrokruk/tutora/internal/infra/config"
	"github.com/matiasleandrokruk/tutora/internal/infra/logging"
	"github.com/matiasleandrokruk/tutora/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}
	// stdout carries the protocol; logs go to stderr and stay quiet by default.
	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logger, err := logging.New(level, "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}
	defer a.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.RecordStats(ctx)

	server := newServer(a.Resolver)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "mcp: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}
}

func newServer(resolver Resolver) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "tutora", Version: version.Version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        toolSolveMath,
		Description: "Solve a math problem step by step. Answers in French, Arabic or Tunisian Arabic.",
	}, solveMath(resolver))
	return server
}
