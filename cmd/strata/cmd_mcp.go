package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	stratamcp "github.com/avensora/strata/internal/mcp"
	"github.com/avensora/strata/internal/metrics"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  memory_store     store one interaction in tiered memory
  memory_retrieve  retrieve similar memories within a token budget
  memory_recent    most recent interactions from the episodic log
  memory_status    per-tier counts and consolidation progress
  memory_fact      store a standalone fact in semantic memory

Background consolidation, eviction, and autosave run for the lifetime of
the server; shutting down writes a final snapshot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			eng, err := newEngine(logger, metrics.NewNoopCollector())
			if err != nil {
				return fmt.Errorf("mcp: building engine: %w", err)
			}
			defer func() { _ = eng.Close() }()
			eng.Start()

			srv := stratamcp.NewServer(eng, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: strata MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
