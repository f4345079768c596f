// ABOUTME: CLI command for starting MCP server.
// ABOUTME: Runs stdio-based MCP server exposing pipeline triggers and insight reads.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout; logs go to stderr.

CONFIGURATION:

  {
    "mcpServers": {
      "healthlake": {
        "command": "healthlake",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  run_hourly          Run rollup, assemble and enrich now
  detect_changes      Scan for recent inserts and queue recomputes
  train_baselines     Retrain population baselines
  train_correlations  Retrain behavior-outcome correlations
  score_value         Score a value against population baselines
  get_snapshot        Get a user's daily feature snapshot
  list_correlations   List correlations ranked by strength

AVAILABLE RESOURCES:

  healthlake://baselines      Current population baselines
  healthlake://correlations   Top significant correlations`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(svc, version)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Handle shutdown signals
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
