// ABOUTME: CLI commands for triggering the hourly pipeline and the change detector.
// ABOUTME: Each run prints one structured result per stage attempted.
package main

import (
	"github.com/spf13/cobra"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline job now",
	Long: `Run a scheduled job immediately, outside its schedule.

JOBS:

  hourly    Rebuild rollups, assemble snapshots, enrich with trends
  changes   Scan raw tables for recent inserts and queue recomputes

A job that is already running (e.g. under 'healthlake serve') is skipped.`,
}

var runHourlyCmd = &cobra.Command{
	Use:   "hourly",
	Short: "Run rollup, assemble and enrich now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := svc.RunHourly(cmd.Context())
		return finish(cmd.OutOrStdout(), runJSON, results...)
	},
}

var runChangesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Run one change-detector scan now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return finish(cmd.OutOrStdout(), runJSON, svc.DetectChanges(cmd.Context()))
	},
}

func init() {
	runCmd.PersistentFlags().BoolVar(&runJSON, "json", false, "print results as JSON")
	runCmd.AddCommand(runHourlyCmd)
	runCmd.AddCommand(runChangesCmd)
	rootCmd.AddCommand(runCmd)
}
