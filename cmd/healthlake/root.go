// ABOUTME: Root Cobra command for healthlake CLI.
// ABOUTME: Loads config, opens the analytical store, and builds the admin service per invocation.
package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/admin"
	"github.com/harperreed/healthlake/internal/config"
	"github.com/harperreed/healthlake/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	verbose bool
	envFile string

	logger *slog.Logger
	appCfg *config.Config
	store  *storage.Store
	svc    *admin.Service
)

var rootCmd = &cobra.Command{
	Use:     "healthlake",
	Short:   "Health feature, baseline, anomaly and correlation pipeline",
	Version: version,
	Long: `Healthlake turns raw health events into daily feature snapshots and
learns what is normal, and what helps, from them.

WHAT IT DOES:

  Rollups        per-domain daily aggregates over a trailing window
  Snapshots      one wide row per user and day, enriched with trends
  Baselines      population reference distributions per signal and stratum
  Anomalies      on-demand scoring of glucose, heart rate and HRV values
  Correlations   prior-day behaviors vs next-day survey outcomes

QUICK START:

  $ healthlake ingest events.json          # Load raw events
  $ healthlake run hourly                  # Rollup, assemble, enrich
  $ healthlake snapshot u1 2025-03-18      # Inspect a daily snapshot
  $ healthlake train baselines             # Learn population baselines
  $ healthlake score glucose 182 -s 8      # Score a reading at 08:00
  $ healthlake train correlations --all    # Learn behavior correlations
  $ healthlake serve                       # Run jobs on their schedule

CONFIGURATION:

  Config is read from ~/.config/healthlake/config.json, then overridden by
  HEALTHLAKE_* environment variables. A .env file in the working directory
  is loaded first when present.

DATA STORAGE:

  The sqlite backend stores everything at ~/.local/share/healthlake/healthlake.db.
  Set backend to "clickhouse" to use a ClickHouse server instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(verbose)
		slog.SetDefault(logger)

		// Skip store setup for commands that don't need it
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if envFile != "" {
			config.LoadDotEnv(envFile)
		} else {
			config.LoadDotEnv()
		}

		var err error
		appCfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// A store that cannot be opened is logged once; every job then
		// reports it as a failed result.
		store, err = appCfg.OpenStore(cmd.Context(), logger)
		if err != nil {
			logger.Error("failed to open analytical store", "backend", appCfg.GetBackend(), "error", err)
			store = nil
		}

		svc, err = admin.New(serviceConfig(appCfg, store))
		if err != nil {
			return fmt.Errorf("failed to initialize service: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if svc != nil {
			svc.Close()
			svc = nil
		}
		if store != nil {
			err := store.Close()
			store = nil
			return err
		}
		return nil
	},
}

// serviceConfig maps file and env configuration onto the admin service.
func serviceConfig(cfg *config.Config, s *storage.Store) admin.Config {
	return admin.Config{
		Logger:            logger,
		Store:             s,
		HourlyInterval:    cfg.GetHourlyInterval(),
		ChangeInterval:    cfg.GetChangeInterval(),
		WindowDays:        cfg.RollupWindowDays,
		MinStratumSamples: cfg.Baseline.MinStratumSamples,
		MinDailySamples:   cfg.Baseline.MinDailySamples,
		Correlation: admin.CorrelationSettings{
			MinSamples:        cfg.Correlation.MinSamples,
			HighCutoff:        cfg.Correlation.HighCutoff,
			LowCutoff:         cfg.Correlation.LowCutoff,
			RelativeThreshold: cfg.Correlation.RelativeThreshold,
			Workers:           cfg.Correlation.Workers,
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default: .env)")
}
