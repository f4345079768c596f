// ABOUTME: CLI command for running the scheduled jobs until interrupted.
// ABOUTME: Drives the hourly pipeline and change detector and serves prometheus metrics.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/metrics"
)

var serveMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled jobs",
	Long: `Run the periodic jobs until interrupted.

JOBS:

  hourly    rollup, assemble, enrich (hourly_interval, default 1h)
  changes   change detection scan (change_interval, default 10m)

A cycle that is still running when its next tick fires is skipped. Failed
cycles are logged and retried on the next tick.

METRICS:

  With --metrics-addr (or metrics_addr in config), prometheus metrics are
  served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				log.Info("server: received signal", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		addr := serveMetricsAddr
		if addr == "" {
			addr = appCfg.MetricsAddr
		}
		metricsErrCh := make(chan error, 1)
		if addr != "" {
			metrics.BuildInfo.WithLabelValues(version).Set(1)
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("prometheus metrics server failed", "error", err)
					metricsErrCh <- err
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		sched := svc.Scheduler()
		sched.Start(ctx)
		log.Info("server: scheduler started", "jobs", sched.Jobs())

		var err error
		select {
		case <-ctx.Done():
		case err = <-metricsErrCh:
			cancel()
		}
		sched.Wait()
		log.Info("server: stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "address for the prometheus /metrics endpoint, e.g. :9090")
	rootCmd.AddCommand(serveCmd)
}
