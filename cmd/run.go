package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guimove/autoscaler/internal/capacity"
	"github.com/guimove/autoscaler/internal/forecast"
	"github.com/guimove/autoscaler/internal/remoteapi"
	"github.com/guimove/autoscaler/internal/scheduler"
	"github.com/guimove/autoscaler/internal/statstore"
	"github.com/guimove/autoscaler/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the autoscaling control loop",
	Long: `Runs the long-running tick loop: on a fixed cadence it fetches prices
and fleet state from the remote API, records a usage sample, refits the
overhead model and forecast, and reconciles the VM and DB fleets toward
the computed demand.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	metrics := telemetry.NewMetrics()
	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server exited", "error", err)
		}
	}()

	planner := capacity.NewPlanner(cfg.Penalty)
	store := statstore.New(cfg.MemorySize, planner)
	if !cfg.Prod {
		if err := store.Load(cfg.StateDir); err != nil {
			log.Warnw("loading persisted stat history failed", "error", err)
		}
	}

	fc := forecast.New(cfg.MinMemorySize, cfg.TrainSize)
	client := remoteapi.New(cfg.Host, cfg.Token, cfg.RequestTimeout)

	sched := scheduler.New(cfg, log, metrics, client, store, fc)
	log.Infow("starting autoscaler", "host", cfg.Host, "prod", cfg.Prod, "sleep_second", cfg.SleepSecond)
	sched.Run(ctx)
	log.Info("autoscaler shutting down")
	return nil
}
