// Command maintenance runs one expiry sweep and/or one ledger reconciliation
// and exits. It is meant for an external scheduler (a Kubernetes CronJob or
// plain cron) when SWEEP_SCHEDULE=off disables the in-process one.
//
// Usage:
//
//	maintenance [-sweep] [-reconcile] [-timeout 5m]
//
// With neither flag both steps run. Every run, single step or not, takes
// the same lock the API server's scheduler takes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/carbnb/availability/internal/app"
	"github.com/carbnb/availability/internal/config"
	"github.com/carbnb/availability/internal/scheduler"
)

func main() {
	sweep := flag.Bool("sweep", false, "complete bookings whose end date has passed")
	reconcile := flag.Bool("reconcile", false, "repair disagreements between bookings and the ledger")
	timeout := flag.Duration("timeout", 5*time.Minute, "give up after this long")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	code := 0
	if err := run(ctx, a, *sweep, *reconcile); err != nil {
		slog.Error("maintenance failed", "error", err)
		code = 1
	}
	if err := a.Close(); err != nil {
		slog.Error("close backends", "error", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, sweep, reconcile bool) error {
	steps := scheduler.AllSteps
	if sweep != reconcile {
		steps = scheduler.Steps{Sweep: sweep, Reconcile: reconcile}
	}
	res, err := scheduler.NewSweeper(a.Orchestrator, a.Locker, time.UTC, slog.Default()).Run(ctx, steps)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}
