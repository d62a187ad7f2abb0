// Package scheduler runs the periodic expiry sweep and ledger reconciliation
// on a cron schedule. When several replicas run, a Locker makes sure only one
// of them does the work for a given tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carbnb/availability/internal/service"
)

// Maintainer is the part of the orchestrator the scheduler drives.
type Maintainer interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// LockKey is the key every replica contends for.
const LockKey = "availability:maintenance"

// Sweeper owns the cron runner.
type Sweeper struct {
	maint   Maintainer
	locker  Locker
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration
	cron    *cron.Cron
}

// NewSweeper builds a Sweeper. Jobs are evaluated in loc and never overlap
// within one process.
func NewSweeper(maint Maintainer, locker Locker, loc *time.Location, log *slog.Logger) *Sweeper {
	cl := cronLogger{log: log}
	return &Sweeper{
		maint:   maint,
		locker:  locker,
		log:     log,
		now:     time.Now,
		timeout: 5 * time.Minute,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the maintenance job and starts the runner. schedule is a
// standard five-field expression or a descriptor such as "@every 1h".
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return fmt.Errorf("scheduler.Sweeper.Start: schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info("maintenance scheduled", "schedule", schedule)
	return nil
}

// Stop stops the runner and waits for a running job to return.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("maintenance job still running at shutdown")
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("maintenance run failed", "error", err)
	}
}

// Result summarises one maintenance run.
type Result struct {
	Skipped   bool                    `json:"skipped"`
	Completed int                     `json:"completed"`
	Reconcile service.ReconcileReport `json:"reconcile"`
}

// Steps selects which maintenance jobs a run performs.
type Steps struct {
	Sweep     bool
	Reconcile bool
}

// AllSteps is what every scheduled tick runs.
var AllSteps = Steps{Sweep: true, Reconcile: true}

// RunOnce takes the lock, completes expired bookings and reconciles the
// ledger. If another replica holds the lock the run is skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	return s.Run(ctx, AllSteps)
}

// Run is RunOnce limited to the selected steps. The lock is taken even for
// a single step, so a one-off command never runs alongside a scheduled tick.
func (s *Sweeper) Run(ctx context.Context, steps Steps) (Result, error) {
	release, ok, err := s.locker.TryLock(ctx, LockKey, s.timeout)
	if err != nil {
		return Result{}, fmt.Errorf("scheduler.Sweeper.Run: lock: %w", err)
	}
	if !ok {
		s.log.InfoContext(ctx, "maintenance skipped, lock held elsewhere")
		return Result{Skipped: true}, nil
	}
	defer release()

	start := s.now()
	var res Result
	if steps.Sweep {
		res.Completed, err = s.maint.SweepExpired(ctx, start)
		if err != nil {
			return res, fmt.Errorf("scheduler.Sweeper.Run: sweep: %w", err)
		}
	}
	if steps.Reconcile {
		res.Reconcile, err = s.maint.Reconcile(ctx)
		if err != nil {
			return res, fmt.Errorf("scheduler.Sweeper.Run: reconcile: %w", err)
		}
	}

	s.log.InfoContext(ctx, "maintenance finished",
		"sweep", steps.Sweep,
		"reconcile", steps.Reconcile,
		"completed", res.Completed,
		"reserved", res.Reconcile.Reserved,
		"released", res.Reconcile.Released,
		"cancelled_bookings", res.Reconcile.CancelledBookings,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
