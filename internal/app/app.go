// Package app wires the availability service together from a Config. Both
// the API server and the maintenance command build on it so they always
// share one set of stores and collaborators.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/carbnb/availability/internal/config"
	"github.com/carbnb/availability/internal/notify"
	"github.com/carbnb/availability/internal/repo"
	"github.com/carbnb/availability/internal/scheduler"
	"github.com/carbnb/availability/internal/service"
	"github.com/carbnb/availability/migrations"
)

// App holds the wired services and everything that must be closed on exit.
type App struct {
	Pool         *pgxpool.Pool
	Ledger       *service.Ledger
	Orchestrator *service.Orchestrator
	Locker       scheduler.Locker

	closers []func() error
}

// NewLogger builds the JSON logger at the given level. An unknown level
// falls back to info.
func NewLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// New connects to every configured backend and builds the services.
// Postgres is required. The SQLite fallback, Redis and RabbitMQ are
// optional: when one is not configured or cannot be reached the service
// starts without it and says so in the log.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app.New: create database pool: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("app.New: connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := Migrate(ctx, pool, log); err != nil {
			return nil, err
		}
	}

	var bookings repo.BookingStore = repo.NewBookingStore(pool)
	if cfg.FallbackDBPath != "" {
		fallback, err := repo.OpenSQLiteBookingStore(cfg.FallbackDBPath)
		if err != nil {
			return nil, fmt.Errorf("app.New: open fallback store: %w", err)
		}
		a.closers = append(a.closers, fallback.Close)
		bookings = repo.NewResilientBookingStore(bookings, fallback, log)
		log.Info("booking fallback store enabled", "path", cfg.FallbackDBPath)
	}

	var (
		notifier service.Notifier   = notify.NewLogSink(log)
		chat     service.ChatPoster = notify.NewLogSink(log)
	)
	if cfg.AMQPURL != "" {
		pub, err := notify.Dial(cfg.AMQPURL, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, notifications will only be logged", "error", err)
		} else {
			a.closers = append(a.closers, pub.Close)
			notifier, chat = pub, pub
			log.Info("publishing notifications to rabbitmq")
		}
	}

	a.Locker = scheduler.NoopLocker{}
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, maintenance runs without a cross-replica lock", "error", err)
		} else {
			a.closers = append(a.closers, client.Close)
			a.Locker = scheduler.NewRedisLocker(client, log)
		}
	}

	a.Ledger = service.NewLedger(repo.NewAvailabilityRepo(pool), policy, log)
	a.Orchestrator = service.NewOrchestrator(
		a.Ledger,
		service.NewBookingService(bookings),
		repo.NewUserDirectory(pool),
		notifier,
		chat,
		policy,
		log,
		service.WithLocation(cfg.Location),
	)
	return a, nil
}

// Migrate applies pending goose migrations through a database/sql handle
// borrowed from pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("app.Migrate: create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("app.Migrate: %w", err)
	}
	for _, r := range results {
		log.Info("migration applied", "version", r.Source.Version, "duration_ms", r.Duration.Milliseconds())
	}
	return nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	// Ping with a short timeout so a dead cache never delays startup.
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
