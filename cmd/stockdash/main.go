package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/config"
	"github.com/ahmethakanbesel/stockdash/internal/job"
	"github.com/ahmethakanbesel/stockdash/internal/marketdata/yahoo"
	"github.com/ahmethakanbesel/stockdash/internal/mirror"
	"github.com/ahmethakanbesel/stockdash/internal/platform/postgres"
	"github.com/ahmethakanbesel/stockdash/internal/platform/sqlite"
	"github.com/ahmethakanbesel/stockdash/internal/price"
	pricerepo "github.com/ahmethakanbesel/stockdash/internal/repository/price"
	"github.com/ahmethakanbesel/stockdash/internal/server"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg))

	// Root context: cancelled on SIGINT/SIGTERM so an in-flight import and
	// open status streams stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, dialect, err := openDatabase(rootCtx, cfg)
	if err != nil {
		slog.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repository and catalog
	priceRepo := pricerepo.NewRepository(db, dialect)
	priceSvc := price.NewService(priceRepo)

	seeds := make(map[string]string, len(cfg.Securities))
	for _, s := range cfg.Securities {
		seeds[s.Ticker] = s.Name
	}
	if err := priceSvc.SeedSecurities(rootCtx, seeds); err != nil {
		slog.Error("failed to seed securities", "error", err)
		os.Exit(1)
	}

	// Import pipeline: one register shared by every component.
	register := job.NewRegister()
	fetcher := yahoo.New(yahoo.WithWorkers(cfg.Workers))
	runner := job.NewRunner(register, priceRepo, fetcher)
	worker := job.NewWorker(runner)
	launcher := job.NewLauncher(register, worker)
	publisher := job.NewPublisher(register, cfg.StreamKeepAlive)

	workerDone := make(chan struct{})
	go func() {
		worker.Run(rootCtx)
		close(workerDone)
	}()

	// Optional Redis mirror of status snapshots
	var rdb *redis.Client
	mirrorDone := make(chan struct{})
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer func() { _ = rdb.Close() }()

		m := mirror.NewRedis(rdb, publisher, cfg.RedisChannel)
		go func() {
			m.Run(rootCtx)
			close(mirrorDone)
		}()
		slog.Info("mirroring import status to redis", "channel", cfg.RedisChannel, "key", m.Key())
	} else {
		close(mirrorDone)
	}

	// HTTP server: rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, server.Services{
		Prices:    priceSvc,
		Launcher:  launcher,
		Publisher: publisher,
		Redis:     rdb,
	})

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "driver", cfg.DBDriver)
	<-done

	// Cancel root context first so the running import and the status
	// streams begin winding down immediately.
	rootCancel()

	// Wait for the worker and the mirror before shutting down HTTP.
	<-workerDone
	<-mirrorDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, pricerepo.Dialect, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, 0, err
		}
		return db.DB, pricerepo.Postgres, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, 0, err
		}
		return db.DB, pricerepo.SQLite, nil
	default:
		return nil, 0, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
