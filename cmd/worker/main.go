// Package main is the entry point for the Qiaomu background worker.
//
// The worker runs without the HTTP surface and owns only the periodic
// tasks: the Monday weekly progress reset in Asia/Taipei time and the
// expired session sweep. Deploying it separately keeps the API
// processes stateless about scheduling when running more than one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/qiaomu-learn/qiaomu/config"
	"github.com/qiaomu-learn/qiaomu/internal/application/auth"
	appprogress "github.com/qiaomu-learn/qiaomu/internal/application/progress"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/jobs"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/messaging"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage/postgres"
	redisstore "github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage/redis"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage/sqlite"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.AddCaller = cfg.Observability.AddCaller
	log := logger.New(opts).With(logger.Component("worker"))

	log.Info("starting qiaomu worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("storage_driver", cfg.Storage.Driver),
	)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("storage close failed", logger.Err(err))
		}
	}()

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() { _ = eventBus.Close() }()

	progressService := appprogress.NewService(store, eventBus, log, appprogress.Config{
		Location: cfg.App.Location,
		AutoSave: true,
	})
	if err := progressService.Load(ctx); err != nil {
		return fmt.Errorf("failed to load progress ledger: %w", err)
	}

	authService, err := auth.NewService(auth.DefaultCredentials(), store, eventBus, log, auth.Config{
		SessionTTL: cfg.Auth.SessionTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	if err != nil {
		return fmt.Errorf("failed to init auth: %w", err)
	}
	if err := authService.Restore(ctx); err != nil {
		log.Warn("failed to restore sessions", logger.Err(err))
	}

	scheduler := jobs.New(progressService, authService, eventBus, log, jobs.Config{
		Location:      cfg.App.Location,
		SweepInterval: cfg.Scheduler.SweepInterval,
	})
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("worker is running", logger.Duration("sweep_interval", cfg.Scheduler.SweepInterval))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	scheduler.Stop()

	if err := progressService.Save(shutdownCtx); err != nil {
		log.Error("failed to save progress ledger", logger.Err(err))
	}

	log.Info("worker stopped")
	return nil
}

// openStore mirrors the server binary so both processes share one
// backend when pointed at the same configuration.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.KeyValueStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil
	case config.DriverFile:
		return storage.NewFileStore(cfg.Storage.FilePath)
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.Storage.SQLitePath)
	case config.DriverRedis:
		inner, err := redisstore.New(ctx, redisstore.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Prefix:       cfg.Redis.Prefix,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Resilient {
			return storage.NewResilientStore(inner, "redis", log), nil
		}
		return inner, nil
	case config.DriverPostgres:
		inner, err := postgres.NewFromURL(ctx, cfg.PostgresURL())
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Resilient {
			return storage.NewResilientStore(inner, "postgres", log), nil
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
