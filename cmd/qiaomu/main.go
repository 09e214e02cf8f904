// Package main is the entry point for the Qiaomu learning server.
//
// Qiaomu (喬木) serves a vocabulary learning front-end: word catalog,
// progress ledger with streaks and achievements, timed force drills,
// Feynman explanation practice and quizzes, all behind a small REST
// API.
//
// The layout follows Clean Architecture and DDD:
// - Domain: pure learning rules without external dependencies
// - Application: services orchestrating the domain
// - Infrastructure: storage backends, event bus, scheduler
// - Interface: HTTP handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/qiaomu-learn/qiaomu/config"
	"github.com/qiaomu-learn/qiaomu/internal/application/auth"
	appdrill "github.com/qiaomu-learn/qiaomu/internal/application/drill"
	"github.com/qiaomu-learn/qiaomu/internal/application/eventhandler"
	"github.com/qiaomu-learn/qiaomu/internal/application/feynman"
	appnav "github.com/qiaomu-learn/qiaomu/internal/application/navigation"
	appprogress "github.com/qiaomu-learn/qiaomu/internal/application/progress"
	"github.com/qiaomu-learn/qiaomu/internal/application/quiz"
	"github.com/qiaomu-learn/qiaomu/internal/application/settings"
	"github.com/qiaomu-learn/qiaomu/internal/application/words"
	domdrill "github.com/qiaomu-learn/qiaomu/internal/domain/drill"
	"github.com/qiaomu-learn/qiaomu/internal/domain/navigation"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/jobs"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/messaging"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage/postgres"
	redisstore "github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage/redis"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage/sqlite"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/wordsource"
	httpserver "github.com/qiaomu-learn/qiaomu/internal/interface/http"
	"github.com/qiaomu-learn/qiaomu/internal/interface/http/handlers"
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
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────

	// A missing .env file is fine, the environment wins anyway.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting qiaomu",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("storage_driver", cfg.Storage.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE BACKEND
	// ─────────────────────────────────────────────────────────────────────────

	// One client serves both the key-value store and the Pub/Sub bus.
	var redisClient *goredis.Client
	if cfg.Storage.Driver == config.DriverRedis {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, redisClient, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage...")
		if err := store.Close(); err != nil {
			log.Warn("storage close failed", logger.Err(err))
		}
	}()
	log.Info("storage ready", logger.String("driver", cfg.Storage.Driver))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS & DISPATCHER
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true

	var eventBus shared.EventBus
	if redisClient != nil {
		// Learning events fan out over Pub/Sub so several instances
		// sharing one Redis stay in sync.
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(redisClient),
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		eventBus = redisBus
		defer func() {
			log.Info("closing event bus...")
			_ = redisBus.Close()
		}()
	} else {
		memBus := messaging.NewInMemoryEventBus(busConfig)
		eventBus = memBus
		defer func() {
			log.Info("closing event bus...")
			_ = memBus.Close()
		}()
	}

	dispatcher := messaging.NewDispatcherBuilder(eventBus).
		WithLogger(log).
		WithDeadLetterQueue(500).
		Build()
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))
	dispatcher.Use(messaging.MetricsMiddleware(dispatcher.Metrics()))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. WORD CATALOG
	// ─────────────────────────────────────────────────────────────────────────
	catalog, err := wordsource.EmbeddedCatalog(0)
	if err != nil {
		return fmt.Errorf("failed to load embedded catalog: %w", err)
	}
	log.Info("word catalog loaded", logger.Int("words", catalog.Len()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION SERVICES
	// ─────────────────────────────────────────────────────────────────────────
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

	navService := appnav.NewService(store, eventBus, log)
	registerFeatureInterceptor(navService, cfg.Features)

	wordsService := words.NewService(catalog, progressService, eventBus, log)
	quizService := quiz.NewService(catalog, progressService, log)

	feynmanService := feynman.NewService(catalog, progressService, store, log, 0)
	if err := feynmanService.Load(ctx); err != nil {
		log.Warn("failed to load feynman history", logger.Err(err))
	}

	settingsService := settings.NewService(store, log)
	if err := settingsService.Load(ctx); err != nil {
		log.Warn("failed to load settings", logger.Err(err))
	}

	drillService := appdrill.NewService(catalog, progressService, eventBus, appdrill.RealClock{}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	achievementHandler := eventhandler.NewOnAchievementUnlockedHandler(store, log, eventhandler.DefaultAchievementUnlockedConfig())
	if err := achievementHandler.Restore(ctx); err != nil {
		log.Warn("failed to restore notice feed", logger.Err(err))
	}
	streakHandler := eventhandler.NewOnStreakHandler(log, eventhandler.DefaultStreakConfig())
	drillHandler := eventhandler.NewOnDrillCompletedHandler(log, eventhandler.DefaultDrillCompletedConfig())

	mustRegister := func(eventType shared.EventType, name string, h shared.EventHandler) {
		if err := dispatcher.Register(eventType, name, h); err != nil {
			log.Warn("failed to register event handler", logger.String("handler", name), logger.Err(err))
		}
	}
	mustRegister(shared.EventAchievementUnlocked, "achievement_feed", achievementHandler.Handle)
	mustRegister(shared.EventStreakUpdated, "streak_milestones", streakHandler.HandleUpdated)
	mustRegister(shared.EventStreakBroken, "streak_breaks", streakHandler.HandleBroken)
	mustRegister(shared.EventDrillCompleted, "drill_summary", drillHandler.Handle)

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var scheduler *jobs.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = jobs.New(progressService, authService, eventBus, log, jobs.Config{
			Location:      cfg.App.Location,
			SweepInterval: cfg.Scheduler.SweepInterval,
		})
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler started", logger.Duration("sweep_interval", cfg.Scheduler.SweepInterval))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	checker.AddCheck("storage", handlers.NewStorageCheck(store))
	checker.AddCheck("catalog", handlers.NewCatalogCheck(catalog))

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.Server.Host
	httpConfig.Port = cfg.Server.Port
	httpConfig.ReadTimeout = cfg.Server.ReadTimeout
	httpConfig.WriteTimeout = cfg.Server.WriteTimeout
	httpConfig.IdleTimeout = cfg.Server.IdleTimeout
	httpConfig.EnableCORS = cfg.Server.EnableCORS
	httpConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.Server.RateLimitPerMinute

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Auth:          authService,
		Navigation:    navService,
		Words:         wordsService,
		Progress:      progressService,
		Drill:         drillService,
		Quiz:          quizService,
		Feynman:       feynmanService,
		Settings:      settingsService,
		HealthChecker: checker,
		DrillDefaults: drillDefaults(cfg),
		Logger:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", logger.String("address", server.Address()))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("qiaomu is running", logger.String("http_address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	if scheduler != nil {
		log.Info("stopping scheduler...")
		scheduler.Stop()
	}

	log.Info("stopping HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		shutdownErr = err
	}

	log.Info("saving progress ledger...")
	if err := progressService.Save(shutdownCtx); err != nil {
		log.Error("failed to save progress ledger", logger.Err(err))
		shutdownErr = err
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger builds the structured logger from observability config.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.AddCaller = cfg.Observability.AddCaller
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}

// openStore creates the configured key-value backend. Network-backed
// drivers are wrapped with retries and a circuit breaker.
func openStore(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, log *logger.Logger) (storage.KeyValueStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil

	case config.DriverFile:
		return storage.NewFileStore(cfg.Storage.FilePath)

	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.Storage.SQLitePath)

	case config.DriverRedis:
		inner := redisstore.NewWithClient(redisClient, cfg.Redis.Prefix)
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

// drillDefaults maps the configured drill timers onto a validated
// config, falling back to the stock defaults when invalid.
func drillDefaults(cfg *config.Config) domdrill.Config {
	d := domdrill.Config{
		MemorySeconds: cfg.Drill.MemorySeconds,
		QuizSeconds:   cfg.Drill.QuizSeconds,
		WordCount:     cfg.Drill.WordCount,
		TargetCorrect: cfg.Drill.TargetCorrect,
		Difficulty:    word.DifficultyNormal,
	}
	if err := d.Validate(); err != nil {
		return domdrill.DefaultConfig()
	}
	return d
}

// registerFeatureInterceptor vetoes navigation into modules whose
// feature flag is off.
func registerFeatureInterceptor(nav *appnav.Service, features *config.FeatureFlags) {
	gated := map[navigation.ModuleID]string{
		navigation.ModuleForce:   config.FeatureDrillForce,
		navigation.ModuleFeynman: config.FeatureFeynmanHints,
	}

	nav.Intercept(func(from, to navigation.ModuleID) error {
		flag, ok := gated[to]
		if !ok {
			return nil
		}
		if !features.IsEnabled(flag, nil) {
			return fmt.Errorf("module %s is currently disabled", to)
		}
		return nil
	})
}
