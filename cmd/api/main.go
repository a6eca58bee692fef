package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/adapters/cache"
	"github.com/zatekoja/inpatient-core/internal/adapters/database"
	"github.com/zatekoja/inpatient-core/internal/adapters/events"
	"github.com/zatekoja/inpatient-core/internal/adapters/memory"
	"github.com/zatekoja/inpatient-core/internal/api/handlers"
	"github.com/zatekoja/inpatient-core/internal/api/middleware"
	"github.com/zatekoja/inpatient-core/internal/api/routes"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/domain/providers"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/redis"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	"github.com/zatekoja/inpatient-core/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.App.Name, cfg.App.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Cache. A failed handshake leaves the process in offline mode for good.
	var (
		redisClient   *redis.Client
		resourceCache *cache.ResourceCache
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&cfg.Redis)
		defer redisClient.Close()
		resourceCache = cache.NewResourceCache(cache.NewRedisAdapter(redisClient), cfg.Redis.Timeout, logger)
	} else {
		resourceCache = cache.NewResourceCache(nil, cfg.Redis.Timeout, logger)
	}
	resourceCache.SetMetrics(metrics)
	if resourceCache.Connect(ctx) {
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("cache online")
	}

	// Stores
	rooms, beds, admissions, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()
	rooms = database.NewCachedRoomAdapter(rooms, resourceCache)

	// Event bus and cache invalidation only run with a live cache
	var (
		eventBus     providers.EventBus
		invalidation *services.CacheInvalidationService
	)
	if resourceCache.Available() {
		eventBus = events.NewRedisEventBus(redisClient, logger)
		invalidation = services.NewCacheInvalidationService(resourceCache, eventBus, logger)
		if err := invalidation.Start(); err != nil {
			logger.Warn().Err(err).Msg("failed to start cache invalidation service")
		}
	}

	inpatient := services.NewInpatientService(rooms, beds, admissions, services.NewBedLocker(), logger)
	inpatient.SetMetrics(metrics)
	if eventBus != nil {
		inpatient.SetEventBus(eventBus)
	}

	scheduler := services.NewReconcileScheduler(inpatient, cfg.Inpatient.ReconcileInterval, logger)
	scheduler.Start(ctx)

	opts := routes.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics,
	}
	if resourceCache.Available() {
		opts.CacheMiddleware = middleware.NewCacheMiddleware(resourceCache, nil, logger)
	}
	if cfg.Debounce.Enabled {
		guard := middleware.NewDebounceGuard(cfg.Debounce, logger)
		guard.SetMetrics(metrics)
		guard.Start()
		defer guard.Stop()
		opts.Debounce = guard
	}

	var cacheStatus handlers.CacheStatus
	if cfg.Redis.Enabled {
		cacheStatus = resourceCache
	}

	router := routes.NewRouter(
		handlers.NewRoomHandler(inpatient, logger),
		handlers.NewAdmissionHandler(inpatient, logger),
		handlers.NewMaintenanceHandler(inpatient, cacheStatus, logger),
		opts,
		logger,
	)

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	scheduler.Stop()
	if invalidation != nil {
		invalidation.Stop()
	}
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing event bus")
		}
	}

	logger.Info().Msg("server stopped")
}

// openStore builds the repositories for the configured driver
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repositories.RoomRepository, repositories.BedRepository, repositories.AdmissionRepository, func()) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return store.Rooms(), store.Beds(), store.Admissions(), func() {}
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	return database.NewRoomAdapter(pgClient),
		database.NewBedAdapter(pgClient),
		database.NewAdmissionAdapter(pgClient),
		func() { _ = pgClient.Close() }
}
