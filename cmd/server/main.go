package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/config"
	"github.com/saunafleet/fleet-server/internal/database"
	"github.com/saunafleet/fleet-server/internal/handler"
	"github.com/saunafleet/fleet-server/internal/heartbeat"
	"github.com/saunafleet/fleet-server/internal/jobs"
	"github.com/saunafleet/fleet-server/internal/middleware"
	"github.com/saunafleet/fleet-server/internal/redis"
	"github.com/saunafleet/fleet-server/internal/repository"
	"github.com/saunafleet/fleet-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load time zone")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store opened")

	var (
		buffer  heartbeat.Buffer   = heartbeat.NewMemoryBuffer(cfg.HeartbeatSampleCapacity)
		limiter middleware.Limiter = middleware.NewRateLimiter()
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL, config.StorePingTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		buffer = heartbeat.NewRedisBuffer(redisClient.Client, cfg.HeartbeatSampleCapacity)
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	}

	deviceService := service.NewDeviceService(store, buffer, cfg.OfflineThreshold())
	pairingService := service.NewPairingService(store, deviceService, cfg.PairingCodeTTL(), cfg.AbandonedDeviceAge())
	resolveService := service.NewResolveService(store, loc)
	documentService := service.NewDocumentService(store)

	adminAuth := middleware.NewAdminAuthMiddleware(cfg.AdminTokenSHA256)
	if !adminAuth.Enabled() {
		log.Warn().Msg("admin token not configured: admin endpoints are open")
	}

	r := handler.NewRouter(handler.Services{
		Store:     store,
		Pairing:   pairingService,
		Devices:   deviceService,
		Resolve:   resolveService,
		Documents: documentService,
	}, handler.RouterOptions{
		AdminAuth:      adminAuth,
		PairingLimiter: limiter,
		PairingLimit:   cfg.PairingRateLimitPerMin,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		IsProduction:   isProduction,
	})

	gcJob := jobs.NewGCJob(pairingService, cfg.GCInterval())
	gcJob.Start()
	defer gcJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// openStore builds the configured store backend. SQL backends are migrated
// before use.
func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreFile:
		return repository.OpenFileStore(cfg.DatabaseURL, cfg.StoreLockTimeout())
	case config.StorePostgres, config.StoreSQLite:
		dialect, _ := cfg.Dialect()
		db, err := database.Connect(dialect, cfg.DatabaseURL, cfg.StoreLockTimeout())
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.StorePingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewSQLStore(db), nil
	default:
		return repository.NewMemoryStore(cfg.StoreLockTimeout()), nil
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
