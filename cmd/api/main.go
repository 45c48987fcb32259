package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"userhub/internal/cache"
	"userhub/internal/config"
	"userhub/internal/database"
	"userhub/internal/handlers"
	"userhub/internal/jobs"
	"userhub/internal/log"
	"userhub/internal/mail"
	"userhub/internal/queue"
	"userhub/internal/repository"
	"userhub/internal/security"
	"userhub/internal/server"
	"userhub/internal/service"
	"userhub/internal/tasks"
)

type store interface {
	service.UserStore
	tasks.Sweeper
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "api")

	ctx := context.Background()

	users, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open user store")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	probes := map[string]handlers.Probe{"database": users}
	if redisClient != nil {
		probes["cache"] = cache.Pinger{Client: redisClient}
	}

	hasher, err := security.NewPasswordHasher(cfg.Security.PasswordHasher, cfg.Security.BcryptCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid password hasher")
	}
	tokens := security.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTTTL)
	mailer, err := mail.NewMailer(cfg.Mail, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init mailer")
	}

	authService := service.NewAuthService(users, hasher, tokens, mailer, cfg, logger)
	userService := service.NewUserService(users, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, authService, userService, users, tokens, probes)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(cfg.Jobs.SweepSchedule, sweepPublisher(cfg, redisClient), tasks.NewProcessor(users, logger), logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, closeStore, redisClient)
}

// sweepPublisher hands sweeps to the worker only when it can reach the same
// store. The in-memory store lives in this process, so it is swept locally.
func sweepPublisher(cfg *config.AppConfig, client *redis.Client) jobs.Publisher {
	if client == nil || cfg.Storage.Driver != config.StorageDriverPostgres {
		return nil
	}
	return queue.NewStreamPublisher(client, cfg.Redis.Stream)
}

func openStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (store, func(), error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		logger.Warn().Msg("using in-memory user store, data is lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}

	pool, err := database.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewUserRepository(pool), pool.Close, nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, closeStore func(), redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)

	closeStore()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
