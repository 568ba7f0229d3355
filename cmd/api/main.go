package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tamecalm/job-processor/internal/adapter/repo"
	"github.com/tamecalm/job-processor/internal/coordinator"
	"github.com/tamecalm/job-processor/internal/http/handlers"
	"github.com/tamecalm/job-processor/internal/http/httpapi"
	"github.com/tamecalm/job-processor/internal/infra"
	"github.com/tamecalm/job-processor/internal/migrate"
	"github.com/tamecalm/job-processor/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := migrate.Run(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	rc, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rc.Close()

	workQueue := queue.NewRedisQueue(rc, queue.Config{
		MaxDeliveries: cfg.QueueMaxDeliveries,
		RetryInitial:  cfg.QueueRetryInitial,
		RetryMax:      cfg.QueueRetryMax,
		PollInterval:  cfg.QueuePollInterval,
	})
	jobs := repo.NewJobRepository(dbpool)

	coord := coordinator.New(jobs, workQueue, coordinator.Config{
		EnqueueTimeout:  cfg.EnqueueTimeout,
		EnqueueAttempts: cfg.EnqueueAttempts,
		EnqueueDelay:    cfg.EnqueueDelay,
	}, logger)

	app := handlers.NewApp(coord, logger)
	router := httpapi.NewRouter(app, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
