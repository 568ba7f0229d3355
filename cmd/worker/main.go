package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tamecalm/job-processor/internal/adapter/repo"
	"github.com/tamecalm/job-processor/internal/infra"
	"github.com/tamecalm/job-processor/internal/migrate"
	"github.com/tamecalm/job-processor/internal/processor"
	"github.com/tamecalm/job-processor/internal/queue"
	"github.com/tamecalm/job-processor/internal/registry"
	"github.com/tamecalm/job-processor/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer dbpool.Close()

	if err := migrate.Run(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("worker: migrations failed")
	}

	rc, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rc.Close()

	workQueue := queue.NewRedisQueue(rc, queue.Config{
		MaxDeliveries: cfg.QueueMaxDeliveries,
		RetryInitial:  cfg.QueueRetryInitial,
		RetryMax:      cfg.QueueRetryMax,
		PollInterval:  cfg.QueuePollInterval,
	})
	jobs := repo.NewJobRepository(dbpool)

	reg := registry.New()
	for name, proc := range map[string]registry.Processor{
		"sendEmail":  processor.SendEmail,
		"sleep":      processor.Sleep,
		"alwaysFail": processor.AlwaysFail,
	} {
		if err := reg.Register(name, proc); err != nil {
			logger.Fatal().Err(err).Str("name", name).Msg("worker: processor registration failed")
		}
	}

	pool := worker.New(workQueue, jobs, reg, cfg.WorkerConcurrency, logger)
	if err := pool.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
