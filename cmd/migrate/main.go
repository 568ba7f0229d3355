package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tamecalm/job-processor/internal/infra"
	"github.com/tamecalm/job-processor/internal/migrate"
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

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: db connection failed")
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate: failed")
	}
	logger.Info().Msg("migrations complete")
}
