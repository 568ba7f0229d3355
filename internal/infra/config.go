package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	DBMaxConns  int

	// Coordinator enqueue policy: hard deadline across all attempts, a
	// bounded number of immediate attempts, fixed delay between them.
	EnqueueTimeout  time.Duration
	EnqueueAttempts int
	EnqueueDelay    time.Duration

	// Work queue redelivery policy applied at the queue layer.
	QueueMaxDeliveries int
	QueueRetryInitial  time.Duration
	QueueRetryMax      time.Duration
	QueuePollInterval  time.Duration

	WorkerConcurrency int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		EnqueueTimeout:  time.Millisecond * time.Duration(getEnvInt("ENQUEUE_TIMEOUT_MS", 5000)),
		EnqueueAttempts: getEnvInt("ENQUEUE_ATTEMPTS", 3),
		EnqueueDelay:    time.Millisecond * time.Duration(getEnvInt("ENQUEUE_DELAY_MS", 200)),

		QueueMaxDeliveries: getEnvInt("QUEUE_MAX_DELIVERIES", 3),
		QueueRetryInitial:  time.Second * time.Duration(getEnvInt("QUEUE_RETRY_INITIAL_SECONDS", 5)),
		QueueRetryMax:      time.Second * time.Duration(getEnvInt("QUEUE_RETRY_MAX_SECONDS", 300)),
		QueuePollInterval:  time.Millisecond * time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_MS", 250)),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
