package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL"` // optional catalog cache; falls back to Postgres reads when unset

	GeneratorIntervalSec int `env:"GENERATOR_INTERVAL_SEC" envDefault:"60" validate:"min=1"`
	ProcessorIntervalSec int `env:"PROCESSOR_INTERVAL_SEC" envDefault:"60" validate:"min=1"`
	HydrationBuffer      int `env:"HYDRATION_BUFFER" envDefault:"100" validate:"min=1"`
	ProcessorConcurrency int `env:"PROCESSOR_CONCURRENCY" envDefault:"10" validate:"min=1,max=256"`
	LockBatchSize        int `env:"LOCK_BATCH_SIZE" envDefault:"100" validate:"min=1"`

	// WebhookDefaultTimeoutSec is the per-attempt deadline used when an
	// event's retry_conf.timeout_seconds is not positive; otherwise
	// timeout_seconds is the deadline.
	WebhookDefaultTimeoutSec int `env:"WEBHOOK_DEFAULT_TIMEOUT_SEC" envDefault:"300" validate:"min=1"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET,required" validate:"required"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"` // empty disables span export

	ResendAPIKey    string `env:"RESEND_API_KEY"`
	ResendFrom      string `env:"RESEND_FROM"`
	DeadEventNotify string `env:"DEAD_EVENT_NOTIFY_EMAIL"` // operator address; empty disables notify
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
