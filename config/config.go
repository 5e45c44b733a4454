package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	// Empty DATABASE_URL runs against in-memory stores; only allowed locally.
	DatabaseURL string `env:"DATABASE_URL" validate:"required_unless=Env local"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret  string        `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTTTL     time.Duration `env:"JWT_TTL"             envDefault:"24h" validate:"min=1m"`
	BcryptCost int           `env:"BCRYPT_COST"         envDefault:"10"  validate:"min=4,max=31"`

	RedisURL        string        `env:"REDIS_URL"`
	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT"  envDefault:"10"  validate:"min=1"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"15m" validate:"min=1s"`

	AMQPURL string `env:"AMQP_URL"`

	ExpirySweepCron string `env:"EXPIRY_SWEEP_CRON" envDefault:"@every 5m" validate:"required"`
	ResendAPIKey    string `env:"RESEND_API_KEY"    validate:"required_unless=Env local"`
	ResendFrom      string `env:"RESEND_FROM"       validate:"required_unless=Env local"`
	// Comma-separated; empty disables the expiry report.
	ExpiryReportTo []string `env:"EXPIRY_REPORT_TO" envSeparator:"," validate:"omitempty,dive,email"`
}

// Load reads .env when present, then the process environment, and validates
// the result. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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
