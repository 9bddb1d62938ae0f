package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	APIBaseURL         string `env:"API_BASE_URL" default:"http://localhost:8000/api"`
	StateBackend       string `env:"STATE_BACKEND" default:"file"`
	StateDir           string `env:"STATE_DIR"`
	RedisURL           string `env:"REDIS_URL"`
	RedisKeyPrefix     string `env:"REDIS_KEY_PREFIX" default:"wastepoints:"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`
	ListenAddr         string `env:"LISTEN_ADDR" default:"127.0.0.1:8081"`

	GoalPoints float64 `env:"GOAL_POINTS" default:"100"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"10"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"20"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" default:"30s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", cfg.APIBaseURL)
	}
	if cfg.AppEnv == "production" && u.Scheme != "https" {
		return errors.New("API_BASE_URL must use https in production")
	}

	if cfg.GoalPoints <= 0 {
		return errors.New("GOAL_POINTS must be greater than zero")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be greater than zero")
	}
	if cfg.RefreshInterval < time.Second {
		return errors.New("REFRESH_INTERVAL must be at least 1s")
	}

	switch cfg.StateBackend {
	case BackendFile:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when STATE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", BackendFile, BackendRedis, cfg.StateBackend)
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
