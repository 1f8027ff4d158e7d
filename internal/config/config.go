package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL          string
	ServerAddr           string
	LogLevel             zerolog.Level
	HousekeepingInterval time.Duration
	LogRetention         time.Duration
	ExecutorTokenTTL     time.Duration
	AIReviewWorkers      int
	AIReviewServiceURL   string
	ScanWorkDir          string
	ScanTimeout          time.Duration
	HandshakeRate        float64
	HandshakeBurst       int
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetDefault("POSTGRES_USER", "scan_hub")
	v.SetDefault("POSTGRES_PASSWORD", "scan_hub_pass")
	v.SetDefault("POSTGRES_DB", "scan_hub")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("SERVER_ADDR", "0.0.0.0:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HOUSEKEEPING_INTERVAL_MS", 3600000)
	v.SetDefault("LOG_RETENTION", "168h")
	v.SetDefault("EXECUTOR_TOKEN_TTL", "720h")
	v.SetDefault("AI_REVIEW_WORKERS", 4)
	v.SetDefault("SCAN_WORKDIR", "/var/lib/scan-hub/work")
	v.SetDefault("SCAN_TIMEOUT", "30m")
	v.SetDefault("HANDSHAKE_RATE", 5.0)
	v.SetDefault("HANDSHAKE_BURST", 10)

	dsn := v.GetString("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			v.GetString("POSTGRES_USER"),
			v.GetString("POSTGRES_PASSWORD"),
			v.GetString("POSTGRES_HOST"),
			v.GetString("POSTGRES_PORT"),
			v.GetString("POSTGRES_DB"),
			v.GetString("DATABASE_SSLMODE"),
		)
	}

	level, err := zerolog.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	interval := time.Duration(v.GetInt64("HOUSEKEEPING_INTERVAL_MS")) * time.Millisecond
	if interval <= 0 {
		return nil, fmt.Errorf("HOUSEKEEPING_INTERVAL_MS must be positive")
	}
	workers := v.GetInt("AI_REVIEW_WORKERS")
	if workers <= 0 {
		return nil, fmt.Errorf("AI_REVIEW_WORKERS must be positive")
	}

	return &Config{
		DatabaseURL:          dsn,
		ServerAddr:           v.GetString("SERVER_ADDR"),
		LogLevel:             level,
		HousekeepingInterval: interval,
		LogRetention:         v.GetDuration("LOG_RETENTION"),
		ExecutorTokenTTL:     v.GetDuration("EXECUTOR_TOKEN_TTL"),
		AIReviewWorkers:      workers,
		AIReviewServiceURL:   v.GetString("AI_REVIEW_SERVICE_URL"),
		ScanWorkDir:          v.GetString("SCAN_WORKDIR"),
		ScanTimeout:          v.GetDuration("SCAN_TIMEOUT"),
		HandshakeRate:        v.GetFloat64("HANDSHAKE_RATE"),
		HandshakeBurst:       v.GetInt("HANDSHAKE_BURST"),
	}, nil
}
