// Package config loads binary configuration from the environment.
// A local .env file is honored in development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable.
const EnvPrefix = "larder"

// Config is the full configuration of a binary.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Worker WorkerConfig
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env      string `envconfig:"LARDER_APP_ENV" default:"development"`
	LogLevel string `envconfig:"LARDER_LOG_LEVEL" default:"info"`
}

// IsDev reports whether the process runs in development mode.
func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "development")
}

// DBConfig holds database connection settings.
type DBConfig struct {
	DSN             string        `envconfig:"LARDER_DB_DSN" required:"true"`
	MaxConns        int32         `envconfig:"LARDER_DB_MAX_CONNS" default:"25"`
	MinConns        int32         `envconfig:"LARDER_DB_MIN_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"LARDER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LARDER_DB_CONN_MAX_IDLE_TIME" default:"30m"`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	PollInterval      time.Duration `envconfig:"LARDER_WORKER_POLL_INTERVAL" default:"500ms"`
	OutboxBatchSize   int           `envconfig:"LARDER_WORKER_OUTBOX_BATCH_SIZE" default:"100"`
	HealthAddr        string        `envconfig:"LARDER_WORKER_HEALTH_ADDR" default:":8081"`
	PoolStatsInterval time.Duration `envconfig:"LARDER_WORKER_POOL_STATS_INTERVAL" default:"1m"`
}
