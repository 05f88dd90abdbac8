package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	QueueWorkers      int           `mapstructure:"QUEUE_WORKERS"`
	QueuePollInterval time.Duration `mapstructure:"QUEUE_POLL_INTERVAL"`
	ProcessTimeout    time.Duration `mapstructure:"PROCESS_TIMEOUT"`
	ConnectTimeout    time.Duration `mapstructure:"CONNECT_TIMEOUT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("QUEUE_WORKERS", 4)
	v.SetDefault("QUEUE_POLL_INTERVAL", "2s")
	v.SetDefault("PROCESS_TIMEOUT", "30s")
	v.SetDefault("CONNECT_TIMEOUT", "10s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("QUEUE_WORKERS")
	v.BindEnv("QUEUE_POLL_INTERVAL")
	v.BindEnv("PROCESS_TIMEOUT")
	v.BindEnv("CONNECT_TIMEOUT")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with. The worker and
// timeout settings guard the ingestion pipeline, so zero or negative values
// are rejected rather than silently producing a stalled queue.
func (c *Config) Validate() error {
	if c.QueueWorkers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1, got %d", c.QueueWorkers)
	}
	if c.QueuePollInterval <= 0 {
		return fmt.Errorf("QUEUE_POLL_INTERVAL must be positive, got %s", c.QueuePollInterval)
	}
	if c.ProcessTimeout <= 0 {
		return fmt.Errorf("PROCESS_TIMEOUT must be positive, got %s", c.ProcessTimeout)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be positive, got %s", c.ConnectTimeout)
	}
	return nil
}
