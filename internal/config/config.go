// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server configuration.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// DBDriver selects the store: "sqlite" or "postgres".
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"./data/zehem.db"`
	DBDSN    string `env:"DATABASE_URL"`

	// JWTSecret verifies bearer tokens issued by the auth provider.
	JWTSecret   string        `env:"JWT_SECRET,required"`
	JWTDuration time.Duration `env:"JWT_DURATION" envDefault:"24h"`

	AdminCap int `env:"ADMIN_CAP" envDefault:"7"`

	// NSQDAddr enables the cross-instance relay when set.
	NSQDAddr       string   `env:"NSQD_ADDR"`
	NSQLookupAddrs []string `env:"NSQLOOKUPD_ADDRS" envSeparator:","`
	NSQTopic       string   `env:"NSQ_TOPIC" envDefault:"zehem.inserts"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("No .env file loaded, using process environment", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that the struct tags cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.AdminCap <= 0 {
		return fmt.Errorf("ADMIN_CAP must be positive, got %d", c.AdminCap)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}
