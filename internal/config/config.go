package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries process configuration loaded from environment variables.
type Config struct {
	Addr          string        `env:"IDENTRA_ADDR" envDefault:":8080"`
	PGDSN         string        `env:"IDENTRA_PG_DSN"`
	AccessSecret  string        `env:"IDENTRA_ACCESS_TOKEN_SECRET"`
	RefreshSecret string        `env:"IDENTRA_REFRESH_TOKEN_SECRET"`
	AccessTTL     time.Duration `env:"IDENTRA_ACCESS_TOKEN_TTL" envDefault:"10m"`
	RefreshTTL    time.Duration `env:"IDENTRA_REFRESH_TOKEN_TTL" envDefault:"24h"`
	MigrationsDir string        `env:"IDENTRA_MIGRATIONS_DIR" envDefault:"migrations"`
	SeedsDir      string        `env:"IDENTRA_SEEDS_DIR" envDefault:"seeds"`
	RateBurst     int           `env:"IDENTRA_RATE_BURST" envDefault:"20"`
	RatePerSecond int           `env:"IDENTRA_RATE_PER_SECOND" envDefault:"10"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
