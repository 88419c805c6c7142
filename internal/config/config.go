// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration.
type Config struct {
	Port           string        `env:"PORT" envDefault:"5175"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"./data/wordler.db"`
	WordsDir       string        `env:"WORDS_DIR"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`
	JWTExpiresDays int           `env:"JWT_EXPIRES_DAYS" envDefault:"14"`
	AdminKeyHash   string        `env:"ADMIN_KEY_HASH"`
	ClientOrigin   string        `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
	ReapInterval   time.Duration `env:"REAP_INTERVAL" envDefault:"1m"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// Load reads .env files (missing files are fine) and then the environment.
// Variables already set in the environment win over .env values.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }

// TokenTTL is how long minted player tokens stay valid.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpiresDays) * 24 * time.Hour
}

func (c Config) validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.JWTExpiresDays <= 0 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRES_DAYS must be positive, got %d", c.JWTExpiresDays))
	}
	if c.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("REAP_INTERVAL must be positive, got %s", c.ReapInterval))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	return errors.Join(errs...)
}
