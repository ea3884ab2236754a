package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds service configuration. All fields can be overridden via
// environment variables.
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	IdentityURL     string        `env:"IDENTITY_URL"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"3s"`

	// Zones become structural public channels at boot.
	Zones []string `env:"ZONES" envDefault:"starter_town,darkwood,ember_peaks" envSeparator:","`

	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"60s"`
	ConnTimeout        time.Duration `env:"CONN_TIMEOUT" envDefault:"120s"`
	RevalidateInterval time.Duration `env:"REVALIDATE_INTERVAL" envDefault:"5m"`

	TurnDeadline   time.Duration `env:"TURN_DEADLINE" envDefault:"30s"`
	DecisionBudget time.Duration `env:"DECISION_BUDGET" envDefault:"500ms"`
	RaidCapacity   int           `env:"RAID_CAPACITY" envDefault:"20"`

	// DamageFormula is the versioned resolution policy expression. See
	// engine.FormulaPolicy for the available variables.
	DamageFormula        string `env:"DAMAGE_FORMULA" envDefault:"attack + skill * 2 + roll - defense"`
	DamageFormulaVersion int    `env:"DAMAGE_FORMULA_VERSION" envDefault:"1"`

	BusRetries      int           `env:"BUS_RETRIES" envDefault:"3"`
	BusRetryBackoff time.Duration `env:"BUS_RETRY_BACKOFF" envDefault:"250ms"`

	SessionBuffer int `env:"SESSION_BUFFER" envDefault:"64"`
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = assembleDSN()
	}
	return cfg, nil
}

func assembleDSN() string {
	user := getenv("POSTGRES_USER", "arena_hub")
	pass := getenv("POSTGRES_PASSWORD", "arena_hub_pass")
	db := getenv("POSTGRES_DB", "arena_hub")
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	sslmode := getenv("DATABASE_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}
