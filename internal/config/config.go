// Package config loads the server configuration from environment
// variables. Every knob has a default that works for local development
// with the memory backends; production deployments set the oracle
// credentials and database modes explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"moodclash/session"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"`

	// AuthMode and LedgerMode pick the storage backends: memory, sqlite
	// (aka local) or postgres.
	AuthMode   string `env:"AUTH_MODE"   envDefault:"memory"`
	LedgerMode string `env:"LEDGER_MODE" envDefault:"memory"`

	// Ruleset overrides. Zero keeps the session defaults.
	TurnDuration time.Duration `env:"TURN_DURATION" envDefault:"30s"`
	WinThreshold int           `env:"WIN_THRESHOLD" envDefault:"100"`
	StartValue   int           `env:"MOOD_START_VALUE" envDefault:"50"`
	MaxDelta     int           `env:"MOOD_MAX_DELTA" envDefault:"20"`

	OracleBaseURL string        `env:"ORACLE_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OracleAPIKey  string        `env:"ORACLE_API_KEY"`
	OracleModel   string        `env:"ORACLE_MODEL"   envDefault:"gpt-4o-mini"`
	OracleTimeout time.Duration `env:"ORACLE_TIMEOUT" envDefault:"15s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SessionConfig maps the ruleset overrides onto the session defaults.
func (c Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	if c.TurnDuration > 0 {
		sc.TurnDuration = c.TurnDuration
	}
	if c.WinThreshold > 0 {
		sc.WinThreshold = c.WinThreshold
	}
	if c.StartValue > 0 {
		sc.StartValue = c.StartValue
	}
	if c.MaxDelta > 0 {
		sc.MaxDelta = c.MaxDelta
	}
	return sc
}
