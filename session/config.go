package session

import (
	"fmt"
	"time"
)

type Config struct {
	// TurnDuration is the per-turn countdown. The deadline is stored as a
	// wall-clock timestamp so a restarted authority recomputes the remaining
	// time instead of granting a fresh countdown.
	TurnDuration time.Duration

	// WinThreshold ends the game when any seat's mood reaches it.
	WinThreshold int

	// StartValue is the initial mood value of every seat.
	StartValue int

	// MaxDelta bounds a single oracle delta in both directions.
	MaxDelta int

	// LogCapacity bounds the played-action log.
	LogCapacity int

	// RNG seed (0 => time-based).
	Seed int64
}

const (
	DefaultTurnDuration = 30 * time.Second
	DefaultWinThreshold = 100
	DefaultStartValue   = 50
	DefaultMaxDelta     = 20
	DefaultLogCapacity  = 40
)

// DefaultConfig returns the standard two-seat ruleset.
func DefaultConfig() Config {
	return Config{
		TurnDuration: DefaultTurnDuration,
		WinThreshold: DefaultWinThreshold,
		StartValue:   DefaultStartValue,
		MaxDelta:     DefaultMaxDelta,
		LogCapacity:  DefaultLogCapacity,
	}
}

func (c Config) validate() error {
	if c.TurnDuration <= 0 {
		return fmt.Errorf("TurnDuration must be > 0")
	}
	if c.WinThreshold <= 0 {
		return fmt.Errorf("WinThreshold must be > 0")
	}
	if c.StartValue < 0 || c.StartValue >= c.WinThreshold {
		return fmt.Errorf("StartValue must be in [0, WinThreshold)")
	}
	if c.MaxDelta <= 0 {
		return fmt.Errorf("MaxDelta must be > 0")
	}
	if c.LogCapacity <= 0 {
		return fmt.Errorf("LogCapacity must be > 0")
	}
	return nil
}
