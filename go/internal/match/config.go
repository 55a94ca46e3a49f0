package match

import (
	"fmt"
	"time"
)

// Config holds the rules of a match.
type Config struct {
	WinThreshold int           `yaml:"win_threshold"`
	RoundTimeout time.Duration `yaml:"round_timeout"`
	RoundPause   time.Duration `yaml:"round_pause"`
	// CommandBuffer sizes the manager's inbound queue
	CommandBuffer int `yaml:"command_buffer"`
}

// DefaultConfig returns first-to-three with a 30s deadline and a 5s pause.
func DefaultConfig() Config {
	return Config{
		WinThreshold:  3,
		RoundTimeout:  30 * time.Second,
		RoundPause:    5 * time.Second,
		CommandBuffer: 256,
	}
}

// Validate rejects rules the state machine cannot run.
func (c Config) Validate() error {
	if c.WinThreshold < 1 {
		return fmt.Errorf("win threshold must be positive, got %d", c.WinThreshold)
	}
	if c.RoundTimeout <= 0 {
		return fmt.Errorf("round timeout must be positive, got %s", c.RoundTimeout)
	}
	if c.RoundPause < 0 {
		return fmt.Errorf("round pause must not be negative, got %s", c.RoundPause)
	}
	return nil
}
