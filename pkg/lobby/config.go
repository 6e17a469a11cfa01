package lobby

import (
	"fmt"
	"time"
)

// Default session constants.
const (
	// DefaultStartTicks is the base countdown broadcast with a start
	// order, roughly one second at a 60Hz pump cadence.
	DefaultStartTicks = 60

	// DefaultTickInterval is the assumed real-time length of one
	// pump, used to convert round-trip times into ticks.
	DefaultTickInterval = 16 * time.Millisecond
)

// Config holds the session configuration.
type Config struct {
	// StartTicks is the base countdown the leader broadcasts with a
	// start order.
	StartTicks uint32

	// TickInterval is how much real time one pump represents.
	TickInterval time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		StartTicks:   DefaultStartTicks,
		TickInterval: DefaultTickInterval,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.StartTicks == 0 {
		return fmt.Errorf("StartTicks must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TickInterval must be positive, got %v", c.TickInterval)
	}
	return nil
}
