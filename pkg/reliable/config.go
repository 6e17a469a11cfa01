package reliable

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Default timing and sizing constants.
const (
	// DefaultInitialRTO is the first retransmission timeout.
	DefaultInitialRTO = 100 * time.Millisecond

	// DefaultBackoffFactor scales the timeout after each resend.
	DefaultBackoffFactor = 2.0

	// DefaultMaxRTO caps the retransmission timeout.
	DefaultMaxRTO = 1 * time.Second

	// DefaultMaxRetries is how many times a packet is retransmitted
	// before the socket gives up on it.
	DefaultMaxRetries = 8

	// DefaultWindowSize bounds the per-peer duplicate suppression
	// window.
	DefaultWindowSize = 1024

	// DefaultMaxPayloadSize bounds a single packet's payload so the
	// encoded datagram stays under typical MTUs.
	DefaultMaxPayloadSize = 1200
)

// Config holds the reliable socket configuration.
type Config struct {
	// LocalID is stamped as the sender on every outgoing packet.
	LocalID wire.PeerID

	// InitialRTO is the timeout before the first retransmission.
	InitialRTO time.Duration

	// BackoffFactor multiplies the timeout after each resend.
	BackoffFactor float64

	// MaxRTO caps the per-packet retransmission timeout.
	MaxRTO time.Duration

	// MaxRetries is the retransmission budget per packet. When it is
	// exhausted the packet is dropped and EventGaveUp fires.
	MaxRetries int

	// WindowSize bounds the per-peer set of recently seen sequence
	// numbers used for duplicate suppression.
	WindowSize int

	// MaxPayloadSize rejects oversized payloads at Send.
	MaxPayloadSize int

	// Clock drives all timeouts. Defaults to the wall clock; tests
	// inject a mock.
	Clock clock.Clock

	// Logger receives protocol events. Defaults to NoopLogger.
	Logger log.Logger
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		InitialRTO:     DefaultInitialRTO,
		BackoffFactor:  DefaultBackoffFactor,
		MaxRTO:         DefaultMaxRTO,
		MaxRetries:     DefaultMaxRetries,
		WindowSize:     DefaultWindowSize,
		MaxPayloadSize: DefaultMaxPayloadSize,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.InitialRTO <= 0 {
		return fmt.Errorf("InitialRTO must be positive, got %v", c.InitialRTO)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("BackoffFactor must be >= 1, got %v", c.BackoffFactor)
	}
	if c.MaxRTO < c.InitialRTO {
		return fmt.Errorf("MaxRTO %v is below InitialRTO %v", c.MaxRTO, c.InitialRTO)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("WindowSize must be positive, got %d", c.WindowSize)
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("MaxPayloadSize must be positive, got %d", c.MaxPayloadSize)
	}
	return nil
}

// withDefaults fills the zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
	return c
}
