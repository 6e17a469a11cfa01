package frame

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
)

// Default sizing and timing constants.
const (
	// DefaultMaxFragmentData is the payload capacity of one fragment.
	// It must not exceed the reliable layer's MaxPayloadSize.
	DefaultMaxFragmentData = 1024

	// DefaultMaxFragmentCount caps the fragments per frame, bounding a
	// message at about 1 MiB with the default fragment size.
	DefaultMaxFragmentCount = 1024

	// DefaultReassemblyTimeout is how long an incomplete frame is kept
	// before its fragments are discarded.
	DefaultReassemblyTimeout = 5 * time.Second

	// DefaultMaxPendingFrames bounds the incomplete frames buffered
	// per peer.
	DefaultMaxPendingFrames = 64
)

// Config holds the frame socket configuration.
type Config struct {
	// MaxFragmentData is the largest payload placed in a single
	// fragment. Payloads at or under this size travel unfragmented.
	MaxFragmentData int

	// MaxFragmentCount caps how many fragments one message may need.
	// Send rejects anything larger with ErrMessageTooLarge.
	MaxFragmentCount int

	// ReassemblyTimeout discards incomplete frames older than this.
	ReassemblyTimeout time.Duration

	// MaxPendingFrames bounds incomplete frames per peer; admission
	// beyond the bound evicts that peer's oldest frame.
	MaxPendingFrames int

	// Clock drives the reassembly timeout sweep. Defaults to the wall
	// clock; tests inject a mock.
	Clock clock.Clock

	// Logger receives protocol events. Defaults to NoopLogger.
	Logger log.Logger
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		MaxFragmentData:   DefaultMaxFragmentData,
		MaxFragmentCount:  DefaultMaxFragmentCount,
		ReassemblyTimeout: DefaultReassemblyTimeout,
		MaxPendingFrames:  DefaultMaxPendingFrames,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.MaxFragmentData <= 0 {
		return fmt.Errorf("MaxFragmentData must be positive, got %d", c.MaxFragmentData)
	}
	if c.MaxFragmentCount <= 0 {
		return fmt.Errorf("MaxFragmentCount must be positive, got %d", c.MaxFragmentCount)
	}
	if c.ReassemblyTimeout <= 0 {
		return fmt.Errorf("ReassemblyTimeout must be positive, got %v", c.ReassemblyTimeout)
	}
	if c.MaxPendingFrames <= 0 {
		return fmt.Errorf("MaxPendingFrames must be positive, got %d", c.MaxPendingFrames)
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
