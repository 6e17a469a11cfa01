package persistent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/frame"
	"github.com/meshwire-protocol/meshwire-go/pkg/log"
	"github.com/meshwire-protocol/meshwire-go/pkg/reliable"
	"github.com/meshwire-protocol/meshwire-go/pkg/transport"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Default timing constants.
const (
	// DefaultHeartbeatInterval is how often connected peers are
	// heartbeated and stalled handshakes re-requested.
	DefaultHeartbeatInterval = 500 * time.Millisecond

	// DefaultLivenessTimeout is how long a peer may stay silent
	// before it is declared gone.
	DefaultLivenessTimeout = 5 * time.Second

	// DefaultMaxGossipEntries caps the peers advertised per
	// heartbeat.
	DefaultMaxGossipEntries = 16
)

// Config holds the persistent socket configuration.
type Config struct {
	// Name is the node's human-readable name, shared during the
	// handshake. Optional.
	Name string

	// LocalID is the identity announced when joining. Zero means
	// mint a fresh one at New.
	LocalID wire.PeerID

	// Conn is an optional pre-bound transport. When set, the socket
	// is ready immediately and Host must not be called. When nil,
	// Host or Join binds a UDP socket.
	Conn transport.Conn

	// HeartbeatInterval is the keepalive and handshake-retry period.
	HeartbeatInterval time.Duration

	// LivenessTimeout declares a silent peer disconnected. Must be
	// longer than HeartbeatInterval.
	LivenessTimeout time.Duration

	// MaxGossipEntries caps the peer advertisements piggybacked on
	// each heartbeat. Zero disables gossip.
	MaxGossipEntries int

	// Reliable configures the retransmission layer. Zero value means
	// reliable.DefaultConfig(). LocalID, Clock, and Logger are
	// overridden by this config's.
	Reliable reliable.Config

	// Frame configures the fragmentation layer. Zero value means
	// frame.DefaultConfig(). Clock and Logger are overridden.
	Frame frame.Config

	// Clock drives all timers. Defaults to the wall clock; tests
	// inject a mock.
	Clock clock.Clock

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives structured protocol events from every
	// layer of this socket's stack. Defaults to NoopLogger.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		LivenessTimeout:   DefaultLivenessTimeout,
		MaxGossipEntries:  DefaultMaxGossipEntries,
		Reliable:          reliable.DefaultConfig(),
		Frame:             frame.DefaultConfig(),
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.LivenessTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("LivenessTimeout %v must exceed HeartbeatInterval %v",
			c.LivenessTimeout, c.HeartbeatInterval)
	}
	if c.MaxGossipEntries < 0 {
		return fmt.Errorf("MaxGossipEntries must be >= 0, got %d", c.MaxGossipEntries)
	}
	return nil
}

// withDefaults fills the zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.Reliable == (reliable.Config{}) {
		c.Reliable = reliable.DefaultConfig()
	}
	if c.Frame == (frame.Config{}) {
		c.Frame = frame.DefaultConfig()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	return c
}
