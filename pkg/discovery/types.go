package discovery

import (
	"errors"
	"time"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type meshwire nodes advertise.
	ServiceType = "_meshwire._udp"

	// Domain is the mDNS domain.
	Domain = "local"

	// ProtocolVersion is the advertised protocol version.
	ProtocolVersion = "1"
)

// TXT record key constants.
const (
	TXTKeyVersion = "v"    // protocol version
	TXTKeyID      = "id"   // peer id (canonical UUID form)
	TXTKeyName    = "name" // human-readable node name (optional)
)

// Timing and limits.
const (
	// BrowseTimeout is the default timeout for one-shot browsing.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrMissingRequired = errors.New("missing required field")
	ErrVersionMismatch = errors.New("unsupported protocol version")
	ErrNotFound        = errors.New("service not found")
	ErrNotRegistered   = errors.New("service not registered")
)

// Node is one discovered meshwire node.
type Node struct {
	// Instance is the mDNS instance name.
	Instance string

	// ID is the peer id the node answers under.
	ID wire.PeerID

	// Name is the node's human-readable name, if it advertises one.
	Name string

	// Addrs are the node's addresses as reported over mDNS.
	Addrs []string

	// Port is the node's UDP port.
	Port uint16
}
