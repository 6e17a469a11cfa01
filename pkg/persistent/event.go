package persistent

import (
	"net/netip"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// EventKind classifies what a pump observed.
type EventKind uint8

const (
	// EventPeerConnected fires once when a peer reaches Connected.
	EventPeerConnected EventKind = iota + 1

	// EventPeerDisconnected fires once when a connected peer is torn
	// down, whatever the reason.
	EventPeerDisconnected

	// EventPeerAddressChanged fires when a connected peer reappears
	// from a new address and the socket follows it there.
	EventPeerAddressChanged

	// EventMessage carries one complete application payload.
	EventMessage

	// EventDeliveryFailed reports a packet to a connected peer that
	// exhausted its retries. It does not tear the connection down.
	EventDeliveryFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPeerConnected:
		return "peer-connected"
	case EventPeerDisconnected:
		return "peer-disconnected"
	case EventPeerAddressChanged:
		return "peer-address-changed"
	case EventMessage:
		return "message"
	case EventDeliveryFailed:
		return "delivery-failed"
	default:
		return "unknown"
	}
}

// Event is one observation from a pump cycle. A pump returns all
// lifecycle events (connected, disconnected, address changed) ahead
// of message and delivery-failure events gathered in the same cycle.
type Event struct {
	Kind EventKind

	// Peer identifies the peer the event concerns.
	Peer wire.PeerID

	// Addr is the peer's current address. For EventPeerAddressChanged
	// it is the new address.
	Addr netip.AddrPort

	// Payload is the message body for EventMessage.
	Payload []byte

	// Seq identifies the abandoned packet for EventDeliveryFailed.
	Seq uint64
}
