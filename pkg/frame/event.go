package frame

import (
	"net/netip"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// EventKind classifies what a pump observed.
type EventKind uint8

const (
	// EventMessage carries one complete message payload, either a
	// single unfragmented packet or a finished reassembly.
	EventMessage EventKind = iota + 1

	// EventDeliveryFailed reports that the reliable layer gave up on
	// one of our packets after exhausting its retries.
	EventDeliveryFailed

	// EventControl passes an unsequenced control packet through to
	// the persistent layer.
	EventControl
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventDeliveryFailed:
		return "delivery-failed"
	case EventControl:
		return "control"
	default:
		return "unknown"
	}
}

// Event is one observation from a pump cycle.
type Event struct {
	Kind EventKind

	// Addr is the remote endpoint the event concerns.
	Addr netip.AddrPort

	// Sender is the message origin's peer id for EventMessage.
	// Control packets carry theirs inside Packet.
	Sender wire.PeerID

	// Seq identifies the abandoned packet for EventDeliveryFailed.
	Seq uint64

	// FrameID identifies the reassembled frame for EventMessage; zero
	// for messages that arrived in a single packet.
	FrameID uint64

	// Payload is the complete message for EventMessage.
	Payload []byte

	// Packet is the raw envelope for EventControl.
	Packet *wire.Packet
}
