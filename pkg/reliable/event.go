package reliable

import (
	"net/netip"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// EventKind classifies what a pump cycle produced.
type EventKind uint8

const (
	// EventDelivered is the first copy of an inbound Data or Fragment
	// packet. The packet was already acked.
	EventDelivered EventKind = iota + 1

	// EventAcked confirms one of our packets reached the peer.
	EventAcked

	// EventGaveUp reports that a packet's retry budget is exhausted
	// and it will never be retransmitted again.
	EventGaveUp

	// EventControl passes an unsequenced packet (handshake or
	// heartbeat) up to the layer that understands it.
	EventControl
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDelivered:
		return "delivered"
	case EventAcked:
		return "acked"
	case EventGaveUp:
		return "gave-up"
	case EventControl:
		return "control"
	default:
		return "unknown"
	}
}

// Event is one reliable-layer occurrence surfaced by Pump.
type Event struct {
	Kind EventKind

	// Addr is the remote endpoint involved.
	Addr netip.AddrPort

	// Seq is the sequence number involved (Delivered, Acked, GaveUp).
	Seq uint64

	// Packet is the decoded packet (Delivered, Control).
	Packet *wire.Packet
}
