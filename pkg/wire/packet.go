package wire

import (
	"fmt"
)

// ProtocolVersion is the current envelope version. Packets carrying
// any other version are dropped by the receiver.
const ProtocolVersion uint8 = 1

// CBOR map keys for the packet envelope.
const (
	KeyVersion   = 1
	KeyKind      = 2
	KeySender    = 3
	KeySeq       = 4
	KeyFrameID   = 5
	KeyFragIndex = 6
	KeyFragCount = 7
	KeyPayload   = 8
)

// Kind identifies what a packet is for and which layer consumes it.
type Kind uint8

const (
	// KindConnectRequest opens the handshake. The envelope sender is
	// the requester's announced id (zero = assign one for me); the
	// payload is a ConnectRequest.
	KindConnectRequest Kind = 1

	// KindConnectAccept answers a request. The payload is a
	// ConnectAccept carrying the id the responder admitted.
	KindConnectAccept Kind = 2

	// KindHeartbeat is the periodic liveness probe. The payload is a
	// Heartbeat carrying the RTT nonce/echo and gossip entries.
	KindHeartbeat Kind = 3

	// KindData carries one complete application message.
	KindData Kind = 4

	// KindFragment carries one piece of a fragmented message.
	KindFragment Kind = 5

	// KindAck acknowledges a Data or Fragment packet by sequence.
	KindAck Kind = 6
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConnectRequest:
		return "connect-request"
	case KindConnectAccept:
		return "connect-accept"
	case KindHeartbeat:
		return "heartbeat"
	case KindData:
		return "data"
	case KindFragment:
		return "fragment"
	case KindAck:
		return "ack"
	default:
		return "unknown"
	}
}

// IsValid returns true if the kind is one this version understands.
func (k Kind) IsValid() bool {
	return k >= KindConnectRequest && k <= KindAck
}

// Reliable reports whether packets of this kind carry a sequence
// number and pass through the reliable layer.
func (k Kind) Reliable() bool {
	return k == KindData || k == KindFragment || k == KindAck
}

// Packet is the envelope carried by every datagram.
//
// CBOR encoding:
//
//	{
//	  1: version,    // uint8, currently 1
//	  2: kind,       // uint8
//	  3: sender,     // bytes(16), zero id during handshake
//	  4: seq,        // uint64, data/fragment/ack only, starts at 1
//	  5: frameId,    // uint64, fragment only, starts at 1
//	  6: fragIndex,  // uint32, fragment only, zero-based
//	  7: fragCount,  // uint32, fragment only
//	  8: payload     // bytes, kind-specific
//	}
//
// Sequence numbers and frame ids start at 1 so that zero always
// means "absent".
type Packet struct {
	Version   uint8  `cbor:"1,keyasint"`
	Kind      Kind   `cbor:"2,keyasint"`
	Sender    PeerID `cbor:"3,keyasint"`
	Seq       uint64 `cbor:"4,keyasint,omitempty"`
	FrameID   uint64 `cbor:"5,keyasint,omitempty"`
	FragIndex uint32 `cbor:"6,keyasint,omitempty"`
	FragCount uint32 `cbor:"7,keyasint,omitempty"`
	Payload   []byte `cbor:"8,keyasint,omitempty"`
}

// Validate checks envelope consistency. Receivers drop packets that
// fail validation without surfacing an error to the application.
func (p *Packet) Validate() error {
	if p.Version != ProtocolVersion {
		return fmt.Errorf("unsupported version %d", p.Version)
	}
	if !p.Kind.IsValid() {
		return fmt.Errorf("unknown kind %d", uint8(p.Kind))
	}
	if p.Sender.IsZero() && p.Kind != KindConnectRequest {
		return fmt.Errorf("%s packet without sender id", p.Kind)
	}
	if p.Kind.Reliable() {
		if p.Seq == 0 {
			return fmt.Errorf("%s packet without sequence", p.Kind)
		}
	} else if p.Seq != 0 {
		return fmt.Errorf("%s packet with sequence %d", p.Kind, p.Seq)
	}
	if p.Kind == KindFragment {
		if p.FrameID == 0 {
			return fmt.Errorf("fragment without frame id")
		}
		if p.FragCount == 0 {
			return fmt.Errorf("fragment without fragment count")
		}
		if p.FragIndex >= p.FragCount {
			return fmt.Errorf("fragment index %d out of range (count %d)", p.FragIndex, p.FragCount)
		}
	} else if p.FrameID != 0 || p.FragIndex != 0 || p.FragCount != 0 {
		return fmt.Errorf("%s packet with fragment fields", p.Kind)
	}
	return nil
}
