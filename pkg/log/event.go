package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// NodeID is the local node's peer id (UUID string). Empty while
	// the node is still negotiating its identity.
	NodeID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates packet flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Peer is the remote peer id (UUID string), when known.
	Peer string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Packet      *PacketEvent      `cbor:"10,keyasint,omitempty"` // A wire packet in or out
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Peer lifecycle
	RTT         *RTTEvent         `cbor:"12,keyasint,omitempty"` // Round-trip sample
	Drop        *DropEvent        `cbor:"13,keyasint,omitempty"` // Discarded data
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of packet flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming packet.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing packet.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the raw datagram layer.
	LayerTransport Layer = 0
	// LayerReliable is the sequencing/retransmission layer.
	LayerReliable Layer = 1
	// LayerFrame is the fragmentation/reassembly layer.
	LayerFrame Layer = 2
	// LayerPersistent is the peer lifecycle layer.
	LayerPersistent Layer = 3
	// LayerSession is the application session layer (lobby).
	LayerSession Layer = 4
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerReliable:
		return "RELIABLE"
	case LayerFrame:
		return "FRAME"
	case LayerPersistent:
		return "PERSISTENT"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket indicates a wire packet was sent or received.
	CategoryPacket Category = 0
	// CategoryState indicates a peer lifecycle change.
	CategoryState Category = 1
	// CategoryRTT indicates a round-trip time sample.
	CategoryRTT Category = 2
	// CategoryDrop indicates data was discarded.
	CategoryDrop Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryState:
		return "STATE"
	case CategoryRTT:
		return "RTT"
	case CategoryDrop:
		return "DROP"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PacketEvent captures one wire packet crossing a layer boundary.
type PacketEvent struct {
	// Kind is the packet kind name (data, fragment, ack, ...).
	Kind string `cbor:"1,keyasint"`

	// Seq is the reliable sequence number (0 for control kinds).
	Seq uint64 `cbor:"2,keyasint,omitempty"`

	// FrameID identifies the frame for fragment packets.
	FrameID uint64 `cbor:"3,keyasint,omitempty"`

	// FragIndex/FragCount describe the fragment position.
	FragIndex uint32 `cbor:"4,keyasint,omitempty"`
	FragCount uint32 `cbor:"5,keyasint,omitempty"`

	// Size is the encoded datagram size in bytes.
	Size int `cbor:"6,keyasint"`

	// Resend marks a retransmission.
	Resend bool `cbor:"7,keyasint,omitempty"`

	// Retry is the retransmission attempt number (with Resend).
	Retry int `cbor:"8,keyasint,omitempty"`
}

// StateChangeEvent captures peer lifecycle transitions.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// RTTEvent captures one heartbeat round-trip sample.
type RTTEvent struct {
	// Sample is the raw round-trip measurement.
	Sample time.Duration `cbor:"1,keyasint"`

	// Smoothed is the exponential moving average after this sample.
	Smoothed time.Duration `cbor:"2,keyasint"`
}

// DropEvent captures discarded data at any layer: malformed
// datagrams, duplicates, evicted reassembly buffers, packets whose
// retry budget ran out.
type DropEvent struct {
	// Reason is a short machine-readable cause.
	Reason string `cbor:"1,keyasint"`

	// Size is the discarded byte count, when meaningful.
	Size int `cbor:"2,keyasint,omitempty"`

	// Seq is the sequence number involved, when meaningful.
	Seq uint64 `cbor:"3,keyasint,omitempty"`
}

// Drop reasons used across the stack.
const (
	DropMalformed         = "malformed"
	DropDuplicate         = "duplicate"
	DropStray             = "stray"
	DropRetryExhausted    = "retry-exhausted"
	DropReassemblyTimeout = "reassembly-timeout"
	DropBufferEvicted     = "buffer-evicted"
)

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
