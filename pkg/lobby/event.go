package lobby

import "github.com/meshwire-protocol/meshwire-go/pkg/wire"

// EventKind classifies what a session pump observed.
type EventKind uint8

const (
	// EventPeerJoined fires when a peer reaches the mesh.
	EventPeerJoined EventKind = iota + 1

	// EventPeerLeft fires when a peer drops out. Its readiness flag
	// is forgotten.
	EventPeerLeft

	// EventReadyChanged reports a peer's readiness flag.
	EventReadyChanged

	// EventStartScheduled fires once per run, when the local node
	// schedules its countdown, whether as leader or on order.
	EventStartScheduled

	// EventStarted fires when the countdown runs out.
	EventStarted

	// EventMessage carries application data from a peer's Send or
	// Broadcast.
	EventMessage

	// EventDeliveryFailed reports a payload that exhausted its
	// retries below.
	EventDeliveryFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventReadyChanged:
		return "ready-changed"
	case EventStartScheduled:
		return "start-scheduled"
	case EventStarted:
		return "started"
	case EventMessage:
		return "message"
	case EventDeliveryFailed:
		return "delivery-failed"
	default:
		return "unknown"
	}
}

// Event is one observation from a session pump.
type Event struct {
	Kind EventKind

	// Peer identifies the peer the event concerns, when there is one.
	Peer wire.PeerID

	// Ready is the peer's new flag for EventReadyChanged.
	Ready bool

	// Run names the scheduled run for EventStartScheduled and
	// EventStarted.
	Run wire.PeerID

	// Ticks is the local countdown length for EventStartScheduled.
	Ticks uint32

	// Payload is the application data for EventMessage.
	Payload []byte

	// Seq identifies the abandoned packet for EventDeliveryFailed.
	Seq uint64
}
