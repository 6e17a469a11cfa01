package persistent

// State is a peer's position in the connection lifecycle.
type State uint8

const (
	// StateConnecting means the handshake is in flight: we sent a
	// request, or admitted one, and are waiting for confirmation.
	StateConnecting State = iota + 1

	// StateConnected means the handshake completed and the peer is
	// heartbeating.
	StateConnected

	// StateDisconnected is terminal: liveness expired or the join
	// gave up. The peer's id is retired and never used again.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
