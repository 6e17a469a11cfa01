package persistent

import (
	"net/netip"
	"time"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// peerRecord is the socket's bookkeeping for one remote peer. Records
// exist only while Connecting or Connected; disconnection deletes the
// record and tombstones the id.
type peerRecord struct {
	id        wire.PeerID
	announced wire.PeerID // id the peer claimed in its request
	name      string
	addr      netip.AddrPort
	state     State
	createdAt time.Time

	// Heartbeat and RTT bookkeeping, meaningful once Connected.
	lastHeartbeatAt time.Time
	pingNonce       uint32
	pingSentAt      time.Time
	srtt            time.Duration
	hasRTT          bool
}

// Handle tracks one outbound join. The socket updates it as the
// handshake progresses; inspect it between pumps, never concurrently
// with one.
type Handle struct {
	addr          netip.AddrPort
	state         State
	peer          wire.PeerID
	startedAt     time.Time
	lastRequestAt time.Time
}

// Addr returns the address being joined.
func (h *Handle) Addr() netip.AddrPort { return h.addr }

// State reports the handshake's progress: Connecting while in
// flight, Connected on success, Disconnected after giving up.
func (h *Handle) State() State { return h.state }

// Peer returns the responder's identity once the handshake
// completed.
func (h *Handle) Peer() (wire.PeerID, bool) { return h.peer, !h.peer.IsZero() }
