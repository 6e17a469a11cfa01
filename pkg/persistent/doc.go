// Package persistent is the top layer of the meshwire stack: it gives
// peers stable identities and keeps track of who is reachable.
//
// Below it, the frame layer moves arbitrarily large messages and the
// reliable layer makes individual packets stick. This layer adds what
// an application actually wants to talk to:
//
//   - a PeerID per node, minted locally and settled during the
//     connection handshake,
//   - a lifecycle per peer: Connecting → Connected → Disconnected,
//   - heartbeats with RTT estimation while Connected,
//   - liveness timeouts that turn silence into Disconnected,
//   - gossip: heartbeats advertise known peers so a mesh converges
//     without every node dialing every other,
//   - address migration: a known peer reappearing from a new address
//     is followed, not dropped.
//
// # Handshake
//
// A joining node sends ConnectRequest announcing its PeerID (or the
// zero id if it has none yet). The responder admits the announced id
// when it is free, otherwise assigns a fresh one, and answers
// ConnectAccept carrying the admitted id. The requester adopts
// whatever id comes back. Requests are re-sent every heartbeat
// interval until accepted or the join times out.
//
// # Identity rules
//
// A PeerID that reached Connected and then disconnected is tombstoned:
// it never appears again, and a node rejoining from scratch is
// admitted under a fresh id. Lifecycle events exist only for peers the
// application saw connect; handshakes that never complete expire
// silently.
//
// # Pump contract
//
// Like every layer here, the socket does no background work. Call
// Pump regularly; it drains the stack below, advances all timers off
// the injected clock, and returns events with lifecycle changes
// ordered ahead of message deliveries. The socket is not safe for
// concurrent use.
package persistent
