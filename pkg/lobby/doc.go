// Package lobby coordinates a simultaneous session start across a
// mesh of meshwire nodes.
//
// A Session wraps a persistent socket. Nodes flag readiness with
// SetReady; every flag change is broadcast to the mesh. The leader,
// the node with the smallest PeerID among itself and its connected
// peers, watches the flags, and once it sees every peer ready it
// broadcasts a start order naming a fresh run id and a countdown in
// ticks. Each node adjusts the countdown by half its round-trip
// estimate to the leader so the starts land close together, counts
// pumps, and emits Started when the countdown runs out.
//
// # Ticks
//
// The session has no timers of its own. One Pump is one tick: the
// application's pump cadence defines real-time tick length, and
// Config.TickInterval tells the session what that cadence is so it
// can convert round-trip times into ticks.
//
// # Messages
//
// Session traffic rides the persistent layer's payload channel,
// framed as CBOR envelopes. Application data sent through
// Session.Send travels in the same framing and comes back out as
// EventMessage on the remote side. Payloads that do not decode as
// session envelopes are dropped.
package lobby
