// Package wire defines the CBOR wire format for meshwire datagrams.
//
// Every UDP datagram carries exactly one Packet, encoded as a CBOR
// (RFC 8949) map with integer keys. The envelope is self-describing
// and versioned so that schema changes never require a flag day: a
// node that sees an unknown version drops the datagram, and unknown
// map keys are ignored on decode.
//
// # Packet Kinds
//
// Six kinds cross the wire:
//   - ConnectRequest / ConnectAccept: the connection handshake
//   - Heartbeat: liveness probe, RTT echo, and gossip carrier
//   - Data: a complete application message
//   - Fragment: one piece of a fragmented application message
//   - Ack: acknowledgment of a Data or Fragment packet
//
// Only Data, Fragment, and Ack carry a sequence number and pass
// through the reliable layer. Handshake and heartbeat packets ride
// raw datagrams: they are periodic by nature, so retransmission is
// the sender's schedule rather than the reliable layer's job.
//
// # Peer Identity
//
// A PeerID is a 16-byte UUIDv4. The zero PeerID is reserved as the
// handshake placeholder: a connection request from a node that wants
// the responder to assign its identity carries the zero id.
package wire
