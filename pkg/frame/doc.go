// Package frame splits large messages into MTU-sized fragments and
// reassembles them on the receiving side. It sits between the reliable
// and persistent layers of the meshwire stack:
//
//	┌─────────────────────────┐
//	│   persistent.Socket     │  identity, lifecycle, heartbeats
//	├─────────────────────────┤
//	│      frame.Socket       │  fragmentation / reassembly   ← this package
//	├─────────────────────────┤
//	│    reliable.Socket      │  sequencing, acks, retransmit
//	├─────────────────────────┤
//	│     transport.Conn      │  raw datagrams
//	└─────────────────────────┘
//
// # Sending
//
// Send accepts a payload of any size up to MaxFragmentData ×
// MaxFragmentCount bytes. Payloads that fit in one fragment travel as
// a single Data packet; larger ones are cut into Fragment packets that
// share a frame id and are each submitted to the reliable layer on
// their own. Retransmission of a lost fragment is entirely the
// reliable layer's job; this package never resends.
//
// # Reassembly
//
// Fragments are buffered per (source address, frame id) until every
// declared index has arrived, then concatenated in index order and
// surfaced as one Message event. Buffers that stay incomplete for
// ReassemblyTimeout are discarded, and each peer holds at most
// MaxPendingFrames buffers; admitting one more evicts that peer's
// oldest. Fragments whose declared count disagrees with the buffer
// they target are dropped.
//
// # Ordering
//
// There is no ordering across frames. A small message sent after a
// large one may well complete first; callers that need ordering must
// impose it on their payloads.
//
// Like the layers around it, the socket is pump-driven and must be
// used from a single goroutine.
package frame
