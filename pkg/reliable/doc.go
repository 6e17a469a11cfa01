// Package reliable implements sequencing, acknowledgment, and
// retransmission over an unreliable datagram transport.
//
// Every Data and Fragment packet gets a per-destination sequence
// number and is retransmitted on a backoff schedule until the peer
// acknowledges it or the retry budget runs out. Inbound packets are
// acknowledged unconditionally and deduplicated against a bounded
// window of recently seen sequence numbers, so a retransmitted
// packet whose ack was lost is re-acked but delivered only once.
//
// Packet kinds that carry no sequence number (handshake and
// heartbeat) pass through this layer untouched in both directions:
// SendControl transmits them fire-and-forget, and inbound ones
// surface as EventControl for the persistent layer.
//
// # Pump Model
//
// The socket does no background work. Each Pump call drains the
// transport, acks and dedups what arrived, and then retransmits
// every unacknowledged packet whose timeout expired, doubling its
// timeout up to a cap. Give-ups surface as EventGaveUp; the owner
// decides what a failed delivery means for the peer.
//
// # Guarantees and non-guarantees
//
// Sequence numbers are strictly monotonic per destination and are
// never reused, even after delivery failure. Delivery order is not
// guaranteed; duplicate suppression is.
package reliable
