// Package discovery implements mDNS/DNS-SD discovery for meshwire nodes.
//
// Nodes advertise the _meshwire._udp service with TXT records carrying
// the protocol version (v), the node's peer id (id), and its
// human-readable name (name). Instance names take the form
// "<name>-<short id>".
//
// The Advertiser announces the local node; the Browser finds others,
// either streaming (Browse) or one-shot (FindNodes). Discovery is
// advisory: joining a discovered node still runs the normal handshake,
// and an advertised id goes stale when the node restarts.
package discovery
