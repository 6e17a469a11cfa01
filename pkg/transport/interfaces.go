package transport

import (
	"errors"
	"net/netip"
)

// Transport errors.
var (
	// ErrClosed indicates the endpoint has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrAddrInUse indicates the address already has a listener.
	ErrAddrInUse = errors.New("address already in use")
)

// Datagram is one received datagram and where it came from.
type Datagram struct {
	Addr    netip.AddrPort
	Payload []byte
}

// Conn is a non-blocking datagram endpoint.
// Implemented by UDPConn and MemoryConn.
type Conn interface {
	// Send transmits one datagram to addr. Best effort: delivery,
	// ordering, and uniqueness are the layers' above problem.
	Send(addr netip.AddrPort, payload []byte) error

	// Recv returns the next buffered datagram. It never blocks; the
	// second return is false when nothing is pending.
	Recv() (Datagram, bool)

	// LocalAddr returns the bound address.
	LocalAddr() netip.AddrPort

	// Close releases the endpoint. Safe to call more than once.
	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ Conn = (*UDPConn)(nil)
	_ Conn = (*MemoryConn)(nil)
)
