package transport

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
)

const (
	// maxDatagramSize is the largest datagram the reader accepts.
	maxDatagramSize = 65535

	// recvQueueSize bounds how many datagrams buffer between pumps.
	recvQueueSize = 1024
)

// UDPConn is a Conn backed by a real UDP socket. A single reader
// goroutine moves datagrams into a bounded queue; everything else
// happens on the caller's schedule.
type UDPConn struct {
	conn     *net.UDPConn
	local    netip.AddrPort
	incoming chan Datagram

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	logger log.Logger
}

// ListenUDP binds a UDP socket on the given port. Port 0 asks the OS
// for an ephemeral port. The returned error wraps the OS bind error
// and is the one fatal error this layer produces.
func ListenUDP(port uint16) (*UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("bind udp port %d: %w", port, err)
	}

	c := &UDPConn{
		conn:     conn,
		local:    conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		incoming: make(chan Datagram, recvQueueSize),
		logger:   log.NoopLogger{},
	}
	go c.readLoop()
	return c, nil
}

// SetLogger attaches a protocol event logger. Only queue overflow
// drops are logged at this layer; packet logging belongs to the
// layers that understand the envelope.
func (c *UDPConn) SetLogger(logger log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// readLoop owns the blocking socket reads. It copies each datagram
// into the queue and drops on overflow.
func (c *UDPConn) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := c.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if c.closed.Load() {
				return
			}
			// Transient read errors (e.g. ICMP port unreachable
			// surfacing on some platforms) do not stop the loop.
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case c.incoming <- Datagram{Addr: addr, Payload: payload}:
		default:
			c.logger.Log(log.Event{
				Timestamp:  time.Now(),
				Direction:  log.DirectionIn,
				Layer:      log.LayerTransport,
				Category:   log.CategoryDrop,
				RemoteAddr: addr.String(),
				Drop:       &log.DropEvent{Reason: "recv-queue-full", Size: n},
			})
		}
	}
}

// Send transmits one datagram.
func (c *UDPConn) Send(addr netip.AddrPort, payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if _, err := c.conn.WriteToUDPAddrPort(payload, addr); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

// Recv returns the next buffered datagram without blocking.
func (c *UDPConn) Recv() (Datagram, bool) {
	if c.closed.Load() {
		return Datagram{}, false
	}
	select {
	case d := <-c.incoming:
		return d, true
	default:
		return Datagram{}, false
	}
}

// LocalAddr returns the bound address.
func (c *UDPConn) LocalAddr() netip.AddrPort {
	return c.local
}

// Close shuts the socket down and stops the reader goroutine.
func (c *UDPConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
