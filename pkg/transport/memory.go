package transport

import (
	"fmt"
	"net/netip"
	"sync"
)

// memoryQueueSize bounds the per-endpoint receive queue, mirroring
// the UDP conn's behavior of dropping when the consumer lags.
const memoryQueueSize = 4096

// FilterFunc inspects a datagram in flight on a MemoryNetwork.
// Returning false drops it. The filter sees every send, even to
// addresses nobody listens on, and runs on the sender's goroutine,
// so tests can count, reorder, or capture traffic deterministically.
type FilterFunc func(from, to netip.AddrPort, payload []byte) bool

// MemoryNetwork routes datagrams between in-process endpoints. It
// behaves like an ideal LAN: synchronous delivery, no reordering,
// no loss unless a filter or a full queue says otherwise. Datagrams
// to addresses nobody listens on vanish, as they would on a real
// network.
type MemoryNetwork struct {
	mu     sync.Mutex
	conns  map[netip.AddrPort]*MemoryConn
	filter FilterFunc
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		conns: make(map[netip.AddrPort]*MemoryConn),
	}
}

// Listen attaches a new endpoint at addr.
func (n *MemoryNetwork) Listen(addr netip.AddrPort) (*MemoryConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.conns[addr]; ok {
		return nil, fmt.Errorf("listen %s: %w", addr, ErrAddrInUse)
	}
	c := &MemoryConn{net: n, local: addr}
	n.conns[addr] = c
	return c, nil
}

// MustListen is Listen for tests: it parses addr ("10.0.0.1:9000")
// and panics on any error.
func (n *MemoryNetwork) MustListen(addr string) *MemoryConn {
	c, err := n.Listen(netip.MustParseAddrPort(addr))
	if err != nil {
		panic(err)
	}
	return c
}

// SetFilter installs f as the network's delivery filter. A nil f
// restores lossless delivery.
func (n *MemoryNetwork) SetFilter(f FilterFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.filter = f
}

// deliver routes one datagram. The payload is copied so senders can
// reuse their buffers.
func (n *MemoryNetwork) deliver(from, to netip.AddrPort, payload []byte) {
	n.mu.Lock()
	target := n.conns[to]
	filter := n.filter
	n.mu.Unlock()

	if filter != nil && !filter(from, to, payload) {
		return
	}
	if target == nil {
		return
	}

	p := make([]byte, len(payload))
	copy(p, payload)

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.closed || len(target.queue) >= memoryQueueSize {
		return
	}
	target.queue = append(target.queue, Datagram{Addr: from, Payload: p})
}

func (n *MemoryNetwork) drop(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.conns, addr)
}

// MemoryConn is one endpoint on a MemoryNetwork.
type MemoryConn struct {
	net   *MemoryNetwork
	local netip.AddrPort

	mu     sync.Mutex
	queue  []Datagram
	closed bool
}

// Send routes one datagram through the network.
func (c *MemoryConn) Send(addr netip.AddrPort, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.net.deliver(c.local, addr, payload)
	return nil
}

// Recv returns the next queued datagram without blocking.
func (c *MemoryConn) Recv() (Datagram, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.queue) == 0 {
		return Datagram{}, false
	}
	d := c.queue[0]
	c.queue = c.queue[1:]
	return d, true
}

// LocalAddr returns the endpoint's address.
func (c *MemoryConn) LocalAddr() netip.AddrPort {
	return c.local
}

// Close detaches the endpoint from the network.
func (c *MemoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	c.net.drop(c.local)
	return nil
}
