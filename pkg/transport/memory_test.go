package transport

import (
	"bytes"
	"net/netip"
	"testing"
)

func TestMemoryNetworkDelivers(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.MustListen("10.0.0.1:9000")
	b := net.MustListen("10.0.0.2:9000")

	if err := a.Send(b.LocalAddr(), []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	d, ok := b.Recv()
	if !ok {
		t.Fatalf("Recv returned nothing")
	}
	if !bytes.Equal(d.Payload, []byte("hello")) {
		t.Errorf("Payload = %q, want %q", d.Payload, "hello")
	}
	if d.Addr != a.LocalAddr() {
		t.Errorf("Addr = %v, want %v", d.Addr, a.LocalAddr())
	}

	// Queue is now empty
	if _, ok := b.Recv(); ok {
		t.Errorf("Recv returned a datagram from an empty queue")
	}
}

func TestMemoryNetworkPreservesOrder(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.MustListen("10.0.0.1:9000")
	b := net.MustListen("10.0.0.2:9000")

	for i := byte(0); i < 10; i++ {
		if err := a.Send(b.LocalAddr(), []byte{i}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}
	for i := byte(0); i < 10; i++ {
		d, ok := b.Recv()
		if !ok {
			t.Fatalf("Recv %d returned nothing", i)
		}
		if d.Payload[0] != i {
			t.Errorf("datagram %d out of order: got %d", i, d.Payload[0])
		}
	}
}

func TestMemoryNetworkFilterDrops(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.MustListen("10.0.0.1:9000")
	b := net.MustListen("10.0.0.2:9000")

	dropped := 0
	net.SetFilter(func(from, to netip.AddrPort, payload []byte) bool {
		dropped++
		return false
	})

	if err := a.Send(b.LocalAddr(), []byte("lost")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, ok := b.Recv(); ok {
		t.Errorf("filtered datagram was delivered")
	}
	if dropped != 1 {
		t.Errorf("filter saw %d datagrams, want 1", dropped)
	}

	// Removing the filter restores delivery
	net.SetFilter(nil)
	if err := a.Send(b.LocalAddr(), []byte("kept")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, ok := b.Recv(); !ok {
		t.Errorf("unfiltered datagram was not delivered")
	}
}

func TestMemoryNetworkUnknownDestination(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.MustListen("10.0.0.1:9000")

	// Nobody listens there; must not error, must not panic
	if err := a.Send(netip.MustParseAddrPort("10.0.0.9:9000"), []byte("void")); err != nil {
		t.Errorf("Send to unknown destination errored: %v", err)
	}
}

func TestMemoryNetworkAddrInUse(t *testing.T) {
	net := NewMemoryNetwork()
	net.MustListen("10.0.0.1:9000")

	if _, err := net.Listen(netip.MustParseAddrPort("10.0.0.1:9000")); err == nil {
		t.Errorf("Listen on an occupied address succeeded")
	}
}

func TestMemoryConnClose(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.MustListen("10.0.0.1:9000")
	b := net.MustListen("10.0.0.2:9000")

	if err := a.Send(b.LocalAddr(), []byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Closed endpoints receive nothing, not even queued datagrams
	if _, ok := b.Recv(); ok {
		t.Errorf("Recv returned a datagram after Close")
	}
	if err := b.Send(a.LocalAddr(), []byte("y")); err == nil {
		t.Errorf("Send after Close succeeded")
	}

	// Sending to the closed endpoint is a silent loss
	if err := a.Send(b.LocalAddr(), []byte("z")); err != nil {
		t.Errorf("Send to closed endpoint errored: %v", err)
	}

	// The address can be reused after Close
	if _, err := net.Listen(netip.MustParseAddrPort("10.0.0.2:9000")); err != nil {
		t.Errorf("Listen after Close failed: %v", err)
	}
}
