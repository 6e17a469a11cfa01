package frame

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/reliable"
	"github.com/meshwire-protocol/meshwire-go/pkg/transport"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

func newFrameSocket(t *testing.T, net *transport.MemoryNetwork, addr string, mock *clock.Mock, cfg Config) *Socket {
	t.Helper()

	relCfg := reliable.DefaultConfig()
	relCfg.LocalID = wire.NewPeerID()
	relCfg.Clock = mock
	if cfg.MaxFragmentData > relCfg.MaxPayloadSize {
		relCfg.MaxPayloadSize = cfg.MaxFragmentData
	}
	rel, err := reliable.New(net.MustListen(addr), relCfg)
	if err != nil {
		t.Fatalf("reliable.New failed: %v", err)
	}

	cfg.Clock = mock
	s, err := New(rel, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func messagesOf(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == EventMessage {
			out = append(out, ev)
		}
	}
	return out
}

// patternedPayload builds a payload whose content encodes its offsets,
// so reassembly order mistakes show up as content mismatches.
func patternedPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

// rawPeer crafts fragment packets directly, bypassing the frame
// layer, to exercise reassembly edge cases.
type rawPeer struct {
	t    *testing.T
	conn *transport.MemoryConn
	id   wire.PeerID
	seq  uint64
}

func newRawPeer(t *testing.T, net *transport.MemoryNetwork, addr string) *rawPeer {
	t.Helper()
	return &rawPeer{t: t, conn: net.MustListen(addr), id: wire.NewPeerID()}
}

func (p *rawPeer) sendFragment(to netip.AddrPort, frameID uint64, index, count uint32, data []byte) {
	p.t.Helper()
	p.seq++
	pkt := wire.Packet{
		Version:   wire.ProtocolVersion,
		Kind:      wire.KindFragment,
		Sender:    p.id,
		Seq:       p.seq,
		FrameID:   frameID,
		FragIndex: index,
		FragCount: count,
		Payload:   data,
	}
	raw, err := wire.EncodePacket(&pkt)
	if err != nil {
		p.t.Fatalf("EncodePacket failed: %v", err)
	}
	if err := p.conn.Send(to, raw); err != nil {
		p.t.Fatalf("raw send failed: %v", err)
	}
}

// drain discards queued acks so the raw endpoint's queue stays empty.
func (p *rawPeer) drain() {
	for {
		if _, ok := p.conn.Recv(); !ok {
			return
		}
	}
}

func TestSinglePacketMessage(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	a := newFrameSocket(t, net, "10.0.0.1:9000", mock, DefaultConfig())
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())

	payload := []byte("fits in one packet")
	if err := a.Send(b.LocalAddr(), payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Errorf("payload = %q, want %q", msgs[0].Payload, payload)
	}
	if msgs[0].FrameID != 0 {
		t.Errorf("single-packet message carries frame id %d, want 0", msgs[0].FrameID)
	}
	if msgs[0].Addr != a.LocalAddr() {
		t.Errorf("Addr = %s, want %s", msgs[0].Addr, a.LocalAddr())
	}
	if msgs[0].Sender != a.LocalID() {
		t.Errorf("Sender = %s, want %s", msgs[0].Sender, a.LocalID())
	}
}

func TestFragmentationRoundTrip(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()

	cfg := DefaultConfig()
	cfg.MaxFragmentData = 4096
	a := newFrameSocket(t, net, "10.0.0.1:9000", mock, cfg)
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, cfg)

	fragments := 0
	net.SetFilter(func(from, to netip.AddrPort, payload []byte) bool {
		if pkt, err := wire.DecodePacket(payload); err == nil && pkt.Kind == wire.KindFragment {
			fragments++
		}
		return true
	})

	payload := patternedPayload(9000)
	if err := a.Send(b.LocalAddr(), payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if fragments != 3 {
		t.Errorf("9000 bytes split into %d fragments, want 3", fragments)
	}

	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want exactly 1", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("reassembled payload differs from original (%d vs %d bytes)",
			len(msgs[0].Payload), len(payload))
	}
	if msgs[0].FrameID == 0 {
		t.Errorf("reassembled message carries frame id 0")
	}
	if msgs[0].Sender != a.LocalID() {
		t.Errorf("Sender = %s, want %s", msgs[0].Sender, a.LocalID())
	}

	// No stray second completion later.
	a.Pump()
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Errorf("frame completed twice")
	}
}

func TestOutOfOrderFragments(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	parts := [][]byte{[]byte("aaa"), []byte("bbb"), []byte("ccc")}
	for _, index := range []uint32{2, 0} {
		peer.sendFragment(b.LocalAddr(), 1, index, 3, parts[index])
	}
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Fatalf("frame completed with a fragment still missing")
	}

	peer.sendFragment(b.LocalAddr(), 1, 1, 3, parts[1])
	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after final fragment, want 1", len(msgs))
	}
	if got, want := string(msgs[0].Payload), "aaabbbccc"; got != want {
		t.Errorf("payload = %q, want %q (index order, not arrival order)", got, want)
	}
}

func TestDuplicateFragmentIgnored(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	// The same index twice under fresh sequence numbers, so the
	// reliable layer cannot suppress it.
	peer.sendFragment(b.LocalAddr(), 1, 1, 3, []byte("bbb"))
	peer.sendFragment(b.LocalAddr(), 1, 1, 3, []byte("bbb"))
	peer.sendFragment(b.LocalAddr(), 1, 0, 3, []byte("aaa"))
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Fatalf("duplicate fragment counted toward completion")
	}

	peer.sendFragment(b.LocalAddr(), 1, 2, 3, []byte("ccc"))
	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 || string(msgs[0].Payload) != "aaabbbccc" {
		t.Fatalf("got messages %+v, want one %q", msgs, "aaabbbccc")
	}
}

func TestReassemblyTimeout(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	peer.sendFragment(b.LocalAddr(), 1, 0, 2, []byte("half"))
	b.Pump()

	mock.Add(DefaultReassemblyTimeout)
	b.Pump() // sweep discards the stale buffer

	// The late half starts a new, incomplete buffer.
	peer.sendFragment(b.LocalAddr(), 1, 1, 2, []byte("late"))
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Fatalf("frame completed from a timed-out buffer")
	}
}

func TestMismatchedCountDropped(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	peer.sendFragment(b.LocalAddr(), 1, 0, 3, []byte("aaa"))
	peer.sendFragment(b.LocalAddr(), 1, 1, 4, []byte("LIE")) // wrong total
	b.Pump()

	// The frame still completes from consistently declared fragments.
	peer.sendFragment(b.LocalAddr(), 1, 1, 3, []byte("bbb"))
	peer.sendFragment(b.LocalAddr(), 1, 2, 3, []byte("ccc"))
	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 || string(msgs[0].Payload) != "aaabbbccc" {
		t.Fatalf("got messages %+v, want one %q", msgs, "aaabbbccc")
	}
}

func TestOversizedFragmentCountRejected(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()

	cfg := DefaultConfig()
	cfg.MaxFragmentCount = 4
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, cfg)
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	// Declares more fragments than the receiver will ever buffer.
	peer.sendFragment(b.LocalAddr(), 1, 0, 5, []byte("x"))
	b.Pump()

	for i := uint32(1); i < 5; i++ {
		peer.sendFragment(b.LocalAddr(), 1, i, 5, []byte("x"))
	}
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Fatalf("over-declared frame completed")
	}
}

func TestPendingFrameCapEvictsOldest(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()

	cfg := DefaultConfig()
	cfg.MaxPendingFrames = 2
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, cfg)
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	// Three incomplete frames; admitting the third evicts frame 1.
	for frameID := uint64(1); frameID <= 3; frameID++ {
		peer.sendFragment(b.LocalAddr(), frameID, 0, 2, []byte("first"))
	}
	b.Pump()

	// Frames 2 and 3 survived and complete.
	peer.sendFragment(b.LocalAddr(), 2, 1, 2, []byte("second"))
	peer.sendFragment(b.LocalAddr(), 3, 1, 2, []byte("second"))
	if msgs := messagesOf(b.Pump()); len(msgs) != 2 {
		t.Fatalf("got %d messages from surviving frames, want 2", len(msgs))
	}

	// Frame 1 lost its first half to the eviction.
	peer.sendFragment(b.LocalAddr(), 1, 1, 2, []byte("second"))
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Fatalf("evicted frame completed")
	}
}

func TestMessageTooLarge(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()

	cfg := DefaultConfig()
	cfg.MaxFragmentData = 10
	cfg.MaxFragmentCount = 4
	a := newFrameSocket(t, net, "10.0.0.1:9000", mock, cfg)
	dst := netip.MustParseAddrPort("10.0.0.2:9000")

	sent := 0
	net.SetFilter(func(from, to netip.AddrPort, payload []byte) bool {
		sent++
		return true
	})

	if err := a.Send(dst, patternedPayload(41)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("Send(41 bytes) error = %v, want ErrMessageTooLarge", err)
	}
	if sent != 0 {
		t.Errorf("rejected message still transmitted %d packets", sent)
	}

	// Exactly at the limit is fine.
	if err := a.Send(dst, patternedPayload(40)); err != nil {
		t.Fatalf("Send(40 bytes) failed: %v", err)
	}
	if sent != 4 {
		t.Errorf("40-byte message sent %d packets, want 4", sent)
	}
}

func TestSmallMessageOvertakesLargeOne(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()

	cfg := DefaultConfig()
	cfg.MaxFragmentData = 4
	a := newFrameSocket(t, net, "10.0.0.1:9000", mock, cfg)
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, cfg)

	// Lose the large frame's first fragment once.
	lost := false
	net.SetFilter(func(from, to netip.AddrPort, payload []byte) bool {
		pkt, err := wire.DecodePacket(payload)
		if err == nil && pkt.Kind == wire.KindFragment && pkt.FragIndex == 0 && !lost {
			lost = true
			return false
		}
		return true
	})

	if err := a.Send(b.LocalAddr(), []byte("bigbigbig")); err != nil {
		t.Fatalf("Send large failed: %v", err)
	}
	if err := a.Send(b.LocalAddr(), []byte("wee")); err != nil {
		t.Fatalf("Send small failed: %v", err)
	}

	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 || string(msgs[0].Payload) != "wee" {
		t.Fatalf("got messages %+v, want only %q before the resend", msgs, "wee")
	}

	// The resend completes the large frame.
	a.Pump()
	mock.Add(reliable.DefaultInitialRTO)
	a.Pump()
	msgs = messagesOf(b.Pump())
	if len(msgs) != 1 || string(msgs[0].Payload) != "bigbigbig" {
		t.Fatalf("got messages %+v after resend, want %q", msgs, "bigbigbig")
	}
}

func TestDeliveryFailedRelayed(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()

	relCfg := reliable.DefaultConfig()
	relCfg.LocalID = wire.NewPeerID()
	relCfg.Clock = mock
	relCfg.InitialRTO = 10 * time.Millisecond
	relCfg.MaxRTO = 10 * time.Millisecond
	relCfg.MaxRetries = 1
	rel, err := reliable.New(net.MustListen("10.0.0.1:9000"), relCfg)
	if err != nil {
		t.Fatalf("reliable.New failed: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Clock = mock
	a, err := New(rel, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	net.SetFilter(func(from, to netip.AddrPort, payload []byte) bool { return false })

	dst := netip.MustParseAddrPort("10.0.0.2:9000")
	if err := a.Send(dst, []byte("doomed")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var failed []Event
	for i := 0; i < 3 && len(failed) == 0; i++ {
		mock.Add(10 * time.Millisecond)
		for _, ev := range a.Pump() {
			if ev.Kind == EventDeliveryFailed {
				failed = append(failed, ev)
			}
		}
	}
	if len(failed) != 1 {
		t.Fatalf("got %d delivery failures, want 1", len(failed))
	}
	if failed[0].Addr != dst || failed[0].Seq == 0 {
		t.Errorf("failure addr=%s seq=%d, want addr=%s with a real seq", failed[0].Addr, failed[0].Seq, dst)
	}
}

func TestControlRelayed(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	pkt := wire.Packet{
		Version: wire.ProtocolVersion,
		Kind:    wire.KindHeartbeat,
		Sender:  peer.id,
	}
	raw, err := wire.EncodePacket(&pkt)
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	if err := peer.conn.Send(b.LocalAddr(), raw); err != nil {
		t.Fatalf("raw send failed: %v", err)
	}

	events := b.Pump()
	if len(events) != 1 || events[0].Kind != EventControl {
		t.Fatalf("got events %+v, want one control event", events)
	}
	if events[0].Packet.Kind != wire.KindHeartbeat {
		t.Errorf("control kind = %s, want heartbeat", events[0].Packet.Kind)
	}
}

func TestDropPeerDiscardsBuffers(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())
	peer := newRawPeer(t, net, "10.0.0.9:9000")

	peer.sendFragment(b.LocalAddr(), 1, 0, 2, []byte("half"))
	b.Pump()
	peer.drain()

	b.DropPeer(peer.conn.LocalAddr())

	peer.sendFragment(b.LocalAddr(), 1, 1, 2, []byte("rest"))
	if msgs := messagesOf(b.Pump()); len(msgs) != 0 {
		t.Fatalf("frame completed across DropPeer")
	}
}

func TestRebindMovesBuffers(t *testing.T) {
	net := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	b := newFrameSocket(t, net, "10.0.0.2:9000", mock, DefaultConfig())

	oldPeer := newRawPeer(t, net, "10.0.0.9:9000")
	newPeer := newRawPeer(t, net, "10.0.0.10:9000")
	newPeer.id = oldPeer.id
	newPeer.seq = 100 // distinct sequence range, same sender

	oldPeer.sendFragment(b.LocalAddr(), 1, 0, 2, []byte("aaaa"))
	b.Pump()

	b.Rebind(oldPeer.conn.LocalAddr(), newPeer.conn.LocalAddr())

	newPeer.sendFragment(b.LocalAddr(), 1, 1, 2, []byte("bbbb"))
	msgs := messagesOf(b.Pump())
	if len(msgs) != 1 || string(msgs[0].Payload) != "aaaabbbb" {
		t.Fatalf("got messages %+v, want one %q", msgs, "aaaabbbb")
	}
	if msgs[0].Addr != newPeer.conn.LocalAddr() {
		t.Errorf("message addr = %s, want the new address %s", msgs[0].Addr, newPeer.conn.LocalAddr())
	}
}
