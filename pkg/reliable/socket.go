package reliable

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
	"github.com/meshwire-protocol/meshwire-go/pkg/transport"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Reliable layer errors.
var (
	// ErrPayloadTooLarge indicates the payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBadKind indicates a packet kind was handed to the wrong send
	// path: Send takes sequenced kinds, SendControl the rest.
	ErrBadKind = errors.New("wrong packet kind for this send path")
)

// entryKey identifies an unacknowledged packet.
type entryKey struct {
	addr netip.AddrPort
	seq  uint64
}

// outgoingEntry is one packet awaiting acknowledgment. The encoded
// bytes are kept verbatim so retransmissions are byte-identical.
type outgoingEntry struct {
	data    []byte
	sentAt  time.Time
	rto     time.Duration
	retries int

	// Decoded header fields retained for logging.
	kind      wire.Kind
	frameID   uint64
	fragIndex uint32
	fragCount uint32
}

// Socket provides acknowledged, deduplicated packet exchange over a
// transport.Conn. It is pump-driven and not safe for concurrent use;
// drive it from a single goroutine.
type Socket struct {
	conn   transport.Conn
	cfg    Config
	clock  clock.Clock
	logger log.Logger

	localID wire.PeerID
	nodeStr string

	nextSeq   map[netip.AddrPort]uint64
	outgoing  map[entryKey]*outgoingEntry
	windows   map[netip.AddrPort]*seqWindow
	lastHeard map[netip.AddrPort]time.Time
}

// New creates a reliable socket over conn.
func New(conn transport.Conn, cfg Config) (*Socket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reliable config: %w", err)
	}
	cfg = cfg.withDefaults()

	s := &Socket{
		conn:      conn,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		nextSeq:   make(map[netip.AddrPort]uint64),
		outgoing:  make(map[entryKey]*outgoingEntry),
		windows:   make(map[netip.AddrPort]*seqWindow),
		lastHeard: make(map[netip.AddrPort]time.Time),
	}
	s.SetLocalID(cfg.LocalID)
	return s, nil
}

// SetLocalID changes the sender id stamped on future packets. The
// persistent layer calls this when it adopts a responder-assigned
// identity during the handshake.
func (s *Socket) SetLocalID(id wire.PeerID) {
	s.localID = id
	if id.IsZero() {
		s.nodeStr = ""
	} else {
		s.nodeStr = id.String()
	}
}

// LocalID returns the sender id currently stamped on packets.
func (s *Socket) LocalID() wire.PeerID {
	return s.localID
}

// LocalAddr returns the transport's bound address.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr()
}

// Send assigns the next sequence number for addr, transmits the
// packet immediately, and schedules retransmissions until it is
// acked or the retry budget runs out. Only Data and Fragment kinds
// are accepted. Returns the assigned sequence number.
func (s *Socket) Send(addr netip.AddrPort, pkt wire.Packet) (uint64, error) {
	if pkt.Kind != wire.KindData && pkt.Kind != wire.KindFragment {
		return 0, fmt.Errorf("%w: %s", ErrBadKind, pkt.Kind)
	}
	if len(pkt.Payload) > s.cfg.MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(pkt.Payload), s.cfg.MaxPayloadSize)
	}

	seq := s.nextSeq[addr] + 1
	pkt.Version = wire.ProtocolVersion
	pkt.Sender = s.localID
	pkt.Seq = seq

	data, err := wire.EncodePacket(&pkt)
	if err != nil {
		return 0, err
	}
	if err := s.conn.Send(addr, data); err != nil {
		return 0, err
	}
	s.nextSeq[addr] = seq

	s.outgoing[entryKey{addr, seq}] = &outgoingEntry{
		data:      data,
		sentAt:    s.clock.Now(),
		rto:       s.cfg.InitialRTO,
		kind:      pkt.Kind,
		frameID:   pkt.FrameID,
		fragIndex: pkt.FragIndex,
		fragCount: pkt.FragCount,
	}

	s.logPacket(log.DirectionOut, addr, &pkt, len(data), 0, false)
	return seq, nil
}

// SendControl transmits an unsequenced packet fire-and-forget. The
// version and sender fields are stamped here; everything else is the
// caller's.
func (s *Socket) SendControl(addr netip.AddrPort, pkt wire.Packet) error {
	if pkt.Kind.Reliable() {
		return fmt.Errorf("%w: %s", ErrBadKind, pkt.Kind)
	}

	pkt.Version = wire.ProtocolVersion
	pkt.Sender = s.localID

	data, err := wire.EncodePacket(&pkt)
	if err != nil {
		return err
	}
	if err := s.conn.Send(addr, data); err != nil {
		return err
	}

	s.logPacket(log.DirectionOut, addr, &pkt, len(data), 0, false)
	return nil
}

// Pump drains the transport and advances the retransmission clock.
// Events appear in arrival order, with timer-driven give-ups last.
func (s *Socket) Pump() []Event {
	var events []Event
	now := s.clock.Now()

	for {
		d, ok := s.conn.Recv()
		if !ok {
			break
		}
		if ev, ok := s.handleDatagram(d, now); ok {
			events = append(events, ev)
		}
	}

	events = append(events, s.scanOutgoing(now)...)
	return events
}

// handleDatagram processes one inbound datagram and returns at most
// one event. Malformed datagrams are dropped here and never reach
// the layers above.
func (s *Socket) handleDatagram(d transport.Datagram, now time.Time) (Event, bool) {
	pkt, err := wire.DecodePacket(d.Payload)
	if err != nil {
		s.logDrop(log.DirectionIn, d.Addr, log.DropMalformed, len(d.Payload), 0)
		return Event{}, false
	}

	s.lastHeard[d.Addr] = now
	s.logPacket(log.DirectionIn, d.Addr, pkt, len(d.Payload), 0, false)

	switch pkt.Kind {
	case wire.KindAck:
		key := entryKey{d.Addr, pkt.Seq}
		if _, ok := s.outgoing[key]; !ok {
			// Ack for a packet we no longer track. Normal after we
			// re-acked a duplicate; acknowledging is idempotent.
			return Event{}, false
		}
		delete(s.outgoing, key)
		return Event{Kind: EventAcked, Addr: d.Addr, Seq: pkt.Seq}, true

	case wire.KindData, wire.KindFragment:
		// Ack unconditionally: the peer stops resending even when we
		// already saw this packet.
		s.sendAck(d.Addr, pkt.Seq)

		win := s.window(d.Addr)
		if win.Contains(pkt.Seq) {
			s.logDrop(log.DirectionIn, d.Addr, log.DropDuplicate, len(d.Payload), pkt.Seq)
			return Event{}, false
		}
		win.Insert(pkt.Seq)
		return Event{Kind: EventDelivered, Addr: d.Addr, Seq: pkt.Seq, Packet: pkt}, true

	default:
		return Event{Kind: EventControl, Addr: d.Addr, Packet: pkt}, true
	}
}

// scanOutgoing retransmits every entry whose timeout expired and
// gives up on the ones whose retry budget is spent. Entries are
// visited in a deterministic order.
func (s *Socket) scanOutgoing(now time.Time) []Event {
	var due []entryKey
	for key, e := range s.outgoing {
		if now.Sub(e.sentAt) >= e.rto {
			due = append(due, key)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if c := due[i].addr.Compare(due[j].addr); c != 0 {
			return c < 0
		}
		return due[i].seq < due[j].seq
	})

	var events []Event
	for _, key := range due {
		e := s.outgoing[key]

		if e.retries >= s.cfg.MaxRetries {
			delete(s.outgoing, key)
			s.logDrop(log.DirectionOut, key.addr, log.DropRetryExhausted, len(e.data), key.seq)
			events = append(events, Event{Kind: EventGaveUp, Addr: key.addr, Seq: key.seq})
			continue
		}

		e.retries++
		e.sentAt = now
		e.rto = time.Duration(float64(e.rto) * s.cfg.BackoffFactor)
		if e.rto > s.cfg.MaxRTO {
			e.rto = s.cfg.MaxRTO
		}

		if err := s.conn.Send(key.addr, e.data); err != nil {
			s.logError(key.addr, err, "retransmit")
			continue
		}
		s.logResend(key.addr, e, key.seq, len(e.data))
	}
	return events
}

// sendAck transmits an acknowledgment. Acks are never themselves
// acknowledged or retransmitted.
func (s *Socket) sendAck(addr netip.AddrPort, seq uint64) {
	pkt := wire.Packet{
		Version: wire.ProtocolVersion,
		Kind:    wire.KindAck,
		Sender:  s.localID,
		Seq:     seq,
	}
	data, err := wire.EncodePacket(&pkt)
	if err != nil {
		s.logError(addr, err, "encode ack")
		return
	}
	if err := s.conn.Send(addr, data); err != nil {
		s.logError(addr, err, "send ack")
		return
	}
	s.logPacket(log.DirectionOut, addr, &pkt, len(data), 0, false)
}

// window returns the dedup window for addr, creating it on first use.
func (s *Socket) window(addr netip.AddrPort) *seqWindow {
	win, ok := s.windows[addr]
	if !ok {
		win = newSeqWindow(s.cfg.WindowSize)
		s.windows[addr] = win
	}
	return win
}

// DropPeer discards all receive and retransmission state for addr:
// pending entries, the dedup window, and the last-heard record. The
// per-destination sequence counter survives so a later session to
// the same address never collides with stale acks.
func (s *Socket) DropPeer(addr netip.AddrPort) {
	for key := range s.outgoing {
		if key.addr == addr {
			delete(s.outgoing, key)
		}
	}
	delete(s.windows, addr)
	delete(s.lastHeard, addr)
}

// Rebind moves all per-address state from oldAddr to newAddr. Used
// when a known peer shows up from a different address.
func (s *Socket) Rebind(oldAddr, newAddr netip.AddrPort) {
	if oldAddr == newAddr {
		return
	}
	for key, e := range s.outgoing {
		if key.addr == oldAddr {
			delete(s.outgoing, key)
			s.outgoing[entryKey{newAddr, key.seq}] = e
		}
	}
	if win, ok := s.windows[oldAddr]; ok {
		delete(s.windows, oldAddr)
		s.windows[newAddr] = win
	}
	if t, ok := s.lastHeard[oldAddr]; ok {
		delete(s.lastHeard, oldAddr)
		s.lastHeard[newAddr] = t
	}
	if seq, ok := s.nextSeq[oldAddr]; ok {
		delete(s.nextSeq, oldAddr)
		if seq > s.nextSeq[newAddr] {
			s.nextSeq[newAddr] = seq
		}
	}
}

// LastHeard returns when the last well-formed datagram arrived from
// addr.
func (s *Socket) LastHeard(addr netip.AddrPort) (time.Time, bool) {
	t, ok := s.lastHeard[addr]
	return t, ok
}

// Pending returns the number of packets awaiting acknowledgment.
func (s *Socket) Pending() int {
	return len(s.outgoing)
}

// Close closes the underlying transport.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func (s *Socket) logPacket(dir log.Direction, addr netip.AddrPort, pkt *wire.Packet, size, retry int, resend bool) {
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.nodeStr,
		Direction:  dir,
		Layer:      log.LayerReliable,
		Category:   log.CategoryPacket,
		RemoteAddr: addr.String(),
		Packet: &log.PacketEvent{
			Kind:      pkt.Kind.String(),
			Seq:       pkt.Seq,
			FrameID:   pkt.FrameID,
			FragIndex: pkt.FragIndex,
			FragCount: pkt.FragCount,
			Size:      size,
			Resend:    resend,
			Retry:     retry,
		},
	})
}

func (s *Socket) logResend(addr netip.AddrPort, e *outgoingEntry, seq uint64, size int) {
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.nodeStr,
		Direction:  log.DirectionOut,
		Layer:      log.LayerReliable,
		Category:   log.CategoryPacket,
		RemoteAddr: addr.String(),
		Packet: &log.PacketEvent{
			Kind:      e.kind.String(),
			Seq:       seq,
			FrameID:   e.frameID,
			FragIndex: e.fragIndex,
			FragCount: e.fragCount,
			Size:      size,
			Resend:    true,
			Retry:     e.retries,
		},
	})
}

func (s *Socket) logDrop(dir log.Direction, addr netip.AddrPort, reason string, size int, seq uint64) {
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.nodeStr,
		Direction:  dir,
		Layer:      log.LayerReliable,
		Category:   log.CategoryDrop,
		RemoteAddr: addr.String(),
		Drop:       &log.DropEvent{Reason: reason, Size: size, Seq: seq},
	})
}

func (s *Socket) logError(addr netip.AddrPort, err error, context string) {
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.nodeStr,
		Direction:  log.DirectionOut,
		Layer:      log.LayerReliable,
		Category:   log.CategoryError,
		RemoteAddr: addr.String(),
		Error:      &log.ErrorEventData{Message: err.Error(), Context: context},
	})
}
