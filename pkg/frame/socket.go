package frame

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
	"github.com/meshwire-protocol/meshwire-go/pkg/reliable"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// ErrMessageTooLarge indicates a payload that would need more than
// MaxFragmentCount fragments.
var ErrMessageTooLarge = errors.New("message too large")

// reassemblyBuffer collects the fragments of one incomplete frame.
type reassemblyBuffer struct {
	total     uint32
	fragments map[uint32][]byte
	createdAt time.Time
	size      int
}

// Socket fragments outgoing messages and reassembles incoming ones
// over a reliable.Socket. Pump-driven, single-goroutine, like the
// layers around it.
type Socket struct {
	rel    *reliable.Socket
	cfg    Config
	clock  clock.Clock
	logger log.Logger

	nextFrameID uint64
	buffers     map[netip.AddrPort]map[uint64]*reassemblyBuffer
}

// New creates a frame socket over rel. MaxFragmentData must fit in
// the reliable layer's MaxPayloadSize or every fragmented send will
// fail.
func New(rel *reliable.Socket, cfg Config) (*Socket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame config: %w", err)
	}
	cfg = cfg.withDefaults()

	return &Socket{
		rel:     rel,
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		buffers: make(map[netip.AddrPort]map[uint64]*reassemblyBuffer),
	}, nil
}

// Send transmits payload to addr, fragmenting it when it exceeds
// MaxFragmentData. Each fragment rides its own reliably-delivered
// packet; losing one delays the whole frame until the reliable layer
// resends it or gives up.
func (s *Socket) Send(addr netip.AddrPort, payload []byte) error {
	if len(payload) <= s.cfg.MaxFragmentData {
		_, err := s.rel.Send(addr, wire.Packet{Kind: wire.KindData, Payload: payload})
		return err
	}

	count := (len(payload) + s.cfg.MaxFragmentData - 1) / s.cfg.MaxFragmentData
	if count > s.cfg.MaxFragmentCount {
		return fmt.Errorf("%w: %d bytes needs %d fragments (max %d)",
			ErrMessageTooLarge, len(payload), count, s.cfg.MaxFragmentCount)
	}

	s.nextFrameID++
	frameID := s.nextFrameID

	for i := 0; i < count; i++ {
		start := i * s.cfg.MaxFragmentData
		end := start + s.cfg.MaxFragmentData
		if end > len(payload) {
			end = len(payload)
		}
		_, err := s.rel.Send(addr, wire.Packet{
			Kind:      wire.KindFragment,
			FrameID:   frameID,
			FragIndex: uint32(i),
			FragCount: uint32(count),
			Payload:   payload[start:end],
		})
		if err != nil {
			return fmt.Errorf("fragment %d of %d: %w", i+1, count, err)
		}
	}

	s.logFrame(log.DirectionOut, addr, frameID, uint32(count), len(payload))
	return nil
}

// SendControl passes an unsequenced control packet straight to the
// reliable layer.
func (s *Socket) SendControl(addr netip.AddrPort, pkt wire.Packet) error {
	return s.rel.SendControl(addr, pkt)
}

// Pump drives the reliable pump, translates its events, and sweeps
// expired reassembly buffers.
func (s *Socket) Pump() []Event {
	var events []Event
	now := s.clock.Now()

	for _, rev := range s.rel.Pump() {
		switch rev.Kind {
		case reliable.EventDelivered:
			if ev, ok := s.handleDelivered(rev, now); ok {
				events = append(events, ev)
			}

		case reliable.EventGaveUp:
			events = append(events, Event{Kind: EventDeliveryFailed, Addr: rev.Addr, Seq: rev.Seq})

		case reliable.EventControl:
			events = append(events, Event{Kind: EventControl, Addr: rev.Addr, Packet: rev.Packet})

		case reliable.EventAcked:
			// Acknowledgments are the reliable layer's business.
		}
	}

	s.sweepExpired(now)
	return events
}

// handleDelivered turns one delivered packet into at most one message
// event, buffering fragments until their frame completes.
func (s *Socket) handleDelivered(rev reliable.Event, now time.Time) (Event, bool) {
	pkt := rev.Packet
	if pkt.Kind == wire.KindData {
		return Event{Kind: EventMessage, Addr: rev.Addr, Sender: pkt.Sender, Payload: pkt.Payload}, true
	}

	if int(pkt.FragCount) > s.cfg.MaxFragmentCount {
		s.logDrop(rev.Addr, log.DropMalformed, len(pkt.Payload))
		return Event{}, false
	}

	peerBufs := s.buffers[rev.Addr]
	if peerBufs == nil {
		peerBufs = make(map[uint64]*reassemblyBuffer)
		s.buffers[rev.Addr] = peerBufs
	}

	buf, ok := peerBufs[pkt.FrameID]
	if !ok {
		if len(peerBufs) >= s.cfg.MaxPendingFrames {
			s.evictOldest(rev.Addr, peerBufs)
		}
		buf = &reassemblyBuffer{
			total:     pkt.FragCount,
			fragments: make(map[uint32][]byte),
			createdAt: now,
		}
		peerBufs[pkt.FrameID] = buf
	} else if buf.total != pkt.FragCount {
		// The sender's declared total changed mid-frame. Keep the
		// buffer as first declared and drop the liar.
		s.logDrop(rev.Addr, log.DropMalformed, len(pkt.Payload))
		return Event{}, false
	}

	if _, dup := buf.fragments[pkt.FragIndex]; dup {
		s.logDrop(rev.Addr, log.DropDuplicate, len(pkt.Payload))
		return Event{}, false
	}
	buf.fragments[pkt.FragIndex] = pkt.Payload
	buf.size += len(pkt.Payload)

	if len(buf.fragments) < int(buf.total) {
		return Event{}, false
	}

	payload := make([]byte, 0, buf.size)
	for i := uint32(0); i < buf.total; i++ {
		payload = append(payload, buf.fragments[i]...)
	}
	s.deleteBuffer(rev.Addr, pkt.FrameID)

	s.logFrame(log.DirectionIn, rev.Addr, pkt.FrameID, buf.total, len(payload))
	return Event{Kind: EventMessage, Addr: rev.Addr, Sender: pkt.Sender, FrameID: pkt.FrameID, Payload: payload}, true
}

// sweepExpired discards reassembly buffers older than the timeout.
func (s *Socket) sweepExpired(now time.Time) {
	for addr, peerBufs := range s.buffers {
		for frameID, buf := range peerBufs {
			if now.Sub(buf.createdAt) >= s.cfg.ReassemblyTimeout {
				delete(peerBufs, frameID)
				s.logDrop(addr, log.DropReassemblyTimeout, buf.size)
			}
		}
		if len(peerBufs) == 0 {
			delete(s.buffers, addr)
		}
	}
}

// evictOldest removes the peer's oldest incomplete frame to admit a
// new one. Equal creation times break on the lower frame id, which is
// the older frame from any one sender.
func (s *Socket) evictOldest(addr netip.AddrPort, peerBufs map[uint64]*reassemblyBuffer) {
	var (
		oldestID uint64
		oldest   *reassemblyBuffer
	)
	for frameID, buf := range peerBufs {
		if oldest == nil ||
			buf.createdAt.Before(oldest.createdAt) ||
			(buf.createdAt.Equal(oldest.createdAt) && frameID < oldestID) {
			oldestID, oldest = frameID, buf
		}
	}
	if oldest == nil {
		return
	}
	delete(peerBufs, oldestID)
	s.logDrop(addr, log.DropBufferEvicted, oldest.size)
}

// deleteBuffer removes one buffer and drops the peer map when empty.
func (s *Socket) deleteBuffer(addr netip.AddrPort, frameID uint64) {
	peerBufs := s.buffers[addr]
	delete(peerBufs, frameID)
	if len(peerBufs) == 0 {
		delete(s.buffers, addr)
	}
}

// DropPeer discards addr's reassembly buffers and cascades to the
// reliable layer.
func (s *Socket) DropPeer(addr netip.AddrPort) {
	delete(s.buffers, addr)
	s.rel.DropPeer(addr)
}

// Rebind moves addr-keyed state to a peer's new address and cascades
// down. Frames already buffered under the new address win collisions.
func (s *Socket) Rebind(oldAddr, newAddr netip.AddrPort) {
	if oldAddr == newAddr {
		return
	}
	if bufs, ok := s.buffers[oldAddr]; ok {
		delete(s.buffers, oldAddr)
		dst := s.buffers[newAddr]
		if dst == nil {
			s.buffers[newAddr] = bufs
		} else {
			for frameID, buf := range bufs {
				if _, exists := dst[frameID]; !exists {
					dst[frameID] = buf
				}
			}
		}
	}
	s.rel.Rebind(oldAddr, newAddr)
}

// LastHeard reports the reliable layer's last well-formed arrival
// from addr.
func (s *Socket) LastHeard(addr netip.AddrPort) (time.Time, bool) {
	return s.rel.LastHeard(addr)
}

// SetLocalID changes the sender id stamped on future packets.
func (s *Socket) SetLocalID(id wire.PeerID) {
	s.rel.SetLocalID(id)
}

// LocalID returns the sender id currently stamped on packets.
func (s *Socket) LocalID() wire.PeerID {
	return s.rel.LocalID()
}

// LocalAddr returns the transport's bound address.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.rel.LocalAddr()
}

// Pending returns the number of packets the reliable layer is still
// trying to deliver.
func (s *Socket) Pending() int {
	return s.rel.Pending()
}

// Close closes the stack below.
func (s *Socket) Close() error {
	return s.rel.Close()
}

func (s *Socket) logFrame(dir log.Direction, addr netip.AddrPort, frameID uint64, count uint32, size int) {
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.nodeID(),
		Direction:  dir,
		Layer:      log.LayerFrame,
		Category:   log.CategoryPacket,
		RemoteAddr: addr.String(),
		Packet: &log.PacketEvent{
			Kind:      "frame",
			FrameID:   frameID,
			FragCount: count,
			Size:      size,
		},
	})
}

func (s *Socket) logDrop(addr netip.AddrPort, reason string, size int) {
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.nodeID(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerFrame,
		Category:   log.CategoryDrop,
		RemoteAddr: addr.String(),
		Drop:       &log.DropEvent{Reason: reason, Size: size},
	})
}

func (s *Socket) nodeID() string {
	if id := s.rel.LocalID(); !id.IsZero() {
		return id.String()
	}
	return ""
}
