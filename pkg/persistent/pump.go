package persistent

import (
	"net/netip"
	"sort"
	"time"

	"github.com/meshwire-protocol/meshwire-go/pkg/frame"
	"github.com/meshwire-protocol/meshwire-go/pkg/log"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// pumpState accumulates one cycle's events. Lifecycle events are
// returned ahead of payload events, FIFO within each class.
type pumpState struct {
	now       time.Time
	lifecycle []Event
	payload   []Event
}

// Pump drains the stack below, processes handshakes, heartbeats, and
// gossip, and advances every timer. Returns the cycle's events with
// lifecycle changes first.
func (s *Socket) Pump() []Event {
	if s.closed || s.frame == nil {
		return nil
	}
	p := &pumpState{now: s.clock.Now()}

	for _, fev := range s.frame.Pump() {
		switch fev.Kind {
		case frame.EventMessage:
			s.handleMessage(p, fev)
		case frame.EventControl:
			s.handleControl(p, fev)
		case frame.EventDeliveryFailed:
			s.handleDeliveryFailed(p, fev)
		}
	}

	s.retryPendingJoins(p)
	s.expireConnecting(p)
	s.sweepLiveness(p)
	s.sendHeartbeats(p)

	return append(p.lifecycle, p.payload...)
}

// handleMessage attributes a delivered message to a connected peer.
func (s *Socket) handleMessage(p *pumpState, fev frame.Event) {
	rec := s.resolveSender(p, fev.Sender, fev.Addr)
	if rec == nil {
		s.logDrop(fev.Addr, log.DropStray, len(fev.Payload))
		return
	}
	if rec.state == StateConnecting {
		s.promote(p, rec)
	}
	p.payload = append(p.payload, Event{
		Kind:    EventMessage,
		Peer:    rec.id,
		Addr:    rec.addr,
		Payload: fev.Payload,
	})
}

// handleControl dispatches an unsequenced control packet.
func (s *Socket) handleControl(p *pumpState, fev frame.Event) {
	switch fev.Packet.Kind {
	case wire.KindConnectRequest:
		s.handleConnectRequest(p, fev)
	case wire.KindConnectAccept:
		s.handleConnectAccept(p, fev)
	case wire.KindHeartbeat:
		s.handleHeartbeat(p, fev)
	default:
		s.logDrop(fev.Addr, log.DropStray, len(fev.Packet.Payload))
	}
}

// handleConnectRequest admits a new peer or re-answers a known one.
func (s *Socket) handleConnectRequest(p *pumpState, fev frame.Event) {
	req, err := wire.DecodeConnectRequest(fev.Packet.Payload)
	if err != nil {
		s.logDrop(fev.Addr, log.DropMalformed, len(fev.Packet.Payload))
		return
	}
	addr := fev.Addr
	announced := fev.Packet.Sender

	if id, ok := s.byAddr[addr]; ok {
		rec := s.peers[id]
		if announced == rec.announced {
			// The same node asking again, its accept presumably
			// lost. Answer idempotently.
			s.sendConnectAccept(addr, rec.id)
			return
		}
		// A different identity on a known address: the previous
		// occupant is gone. Retire it and admit the newcomer fresh.
		s.disconnectPeer(p, rec, "address-reused")
	}

	assigned := announced
	if assigned.IsZero() || assigned == s.localID || s.isTombstoned(assigned) {
		assigned = wire.NewPeerID()
	} else if _, inUse := s.peers[assigned]; inUse {
		assigned = wire.NewPeerID()
	}

	rec := &peerRecord{
		id:        assigned,
		announced: announced,
		name:      req.Name,
		addr:      addr,
		state:     StateConnecting,
		createdAt: p.now,
	}
	s.peers[assigned] = rec
	s.byAddr[addr] = assigned

	s.logState(assigned, 0, StateConnecting, "connect-request")
	s.debugLog("admitted peer", "peer", assigned.Short(), "addr", addr.String(), "name", req.Name)
	s.sendConnectAccept(addr, assigned)
}

// handleConnectAccept completes a pending join.
func (s *Socket) handleConnectAccept(p *pumpState, fev frame.Event) {
	acc, err := wire.DecodeConnectAccept(fev.Packet.Payload)
	if err != nil {
		s.logDrop(fev.Addr, log.DropMalformed, len(fev.Packet.Payload))
		return
	}
	addr := fev.Addr
	responder := fev.Packet.Sender

	h, hasPending := s.pending[addr]
	if !hasPending {
		// Duplicate accept after convergence, or a stray one.
		if _, ok := s.byAddr[addr]; !ok {
			s.logDrop(addr, log.DropStray, len(fev.Packet.Payload))
		}
		return
	}
	if responder == acc.Assigned {
		// A responder never admits a peer under its own identity.
		s.logDrop(addr, log.DropMalformed, len(fev.Packet.Payload))
		return
	}

	// Adopt the identity the responder admitted for us.
	if acc.Assigned != s.localID {
		s.debugLog("adopting assigned identity", "old", s.localID.Short(), "new", acc.Assigned.Short())
		s.localID = acc.Assigned
		s.frame.SetLocalID(acc.Assigned)
	}

	rec, known := s.peers[responder]
	if known {
		// Simultaneous dial: the peer's own request already created
		// this record. Follow it if it moved.
		if rec.addr != addr && !s.migratePeer(p, rec, addr) {
			return
		}
	} else {
		if id, ok := s.byAddr[addr]; ok {
			// The address was admitted under a different identity
			// than the responder signs with. Replace the record.
			s.disconnectPeer(p, s.peers[id], "identity-changed")
		}
		// A join we initiated outranks an old tombstone for the
		// responder's identity.
		delete(s.tombstones, responder)
		rec = &peerRecord{
			id:        responder,
			name:      acc.Name,
			addr:      addr,
			state:     StateConnecting,
			createdAt: p.now,
		}
		s.peers[responder] = rec
		s.byAddr[addr] = responder
	}
	if acc.Name != "" {
		rec.name = acc.Name
	}

	if rec.state == StateConnecting {
		s.promote(p, rec)
	} else {
		h.state = StateConnected
		h.peer = rec.id
		delete(s.pending, addr)
	}
}

// handleHeartbeat answers probes, samples RTT from echoes, and feeds
// gossip.
func (s *Socket) handleHeartbeat(p *pumpState, fev frame.Event) {
	hb, err := wire.DecodeHeartbeat(fev.Packet.Payload)
	if err != nil {
		s.logDrop(fev.Addr, log.DropMalformed, len(fev.Packet.Payload))
		return
	}
	rec := s.resolveSender(p, fev.Packet.Sender, fev.Addr)
	if rec == nil {
		s.logDrop(fev.Addr, log.DropStray, len(fev.Packet.Payload))
		return
	}
	if rec.state == StateConnecting {
		s.promote(p, rec)
	}

	if hb.Echo != 0 && hb.Echo == rec.pingNonce {
		sample := p.now.Sub(rec.pingSentAt)
		if rec.hasRTT {
			rec.srtt += (sample - rec.srtt) / 8
		} else {
			rec.srtt = sample
			rec.hasRTT = true
		}
		rec.pingNonce = 0
		s.logRTT(rec.id, sample, rec.srtt)
	}

	if hb.Nonce != 0 {
		s.sendHeartbeatTo(rec, 0, hb.Nonce)
	}

	s.processGossip(p, hb.Gossip)
}

// handleDeliveryFailed surfaces an exhausted retransmission as an
// application event. The connection stays up; liveness decides later.
func (s *Socket) handleDeliveryFailed(p *pumpState, fev frame.Event) {
	id, ok := s.byAddr[fev.Addr]
	if !ok {
		s.debugLog("delivery failed to unknown address", "addr", fev.Addr.String(), "seq", fev.Seq)
		return
	}
	p.payload = append(p.payload, Event{Kind: EventDeliveryFailed, Peer: id, Addr: fev.Addr, Seq: fev.Seq})
}

// resolveSender finds the live record for an inbound packet,
// following an address migration when the sender moved. Returns nil
// when the packet cannot be attributed.
func (s *Socket) resolveSender(p *pumpState, sender wire.PeerID, addr netip.AddrPort) *peerRecord {
	rec, known := s.peers[sender]
	if !known {
		return nil
	}
	if rec.addr != addr && !s.migratePeer(p, rec, addr) {
		return nil
	}
	return rec
}

// migratePeer follows a known peer to a new address. A migration
// onto an address another live peer occupies is refused.
func (s *Socket) migratePeer(p *pumpState, rec *peerRecord, newAddr netip.AddrPort) bool {
	if otherID, ok := s.byAddr[newAddr]; ok && otherID != rec.id {
		s.logDrop(newAddr, log.DropStray, 0)
		return false
	}
	oldAddr := rec.addr
	delete(s.byAddr, oldAddr)
	s.byAddr[newAddr] = rec.id
	rec.addr = newAddr
	s.frame.Rebind(oldAddr, newAddr)

	if rec.state == StateConnected {
		p.lifecycle = append(p.lifecycle, Event{Kind: EventPeerAddressChanged, Peer: rec.id, Addr: newAddr})
	}
	s.logState(rec.id, rec.state, rec.state, "address-changed")
	s.debugLog("peer address changed", "peer", rec.id.Short(),
		"old", oldAddr.String(), "new", newAddr.String())
	return true
}

// promote marks a connecting peer connected and completes any join
// handle waiting on its address.
func (s *Socket) promote(p *pumpState, rec *peerRecord) {
	rec.state = StateConnected
	if h, ok := s.pending[rec.addr]; ok {
		h.state = StateConnected
		h.peer = rec.id
		delete(s.pending, rec.addr)
	}
	p.lifecycle = append(p.lifecycle, Event{Kind: EventPeerConnected, Peer: rec.id, Addr: rec.addr})
	s.logState(rec.id, StateConnecting, StateConnected, "handshake-complete")
	s.debugLog("peer connected", "peer", rec.id.Short(), "addr", rec.addr.String(), "name", rec.name)
}

// disconnectPeer tears a record down. Peers that reached Connected
// are tombstoned and produce an event; connecting ones vanish
// silently.
func (s *Socket) disconnectPeer(p *pumpState, rec *peerRecord, reason string) {
	delete(s.peers, rec.id)
	if s.byAddr[rec.addr] == rec.id {
		delete(s.byAddr, rec.addr)
	}
	s.frame.DropPeer(rec.addr)

	if rec.state == StateConnected {
		s.tombstones[rec.id] = struct{}{}
		p.lifecycle = append(p.lifecycle, Event{Kind: EventPeerDisconnected, Peer: rec.id, Addr: rec.addr})
	}
	s.logState(rec.id, rec.state, StateDisconnected, reason)
	s.debugLog("peer removed", "peer", rec.id.Short(), "state", rec.state.String(), "reason", reason)
}

// processGossip joins advertised peers we do not know yet.
func (s *Socket) processGossip(p *pumpState, entries []wire.GossipEntry) {
	if s.cfg.MaxGossipEntries == 0 {
		return
	}
	if len(entries) > s.cfg.MaxGossipEntries {
		entries = entries[:s.cfg.MaxGossipEntries]
	}
	for _, entry := range entries {
		if entry.ID.IsZero() || entry.ID == s.localID {
			continue
		}
		if _, known := s.peers[entry.ID]; known {
			continue
		}
		if s.isTombstoned(entry.ID) {
			continue
		}
		ap, err := netip.ParseAddrPort(entry.Addr)
		if err != nil {
			continue
		}
		if ap == s.frame.LocalAddr() {
			continue
		}
		if _, ok := s.byAddr[ap]; ok {
			continue
		}
		if _, ok := s.pending[ap]; ok {
			continue
		}
		s.debugLog("gossip join", "peer", entry.ID.Short(), "addr", entry.Addr)
		s.pending[ap] = &Handle{addr: ap, state: StateConnecting, startedAt: p.now, lastRequestAt: p.now}
		s.sendConnectRequest(ap)
	}
}

// retryPendingJoins re-sends stalled connect requests and gives up on
// joins past the liveness timeout. Expiry is silent: connection
// events exist only for peers that reached Connected.
func (s *Socket) retryPendingJoins(p *pumpState) {
	for _, addr := range s.pendingSorted() {
		h := s.pending[addr]
		if p.now.Sub(h.startedAt) >= s.cfg.LivenessTimeout {
			h.state = StateDisconnected
			delete(s.pending, addr)
			if _, ok := s.byAddr[addr]; !ok {
				s.frame.DropPeer(addr)
			}
			s.debugLog("join timed out", "addr", addr.String())
			continue
		}
		if p.now.Sub(h.lastRequestAt) >= s.cfg.HeartbeatInterval {
			h.lastRequestAt = p.now
			s.sendConnectRequest(addr)
		}
	}
}

// expireConnecting removes inbound handshakes that never completed.
func (s *Socket) expireConnecting(p *pumpState) {
	for _, rec := range s.peersSorted() {
		if rec.state != StateConnecting {
			continue
		}
		if p.now.Sub(rec.createdAt) >= s.cfg.LivenessTimeout {
			s.disconnectPeer(p, rec, "handshake-timeout")
		}
	}
}

// sweepLiveness disconnects peers that have gone silent.
func (s *Socket) sweepLiveness(p *pumpState) {
	for _, rec := range s.peersSorted() {
		if rec.state != StateConnected {
			continue
		}
		last := rec.createdAt
		if t, ok := s.frame.LastHeard(rec.addr); ok && t.After(last) {
			last = t
		}
		if p.now.Sub(last) >= s.cfg.LivenessTimeout {
			s.disconnectPeer(p, rec, "liveness-timeout")
		}
	}
}

// sendHeartbeats probes every connected peer whose interval elapsed.
// Each probe replaces the previous outstanding nonce, so exactly one
// echo per peer is ever accepted.
func (s *Socket) sendHeartbeats(p *pumpState) {
	for _, rec := range s.peersSorted() {
		if rec.state != StateConnected {
			continue
		}
		if p.now.Sub(rec.lastHeartbeatAt) < s.cfg.HeartbeatInterval {
			continue
		}
		nonce := s.nextNonce()
		rec.pingNonce = nonce
		rec.pingSentAt = p.now
		rec.lastHeartbeatAt = p.now
		s.sendHeartbeatTo(rec, nonce, 0)
	}
}

func (s *Socket) nextNonce() uint32 {
	s.nonceCounter++
	if s.nonceCounter == 0 {
		s.nonceCounter = 1
	}
	return s.nonceCounter
}

// sendConnectRequest announces our identity and name to addr.
func (s *Socket) sendConnectRequest(addr netip.AddrPort) {
	payload, err := wire.EncodeConnectRequest(&wire.ConnectRequest{Name: s.name})
	if err != nil {
		s.debugLog("connect request encode failed", "err", err)
		return
	}
	pkt := wire.Packet{Kind: wire.KindConnectRequest, Payload: payload}
	if err := s.frame.SendControl(addr, pkt); err != nil {
		s.debugLog("connect request send failed", "addr", addr.String(), "err", err)
	}
}

// sendConnectAccept answers a request with the admitted identity.
func (s *Socket) sendConnectAccept(addr netip.AddrPort, assigned wire.PeerID) {
	payload, err := wire.EncodeConnectAccept(&wire.ConnectAccept{Assigned: assigned, Name: s.name})
	if err != nil {
		s.debugLog("connect accept encode failed", "err", err)
		return
	}
	pkt := wire.Packet{Kind: wire.KindConnectAccept, Payload: payload}
	if err := s.frame.SendControl(addr, pkt); err != nil {
		s.debugLog("connect accept send failed", "addr", addr.String(), "err", err)
	}
}

// sendHeartbeatTo transmits one heartbeat carrying a probe, an echo,
// or both, plus gossip.
func (s *Socket) sendHeartbeatTo(rec *peerRecord, nonce, echo uint32) {
	hb := wire.Heartbeat{Nonce: nonce, Echo: echo, Gossip: s.gossipFor(rec.id)}
	payload, err := wire.EncodeHeartbeat(&hb)
	if err != nil {
		s.debugLog("heartbeat encode failed", "err", err)
		return
	}
	pkt := wire.Packet{Kind: wire.KindHeartbeat, Payload: payload}
	if err := s.frame.SendControl(rec.addr, pkt); err != nil {
		s.debugLog("heartbeat send failed", "peer", rec.id.Short(), "err", err)
	}
}

// gossipFor lists up to MaxGossipEntries connected peers other than
// the recipient.
func (s *Socket) gossipFor(recipient wire.PeerID) []wire.GossipEntry {
	if s.cfg.MaxGossipEntries == 0 {
		return nil
	}
	var entries []wire.GossipEntry
	for _, rec := range s.connectedSorted() {
		if rec.id == recipient {
			continue
		}
		entries = append(entries, wire.GossipEntry{ID: rec.id, Addr: rec.addr.String()})
		if len(entries) >= s.cfg.MaxGossipEntries {
			break
		}
	}
	return entries
}

// pendingSorted returns the pending join addresses in a fixed order.
func (s *Socket) pendingSorted() []netip.AddrPort {
	addrs := make([]netip.AddrPort, 0, len(s.pending))
	for addr := range s.pending {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
	return addrs
}

func (s *Socket) logState(peer wire.PeerID, from, to State, reason string) {
	ev := log.Event{
		Timestamp: s.clock.Now(),
		NodeID:    s.localID.String(),
		Direction: log.DirectionIn,
		Layer:     log.LayerPersistent,
		Category:  log.CategoryState,
		Peer:      peer.String(),
		StateChange: &log.StateChangeEvent{
			NewState: to.String(),
			Reason:   reason,
		},
	}
	if from != 0 {
		ev.StateChange.OldState = from.String()
	}
	s.protocolLogger.Log(ev)
}

func (s *Socket) logRTT(peer wire.PeerID, sample, smoothed time.Duration) {
	s.protocolLogger.Log(log.Event{
		Timestamp: s.clock.Now(),
		NodeID:    s.localID.String(),
		Direction: log.DirectionIn,
		Layer:     log.LayerPersistent,
		Category:  log.CategoryRTT,
		Peer:      peer.String(),
		RTT:       &log.RTTEvent{Sample: sample, Smoothed: smoothed},
	})
}

func (s *Socket) logDrop(addr netip.AddrPort, reason string, size int) {
	s.protocolLogger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		NodeID:     s.localID.String(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerPersistent,
		Category:   log.CategoryDrop,
		RemoteAddr: addr.String(),
		Drop:       &log.DropEvent{Reason: reason, Size: size},
	})
}
