package lobby

import (
	"fmt"
	"time"

	"github.com/meshwire-protocol/meshwire-go/pkg/persistent"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Session coordinates readiness and scheduled starts over a
// persistent socket. Like the socket it wraps, a session is
// single-goroutine: drive it with Pump and never call it
// concurrently.
type Session struct {
	sock *persistent.Socket
	cfg  Config

	ready      bool
	peersReady map[wire.PeerID]bool

	scheduled bool
	remaining uint32
	run       wire.PeerID
}

// New wraps sock in a session.
func New(sock *persistent.Socket, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lobby config: %w", err)
	}
	return &Session{
		sock:       sock,
		cfg:        cfg,
		peersReady: make(map[wire.PeerID]bool),
	}, nil
}

// Socket returns the underlying persistent socket.
func (s *Session) Socket() *persistent.Socket { return s.sock }

// TickInterval returns the real-time length of one tick. Callers
// driving the session off a timer should pump at this interval.
func (s *Session) TickInterval() time.Duration { return s.cfg.TickInterval }

// Ready returns the local readiness flag. It drops back to false
// when a new peer joins and after every start.
func (s *Session) Ready() bool { return s.ready }

// PeerReady returns a peer's last broadcast readiness flag.
func (s *Session) PeerReady(peer wire.PeerID) bool { return s.peersReady[peer] }

// Leader returns the smallest id among the local node and its
// connected peers. The leader is the node that issues start orders.
func (s *Session) Leader() wire.PeerID {
	leader := s.sock.LocalID()
	for _, peer := range s.sock.Peers() {
		if peer.Less(leader) {
			leader = peer
		}
	}
	return leader
}

// IsLeader reports whether the local node currently leads the mesh.
func (s *Session) IsLeader() bool { return s.Leader() == s.sock.LocalID() }

// Run returns the id of the most recently scheduled run.
func (s *Session) Run() (wire.PeerID, bool) { return s.run, !s.run.IsZero() }

// SetReady flags the local node and broadcasts the change. Whether
// the mesh is ready to start is evaluated on the next Pump.
func (s *Session) SetReady(ready bool) {
	s.ready = ready
	s.broadcastReady()
}

func (s *Session) broadcastReady() {
	payload, err := encodeEnvelope(kindReady, &readyBody{Flag: s.ready})
	if err != nil {
		return
	}
	s.sock.Broadcast(payload)
}

// Send delivers application data to one peer, framed as a session
// message.
func (s *Session) Send(peer wire.PeerID, payload []byte) error {
	data, err := wire.Marshal(&envelope{Kind: kindData, Body: payload})
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	return s.sock.Send(peer, data)
}

// Broadcast delivers application data to every connected peer and
// reports how many sends were accepted.
func (s *Session) Broadcast(payload []byte) int {
	data, err := wire.Marshal(&envelope{Kind: kindData, Body: payload})
	if err != nil {
		return 0
	}
	return s.sock.Broadcast(data)
}

// Pump advances the countdown by one tick, drives the socket below,
// and translates its events. One Pump is one tick.
func (s *Session) Pump() []Event {
	var events []Event

	if s.scheduled {
		if s.remaining == 0 {
			s.scheduled = false
			s.ready = false
			clear(s.peersReady)
			events = append(events, Event{Kind: EventStarted, Run: s.run})
		} else {
			s.remaining--
		}
	}

	for _, pev := range s.sock.Pump() {
		switch pev.Kind {
		case persistent.EventPeerConnected:
			// A newcomer opens a fresh negotiation round.
			if s.ready {
				s.ready = false
				s.broadcastReady()
			}
			events = append(events, Event{Kind: EventPeerJoined, Peer: pev.Peer})

		case persistent.EventPeerDisconnected:
			delete(s.peersReady, pev.Peer)
			events = append(events, Event{Kind: EventPeerLeft, Peer: pev.Peer})

		case persistent.EventMessage:
			if ev, ok := s.handleMessage(pev); ok {
				events = append(events, ev)
			}

		case persistent.EventDeliveryFailed:
			events = append(events, Event{Kind: EventDeliveryFailed, Peer: pev.Peer, Seq: pev.Seq})
		}
	}

	if ev, ok := s.maybeSchedule(); ok {
		events = append(events, ev)
	}
	return events
}

// handleMessage decodes one session envelope. Undecodable payloads
// and unknown kinds are dropped.
func (s *Session) handleMessage(pev persistent.Event) (Event, bool) {
	env, err := decodeEnvelope(pev.Payload)
	if err != nil {
		return Event{}, false
	}

	switch env.Kind {
	case kindReady:
		var body readyBody
		if err := wire.Unmarshal(env.Body, &body); err != nil {
			return Event{}, false
		}
		s.peersReady[pev.Peer] = body.Flag
		return Event{Kind: EventReadyChanged, Peer: pev.Peer, Ready: body.Flag}, true

	case kindStart:
		var body startBody
		if err := wire.Unmarshal(env.Body, &body); err != nil || body.Run.IsZero() {
			return Event{}, false
		}
		if s.scheduled {
			return Event{}, false
		}
		// The order spent half a round trip in flight already.
		ticks := body.Ticks
		if rtt, ok := s.sock.RTT(pev.Peer); ok {
			adjust := uint32((rtt / 2) / s.cfg.TickInterval)
			if adjust > ticks {
				ticks = 0
			} else {
				ticks -= adjust
			}
		}
		return s.schedule(body.Run, ticks), true

	case kindData:
		return Event{Kind: EventMessage, Peer: pev.Peer, Payload: env.Body}, true

	default:
		return Event{}, false
	}
}

// maybeSchedule issues a start order when the local node leads a
// fully ready mesh with at least one peer.
func (s *Session) maybeSchedule() (Event, bool) {
	if s.scheduled || !s.ready {
		return Event{}, false
	}
	peers := s.sock.Peers()
	if len(peers) == 0 {
		return Event{}, false
	}
	for _, peer := range peers {
		if !s.peersReady[peer] {
			return Event{}, false
		}
	}
	if peers[0].Less(s.sock.LocalID()) {
		return Event{}, false
	}

	run := wire.NewPeerID()
	payload, err := encodeEnvelope(kindStart, &startBody{Run: run, Ticks: s.cfg.StartTicks})
	if err != nil {
		return Event{}, false
	}
	s.sock.Broadcast(payload)

	// The order needs half a round trip to reach the farthest peer;
	// wait that much longer locally.
	var worst time.Duration
	for _, peer := range peers {
		if rtt, ok := s.sock.RTT(peer); ok && rtt > worst {
			worst = rtt
		}
	}
	return s.schedule(run, s.cfg.StartTicks+uint32((worst/2)/s.cfg.TickInterval)), true
}

// schedule arms the countdown.
func (s *Session) schedule(run wire.PeerID, ticks uint32) Event {
	s.scheduled = true
	s.remaining = ticks
	s.run = run
	return Event{Kind: EventStartScheduled, Run: run, Ticks: ticks}
}
