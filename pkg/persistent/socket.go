package persistent

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/frame"
	"github.com/meshwire-protocol/meshwire-go/pkg/log"
	"github.com/meshwire-protocol/meshwire-go/pkg/reliable"
	"github.com/meshwire-protocol/meshwire-go/pkg/transport"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Socket is the application-facing endpoint of the meshwire stack.
// It is pump-driven and not safe for concurrent use; drive it from a
// single goroutine.
type Socket struct {
	cfg   Config
	clock clock.Clock

	// Logger for debug output (optional)
	logger *slog.Logger

	// Protocol logger for structured event capture
	protocolLogger log.Logger

	localID wire.PeerID
	name    string

	// frame is the stack below; nil until Host or Join binds it.
	frame *frame.Socket

	// Peer records keyed by identity, with an address index.
	peers  map[wire.PeerID]*peerRecord
	byAddr map[netip.AddrPort]wire.PeerID

	// Outbound handshakes in flight, keyed by target address.
	pending map[netip.AddrPort]*Handle

	// Identities that reached Connected and then left. Never reused.
	tombstones map[wire.PeerID]struct{}

	nonceCounter uint32
	closed       bool
}

// New creates a socket with a settled local identity. When cfg.Conn
// is set the socket is bound immediately; otherwise Host or Join
// binds it later.
func New(cfg Config) (*Socket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persistent config: %w", err)
	}
	cfg = cfg.withDefaults()

	id := cfg.LocalID
	if id.IsZero() {
		id = wire.NewPeerID()
	}

	s := &Socket{
		cfg:            cfg,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		protocolLogger: cfg.ProtocolLogger,
		localID:        id,
		name:           cfg.Name,
		peers:          make(map[wire.PeerID]*peerRecord),
		byAddr:         make(map[netip.AddrPort]wire.PeerID),
		pending:        make(map[netip.AddrPort]*Handle),
		tombstones:     make(map[wire.PeerID]struct{}),
	}

	if cfg.Conn != nil {
		if err := s.bind(cfg.Conn); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// bind wires the reliable and frame layers over conn.
func (s *Socket) bind(conn transport.Conn) error {
	relCfg := s.cfg.Reliable
	relCfg.LocalID = s.localID
	relCfg.Clock = s.clock
	relCfg.Logger = s.protocolLogger
	rel, err := reliable.New(conn, relCfg)
	if err != nil {
		return err
	}

	frameCfg := s.cfg.Frame
	frameCfg.Clock = s.clock
	frameCfg.Logger = s.protocolLogger
	f, err := frame.New(rel, frameCfg)
	if err != nil {
		return err
	}

	s.frame = f
	s.debugLog("socket bound", "addr", conn.LocalAddr().String(), "id", s.localID.Short())
	return nil
}

// Host binds the socket to a fixed UDP port and starts accepting
// handshakes. A failed bind is fatal and reported as a *BindError.
func (s *Socket) Host(port uint16) error {
	if s.closed {
		return ErrClosed
	}
	if s.frame != nil {
		return ErrAlreadyBound
	}
	conn, err := transport.ListenUDP(port)
	if err != nil {
		return &BindError{Err: err}
	}
	return s.bind(conn)
}

// Join starts a handshake toward addr ("host:port"), binding an
// ephemeral UDP port first if the socket is not bound yet. The
// returned handle tracks the handshake; it reports Disconnected if
// no accept arrives within the liveness timeout.
func (s *Socket) Join(addr string) (*Handle, error) {
	if s.closed {
		return nil, ErrClosed
	}
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, fmt.Errorf("join %q: %w", addr, err)
	}
	if s.frame == nil {
		conn, err := transport.ListenUDP(0)
		if err != nil {
			return nil, &BindError{Err: err}
		}
		if err := s.bind(conn); err != nil {
			return nil, err
		}
	}
	return s.join(ap)
}

// join starts or reuses a handshake toward ap.
func (s *Socket) join(ap netip.AddrPort) (*Handle, error) {
	if ap == s.frame.LocalAddr() {
		return nil, fmt.Errorf("join %s: is the local address", ap)
	}
	if h, ok := s.pending[ap]; ok {
		return h, nil
	}
	if id, ok := s.byAddr[ap]; ok && s.peers[id].state == StateConnected {
		return &Handle{addr: ap, state: StateConnected, peer: id, startedAt: s.clock.Now()}, nil
	}

	now := s.clock.Now()
	h := &Handle{addr: ap, state: StateConnecting, startedAt: now, lastRequestAt: now}
	s.pending[ap] = h
	s.sendConnectRequest(ap)
	s.debugLog("joining", "addr", ap.String())
	return h, nil
}

// Send frames payload and transmits it to a connected peer.
func (s *Socket) Send(peer wire.PeerID, payload []byte) error {
	if s.closed {
		return ErrClosed
	}
	if s.frame == nil {
		return ErrNotBound
	}
	rec, ok := s.peers[peer]
	if !ok || rec.state != StateConnected {
		return fmt.Errorf("%w: %s", ErrPeerUnknown, peer.Short())
	}
	return s.frame.Send(rec.addr, payload)
}

// Broadcast sends payload to every connected peer and reports how
// many sends were accepted.
func (s *Socket) Broadcast(payload []byte) int {
	if s.closed || s.frame == nil {
		return 0
	}
	n := 0
	for _, rec := range s.connectedSorted() {
		if err := s.frame.Send(rec.addr, payload); err != nil {
			s.debugLog("broadcast send failed", "peer", rec.id.Short(), "err", err)
			continue
		}
		n++
	}
	return n
}

// LocalID returns the node's identity. It may change once, when the
// first responder assigns a different id during a join.
func (s *Socket) LocalID() wire.PeerID {
	return s.localID
}

// Name returns the node's configured name.
func (s *Socket) Name() string {
	return s.name
}

// LocalAddr returns the bound address, or the zero AddrPort before
// Host or Join.
func (s *Socket) LocalAddr() netip.AddrPort {
	if s.frame == nil {
		return netip.AddrPort{}
	}
	return s.frame.LocalAddr()
}

// Bound reports whether the socket has a transport.
func (s *Socket) Bound() bool {
	return s.frame != nil
}

// Peers lists the connected peers, sorted by id for deterministic
// iteration.
func (s *Socket) Peers() []wire.PeerID {
	ids := make([]wire.PeerID, 0, len(s.peers))
	for id, rec := range s.peers {
		if rec.state == StateConnected {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// RTT returns the smoothed round-trip estimate for a peer, when at
// least one sample exists.
func (s *Socket) RTT(peer wire.PeerID) (time.Duration, bool) {
	rec, ok := s.peers[peer]
	if !ok || !rec.hasRTT {
		return 0, false
	}
	return rec.srtt, true
}

// PeerName returns the name a peer shared during its handshake.
func (s *Socket) PeerName(peer wire.PeerID) (string, bool) {
	rec, ok := s.peers[peer]
	if !ok {
		return "", false
	}
	return rec.name, true
}

// PeerAddr returns a peer's current address.
func (s *Socket) PeerAddr(peer wire.PeerID) (netip.AddrPort, bool) {
	rec, ok := s.peers[peer]
	if !ok {
		return netip.AddrPort{}, false
	}
	return rec.addr, true
}

// Close shuts the socket down. Safe to call more than once.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.frame != nil {
		return s.frame.Close()
	}
	return nil
}

// connectedSorted returns the connected peer records ordered by id.
func (s *Socket) connectedSorted() []*peerRecord {
	var recs []*peerRecord
	for _, rec := range s.peers {
		if rec.state == StateConnected {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].id.Less(recs[j].id) })
	return recs
}

// peersSorted returns every peer record ordered by id, so sweeps
// visit them deterministically.
func (s *Socket) peersSorted() []*peerRecord {
	recs := make([]*peerRecord, 0, len(s.peers))
	for _, rec := range s.peers {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].id.Less(recs[j].id) })
	return recs
}

func (s *Socket) isTombstoned(id wire.PeerID) bool {
	_, ok := s.tombstones[id]
	return ok
}

func (s *Socket) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
