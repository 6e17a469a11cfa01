package lobby

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/meshwire-protocol/meshwire-go/pkg/persistent"
	"github.com/meshwire-protocol/meshwire-go/pkg/transport"
)

// newTestSession builds a session over an in-memory socket driven by
// the shared mock clock.
func newTestSession(t *testing.T, netw *transport.MemoryNetwork, addr, name string, mock *clock.Mock, startTicks uint32) *Session {
	t.Helper()

	scfg := persistent.DefaultConfig()
	scfg.Name = name
	scfg.Conn = netw.MustListen(addr)
	scfg.Clock = mock
	sock, err := persistent.New(scfg)
	if err != nil {
		t.Fatalf("New socket failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.StartTicks = startTicks
	sess, err := New(sock, cfg)
	if err != nil {
		t.Fatalf("New session failed: %v", err)
	}
	return sess
}

// pumpSessions pumps each session n times in order and collects every
// session's events across all rounds.
func pumpSessions(n int, sessions ...*Session) map[*Session][]Event {
	out := make(map[*Session][]Event, len(sessions))
	for i := 0; i < n; i++ {
		for _, s := range sessions {
			out[s] = append(out[s], s.Pump()...)
		}
	}
	return out
}

// connectSessions joins a to b and pumps until both sides report the
// other as joined.
func connectSessions(t *testing.T, a, b *Session) {
	t.Helper()

	if _, err := a.Socket().Join(b.Socket().LocalAddr().String()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	got := pumpSessions(3, a, b)
	for _, s := range []*Session{a, b} {
		if joined := eventsOf(got[s], EventPeerJoined); len(joined) != 1 {
			t.Fatalf("%s saw %d joins, want 1", s.Socket().Name(), len(joined))
		}
	}
}

// byLeadership returns the pair ordered leader first.
func byLeadership(t *testing.T, a, b *Session) (leader, follower *Session) {
	t.Helper()

	if a.IsLeader() == b.IsLeader() {
		t.Fatalf("leadership not settled: a=%v b=%v", a.IsLeader(), b.IsLeader())
	}
	if a.IsLeader() {
		return a, b
	}
	return b, a
}

func eventsOf(events []Event, kind EventKind) []Event {
	var matched []Event
	for _, ev := range events {
		if ev.Kind == kind {
			matched = append(matched, ev)
		}
	}
	return matched
}

func TestConfigValidate(t *testing.T) {
	defCfg := DefaultConfig()
	if err := defCfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.StartTicks = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero StartTicks passed validation")
	}

	cfg = DefaultConfig()
	cfg.TickInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero TickInterval passed validation")
	}

	sock, err := persistent.New(persistent.DefaultConfig())
	if err != nil {
		t.Fatalf("New socket failed: %v", err)
	}
	if _, err := New(sock, Config{}); err == nil {
		t.Error("New accepted a zero config")
	}
}

func TestLeaderSchedulesWhenAllReady(t *testing.T) {
	netw := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	a := newTestSession(t, netw, "127.0.0.1:7001", "alpha", mock, 3)
	b := newTestSession(t, netw, "127.0.0.1:7002", "bravo", mock, 3)
	connectSessions(t, a, b)
	byLeadership(t, a, b)

	a.SetReady(true)
	b.SetReady(true)
	got := pumpSessions(10, a, b)

	var runs []Event
	for _, s := range []*Session{a, b} {
		name := s.Socket().Name()

		ready := eventsOf(got[s], EventReadyChanged)
		if len(ready) != 1 || !ready[0].Ready {
			t.Fatalf("%s ready changes = %+v, want one true", name, ready)
		}
		scheduled := eventsOf(got[s], EventStartScheduled)
		if len(scheduled) != 1 {
			t.Fatalf("%s saw %d scheduled starts, want 1", name, len(scheduled))
		}
		if scheduled[0].Ticks != 3 {
			t.Errorf("%s scheduled at %d ticks, want 3", name, scheduled[0].Ticks)
		}
		started := eventsOf(got[s], EventStarted)
		if len(started) != 1 {
			t.Fatalf("%s saw %d starts, want 1", name, len(started))
		}
		if started[0].Run != scheduled[0].Run {
			t.Errorf("%s started run %s, scheduled %s", name, started[0].Run, scheduled[0].Run)
		}
		runs = append(runs, started[0])

		if s.Ready() {
			t.Errorf("%s still ready after start", name)
		}
		for _, peer := range s.Socket().Peers() {
			if s.PeerReady(peer) {
				t.Errorf("%s still sees %s ready after start", name, peer)
			}
		}
	}
	if runs[0].Run.IsZero() || runs[0].Run != runs[1].Run {
		t.Fatalf("runs disagree: %s vs %s", runs[0].Run, runs[1].Run)
	}

	// A second round arms from scratch and mints a fresh run id.
	a.SetReady(true)
	b.SetReady(true)
	again := pumpSessions(10, a, b)
	for _, s := range []*Session{a, b} {
		started := eventsOf(again[s], EventStarted)
		if len(started) != 1 {
			t.Fatalf("%s saw %d second starts, want 1", s.Socket().Name(), len(started))
		}
		if started[0].Run == runs[0].Run {
			t.Errorf("%s reused run id %s", s.Socket().Name(), started[0].Run)
		}
	}
}

func TestStartRequiresAllReady(t *testing.T) {
	netw := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	a := newTestSession(t, netw, "127.0.0.1:7001", "alpha", mock, 2)
	b := newTestSession(t, netw, "127.0.0.1:7002", "bravo", mock, 2)
	connectSessions(t, a, b)
	leader, follower := byLeadership(t, a, b)

	leader.SetReady(true)
	got := pumpSessions(5, a, b)
	for _, s := range []*Session{a, b} {
		if scheduled := eventsOf(got[s], EventStartScheduled); len(scheduled) != 0 {
			t.Fatalf("%s scheduled %+v with an unready peer", s.Socket().Name(), scheduled)
		}
	}
	if !leader.Ready() {
		t.Error("leader lost its ready flag")
	}
	if !follower.PeerReady(leader.Socket().LocalID()) {
		t.Error("follower did not record the leader's readiness")
	}

	follower.SetReady(true)
	got = pumpSessions(10, a, b)
	for _, s := range []*Session{a, b} {
		if started := eventsOf(got[s], EventStarted); len(started) != 1 {
			t.Fatalf("%s saw %d starts after both ready, want 1", s.Socket().Name(), len(started))
		}
	}
}

func TestNoScheduleWithoutPeers(t *testing.T) {
	netw := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	s := newTestSession(t, netw, "127.0.0.1:7001", "loner", mock, 2)

	s.SetReady(true)
	got := pumpSessions(5, s)
	if scheduled := eventsOf(got[s], EventStartScheduled); len(scheduled) != 0 {
		t.Fatalf("scheduled %+v with no peers", scheduled)
	}
	if !s.Ready() {
		t.Error("ready flag did not stick")
	}
	if !s.IsLeader() {
		t.Error("a lone node should lead itself")
	}
}

func TestNewPeerResetsReadiness(t *testing.T) {
	netw := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	a := newTestSession(t, netw, "127.0.0.1:7001", "alpha", mock, 4)
	b := newTestSession(t, netw, "127.0.0.1:7002", "bravo", mock, 4)
	connectSessions(t, a, b)

	a.SetReady(true)
	pumpSessions(2, a, b)
	if !b.PeerReady(a.Socket().LocalID()) {
		t.Fatal("b did not record a's readiness")
	}

	c := newTestSession(t, netw, "127.0.0.1:7003", "charlie", mock, 4)
	if _, err := c.Socket().Join(a.Socket().LocalAddr().String()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	got := pumpSessions(4, a, b, c)

	joined := eventsOf(got[a], EventPeerJoined)
	if len(joined) != 1 || joined[0].Peer != c.Socket().LocalID() {
		t.Fatalf("a joins = %+v, want one for charlie", joined)
	}
	if a.Ready() {
		t.Error("a stayed ready after a newcomer joined")
	}

	reset := eventsOf(got[b], EventReadyChanged)
	if len(reset) != 1 || reset[0].Ready || reset[0].Peer != a.Socket().LocalID() {
		t.Fatalf("b ready changes = %+v, want one false from alpha", reset)
	}
	if b.PeerReady(a.Socket().LocalID()) {
		t.Error("b still sees a as ready")
	}
}

func TestDataMessagesRelayed(t *testing.T) {
	netw := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	a := newTestSession(t, netw, "127.0.0.1:7001", "alpha", mock, 2)
	b := newTestSession(t, netw, "127.0.0.1:7002", "bravo", mock, 2)
	connectSessions(t, a, b)
	aID := a.Socket().LocalID()
	bID := b.Socket().LocalID()

	if err := a.Send(bID, []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := pumpSessions(2, a, b)
	messages := eventsOf(got[b], EventMessage)
	if len(messages) != 1 {
		t.Fatalf("b saw %d messages, want 1", len(messages))
	}
	if messages[0].Peer != aID || !bytes.Equal(messages[0].Payload, []byte("hello")) {
		t.Fatalf("b got %s from %s", messages[0].Payload, messages[0].Peer)
	}

	if n := b.Broadcast([]byte("world")); n != 1 {
		t.Fatalf("Broadcast accepted %d sends, want 1", n)
	}
	got = pumpSessions(2, a, b)
	messages = eventsOf(got[a], EventMessage)
	if len(messages) != 1 || !bytes.Equal(messages[0].Payload, []byte("world")) {
		t.Fatalf("a messages = %+v, want one world", messages)
	}

	// Raw socket traffic that is not a session envelope is dropped.
	if err := a.Socket().Send(bID, []byte{0xff, 0x00}); err != nil {
		t.Fatalf("raw Send failed: %v", err)
	}
	got = pumpSessions(2, a, b)
	if messages := eventsOf(got[b], EventMessage); len(messages) != 0 {
		t.Fatalf("b surfaced undecodable payloads: %+v", messages)
	}
}

func TestPeerLeftClearsReadiness(t *testing.T) {
	netw := transport.NewMemoryNetwork()
	mock := clock.NewMock()
	a := newTestSession(t, netw, "127.0.0.1:7001", "alpha", mock, 4)
	b := newTestSession(t, netw, "127.0.0.1:7002", "bravo", mock, 4)
	connectSessions(t, a, b)
	leader, follower := byLeadership(t, a, b)
	followerID := follower.Socket().LocalID()

	follower.SetReady(true)
	pumpSessions(2, a, b)
	if !leader.PeerReady(followerID) {
		t.Fatal("leader did not record the follower's readiness")
	}

	netw.SetFilter(func(from, to netip.AddrPort, payload []byte) bool {
		return false
	})
	timeout := persistent.DefaultConfig().LivenessTimeout
	events := make(map[*Session][]Event)
	for i := 0; i < 10; i++ {
		mock.Add(timeout / 10)
		for s, evs := range pumpSessions(1, a, b) {
			events[s] = append(events[s], evs...)
		}
	}

	left := eventsOf(events[leader], EventPeerLeft)
	if len(left) != 1 || left[0].Peer != followerID {
		t.Fatalf("leader left events = %+v, want one for the follower", left)
	}
	if leader.PeerReady(followerID) {
		t.Error("leader still sees the departed follower as ready")
	}
	if peers := leader.Socket().Peers(); len(peers) != 0 {
		t.Errorf("leader still has peers: %v", peers)
	}
	if len(eventsOf(events[follower], EventPeerLeft)) != 1 {
		t.Error("follower did not notice the leader leaving")
	}
}
