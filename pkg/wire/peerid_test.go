package wire

import (
	"testing"
)

func TestPeerIDString(t *testing.T) {
	id := NewPeerID()

	parsed, err := ParsePeerID(id.String())
	if err != nil {
		t.Fatalf("ParsePeerID failed: %v", err)
	}
	if parsed != id {
		t.Errorf("round trip mismatch: got %v, want %v", parsed, id)
	}

	if _, err := ParsePeerID("not-a-uuid"); err == nil {
		t.Errorf("ParsePeerID accepted garbage")
	}
}

func TestPeerIDZero(t *testing.T) {
	if !ZeroPeerID.IsZero() {
		t.Errorf("ZeroPeerID.IsZero() = false")
	}
	if NewPeerID().IsZero() {
		t.Errorf("fresh id reported zero")
	}
}

func TestPeerIDLess(t *testing.T) {
	a := PeerID{0x00, 0x01}
	b := PeerID{0x00, 0x02}

	if !a.Less(b) {
		t.Errorf("a.Less(b) = false, want true")
	}
	if b.Less(a) {
		t.Errorf("b.Less(a) = true, want false")
	}
	if a.Less(a) {
		t.Errorf("a.Less(a) = true, want false")
	}
}

func TestPeerIDBinary(t *testing.T) {
	id := NewPeerID()

	data, err := id.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if len(data) != 16 {
		t.Fatalf("MarshalBinary returned %d bytes, want 16", len(data))
	}

	var back PeerID
	if err := back.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if back != id {
		t.Errorf("binary round trip mismatch: got %v, want %v", back, id)
	}

	if err := back.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Errorf("UnmarshalBinary accepted short input")
	}
}
