package wire

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// PeerID identifies a peer for the lifetime of its connection.
// It is a UUIDv4 under the hood. PeerIDs are never reused: once a
// peer disconnects its id is retired, and a rejoining node is
// admitted under a fresh one.
type PeerID [16]byte

// ZeroPeerID is the handshake placeholder identity. A connection
// request carrying it asks the responder to assign an id.
var ZeroPeerID PeerID

// NewPeerID returns a freshly minted random PeerID.
func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

// ParsePeerID parses the canonical UUID string form.
func ParsePeerID(s string) (PeerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ZeroPeerID, fmt.Errorf("invalid peer id %q: %w", s, err)
	}
	return PeerID(u), nil
}

// String returns the canonical UUID string form.
func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first 8 hex characters, for compact log output.
func (id PeerID) Short() string {
	return id.String()[:8]
}

// IsZero reports whether id is the handshake placeholder.
func (id PeerID) IsZero() bool {
	return id == ZeroPeerID
}

// Less orders PeerIDs byte-lexicographically. The smallest id among
// a set of peers is used for leader election.
func (id PeerID) Less(other PeerID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// MarshalBinary implements encoding.BinaryMarshaler. CBOR encodes a
// PeerID as a 16-byte string.
func (id PeerID) MarshalBinary() ([]byte, error) {
	return id[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (id *PeerID) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return fmt.Errorf("peer id must be 16 bytes, got %d", len(data))
	}
	copy(id[:], data)
	return nil
}
