package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for meshwire packets.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for meshwire packets. Decoding is
// lenient where it is safe to be: unknown keys are ignored and
// duplicate keys resolve last-wins, so newer nodes can extend the
// schema without breaking older ones.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxNestedLevels:   8,  // Envelope plus payload, never deeper
		MaxArrayElements:  4096,
		MaxMapPairs:       4096,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodePacket validates and encodes a packet envelope for the wire.
func EncodePacket(p *Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}
	return Marshal(p)
}

// DecodePacket decodes and validates one datagram. Any error means
// the datagram is not a well-formed packet of this protocol version
// and must be dropped.
func DecodePacket(data []byte) (*Packet, error) {
	var p Packet
	if err := Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}
	return &p, nil
}
