package lobby

import (
	"fmt"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Message kinds carried inside session envelopes.
const (
	kindReady uint8 = 1
	kindStart uint8 = 2
	kindData  uint8 = 3
)

// envelope frames every payload exchanged between sessions.
//
// CBOR encoding:
//
//	{
//	  1: kind,  // uint8
//	  2: body   // bytes, kind-specific
//	}
type envelope struct {
	Kind uint8  `cbor:"1,keyasint"`
	Body []byte `cbor:"2,keyasint,omitempty"`
}

// readyBody announces the sender's readiness.
//
// CBOR encoding:
//
//	{
//	  1: flag   // bool
//	}
type readyBody struct {
	Flag bool `cbor:"1,keyasint,omitempty"`
}

// startBody orders a scheduled start.
//
// CBOR encoding:
//
//	{
//	  1: run,    // bytes(16), random id naming this run
//	  2: ticks   // uint32, countdown the sender broadcast
//	}
type startBody struct {
	Run   wire.PeerID `cbor:"1,keyasint"`
	Ticks uint32      `cbor:"2,keyasint,omitempty"`
}

func encodeEnvelope(kind uint8, body any) ([]byte, error) {
	raw, err := wire.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session body: %w", err)
	}
	return wire.Marshal(&envelope{Kind: kind, Body: raw})
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := wire.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode session envelope: %w", err)
	}
	if env.Kind == 0 {
		return nil, fmt.Errorf("session envelope without kind")
	}
	return &env, nil
}
