package wire

import (
	"fmt"
)

// ConnectRequest is the payload of a KindConnectRequest packet. The
// requester's announced identity travels in the envelope sender
// field; the payload carries everything else.
//
// CBOR encoding:
//
//	{
//	  1: name   // text, optional human-readable node name
//	}
type ConnectRequest struct {
	Name string `cbor:"1,keyasint,omitempty"`
}

// ConnectAccept is the payload of a KindConnectAccept packet.
//
// CBOR encoding:
//
//	{
//	  1: assigned,  // bytes(16), the id admitted for the requester
//	  2: name       // text, optional responder node name
//	}
//
// Assigned echoes the announced id when the responder admitted it,
// or carries a freshly minted one when the announced id was zero,
// already in use, or retired. The requester adopts whatever comes
// back.
type ConnectAccept struct {
	Assigned PeerID `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint,omitempty"`
}

// Validate checks the accept payload.
func (a *ConnectAccept) Validate() error {
	if a.Assigned.IsZero() {
		return fmt.Errorf("accept with zero assigned id")
	}
	return nil
}

// Heartbeat is the payload of a KindHeartbeat packet. A heartbeat
// can probe (Nonce set), answer a probe (Echo set), or both at once;
// gossip entries piggyback on either.
//
// CBOR encoding:
//
//	{
//	  1: nonce,   // uint32, RTT probe, 0 = none
//	  2: echo,    // uint32, nonce being answered, 0 = none
//	  3: gossip   // array of GossipEntry
//	}
type Heartbeat struct {
	Nonce  uint32        `cbor:"1,keyasint,omitempty"`
	Echo   uint32        `cbor:"2,keyasint,omitempty"`
	Gossip []GossipEntry `cbor:"3,keyasint,omitempty"`
}

// GossipEntry advertises one connected peer to the recipient.
//
// CBOR encoding:
//
//	{
//	  1: id,    // bytes(16)
//	  2: addr   // text, UDP address in "host:port" form
//	}
type GossipEntry struct {
	ID   PeerID `cbor:"1,keyasint"`
	Addr string `cbor:"2,keyasint"`
}

// EncodeConnectRequest encodes a connect request payload.
func EncodeConnectRequest(req *ConnectRequest) ([]byte, error) {
	return Marshal(req)
}

// DecodeConnectRequest decodes a connect request payload.
func DecodeConnectRequest(data []byte) (*ConnectRequest, error) {
	var req ConnectRequest
	if len(data) > 0 {
		if err := Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to decode connect request: %w", err)
		}
	}
	return &req, nil
}

// EncodeConnectAccept encodes a connect accept payload.
func EncodeConnectAccept(acc *ConnectAccept) ([]byte, error) {
	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connect accept: %w", err)
	}
	return Marshal(acc)
}

// DecodeConnectAccept decodes and validates a connect accept payload.
func DecodeConnectAccept(data []byte) (*ConnectAccept, error) {
	var acc ConnectAccept
	if err := Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to decode connect accept: %w", err)
	}
	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connect accept: %w", err)
	}
	return &acc, nil
}

// EncodeHeartbeat encodes a heartbeat payload.
func EncodeHeartbeat(hb *Heartbeat) ([]byte, error) {
	return Marshal(hb)
}

// DecodeHeartbeat decodes a heartbeat payload.
func DecodeHeartbeat(data []byte) (*Heartbeat, error) {
	var hb Heartbeat
	if len(data) > 0 {
		if err := Unmarshal(data, &hb); err != nil {
			return nil, fmt.Errorf("failed to decode heartbeat: %w", err)
		}
	}
	return &hb, nil
}
