package wire

import (
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	sender := NewPeerID()

	tests := []struct {
		name string
		pkt  Packet
	}{
		{
			name: "data",
			pkt: Packet{
				Version: ProtocolVersion,
				Kind:    KindData,
				Sender:  sender,
				Seq:     1,
				Payload: []byte("hello"),
			},
		},
		{
			name: "fragment",
			pkt: Packet{
				Version:   ProtocolVersion,
				Kind:      KindFragment,
				Sender:    sender,
				Seq:       7,
				FrameID:   3,
				FragIndex: 0,
				FragCount: 4,
				Payload:   bytes.Repeat([]byte{0xAB}, 512),
			},
		},
		{
			name: "last fragment",
			pkt: Packet{
				Version:   ProtocolVersion,
				Kind:      KindFragment,
				Sender:    sender,
				Seq:       8,
				FrameID:   3,
				FragIndex: 3,
				FragCount: 4,
				Payload:   []byte{0x01},
			},
		},
		{
			name: "ack",
			pkt: Packet{
				Version: ProtocolVersion,
				Kind:    KindAck,
				Sender:  sender,
				Seq:     42,
			},
		},
		{
			name: "connect request with placeholder id",
			pkt: Packet{
				Version: ProtocolVersion,
				Kind:    KindConnectRequest,
				Sender:  ZeroPeerID,
			},
		},
		{
			name: "heartbeat",
			pkt: Packet{
				Version: ProtocolVersion,
				Kind:    KindHeartbeat,
				Sender:  sender,
				Payload: []byte{0xA0}, // empty CBOR map
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePacket(&tt.pkt)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}

			decoded, err := DecodePacket(data)
			if err != nil {
				t.Fatalf("DecodePacket failed: %v", err)
			}

			if decoded.Kind != tt.pkt.Kind {
				t.Errorf("Kind mismatch: got %v, want %v", decoded.Kind, tt.pkt.Kind)
			}
			if decoded.Sender != tt.pkt.Sender {
				t.Errorf("Sender mismatch: got %v, want %v", decoded.Sender, tt.pkt.Sender)
			}
			if decoded.Seq != tt.pkt.Seq {
				t.Errorf("Seq mismatch: got %d, want %d", decoded.Seq, tt.pkt.Seq)
			}
			if decoded.FrameID != tt.pkt.FrameID {
				t.Errorf("FrameID mismatch: got %d, want %d", decoded.FrameID, tt.pkt.FrameID)
			}
			if decoded.FragIndex != tt.pkt.FragIndex {
				t.Errorf("FragIndex mismatch: got %d, want %d", decoded.FragIndex, tt.pkt.FragIndex)
			}
			if decoded.FragCount != tt.pkt.FragCount {
				t.Errorf("FragCount mismatch: got %d, want %d", decoded.FragCount, tt.pkt.FragCount)
			}
			if !bytes.Equal(decoded.Payload, tt.pkt.Payload) {
				t.Errorf("Payload mismatch: got %x, want %x", decoded.Payload, tt.pkt.Payload)
			}
		})
	}
}

func TestPacketValidate(t *testing.T) {
	sender := NewPeerID()

	tests := []struct {
		name string
		pkt  Packet
	}{
		{
			name: "wrong version",
			pkt:  Packet{Version: 99, Kind: KindData, Sender: sender, Seq: 1},
		},
		{
			name: "unknown kind",
			pkt:  Packet{Version: ProtocolVersion, Kind: Kind(200), Sender: sender},
		},
		{
			name: "data without sequence",
			pkt:  Packet{Version: ProtocolVersion, Kind: KindData, Sender: sender},
		},
		{
			name: "heartbeat with sequence",
			pkt:  Packet{Version: ProtocolVersion, Kind: KindHeartbeat, Sender: sender, Seq: 5},
		},
		{
			name: "data without sender",
			pkt:  Packet{Version: ProtocolVersion, Kind: KindData, Seq: 1},
		},
		{
			name: "fragment without frame id",
			pkt:  Packet{Version: ProtocolVersion, Kind: KindFragment, Sender: sender, Seq: 1, FragCount: 2},
		},
		{
			name: "fragment index out of range",
			pkt: Packet{
				Version: ProtocolVersion, Kind: KindFragment, Sender: sender,
				Seq: 1, FrameID: 1, FragIndex: 2, FragCount: 2,
			},
		},
		{
			name: "data with fragment fields",
			pkt:  Packet{Version: ProtocolVersion, Kind: KindData, Sender: sender, Seq: 1, FrameID: 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.pkt.Validate(); err == nil {
				t.Errorf("Validate accepted invalid packet")
			}
		})
	}
}

func TestDecodePacketMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "garbage", data: []byte{0xFF, 0x00, 0x13, 0x37}},
		{name: "truncated", data: []byte{0xA3, 0x01}},
		{name: "wrong shape", data: []byte{0x83, 0x01, 0x02, 0x03}}, // CBOR array, not map
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePacket(tt.data); err == nil {
				t.Errorf("DecodePacket accepted malformed data")
			}
		})
	}
}

// TestDecodePacketIgnoresUnknownKeys verifies forward compatibility:
// a packet from a newer node with extra envelope keys still decodes.
func TestDecodePacketIgnoresUnknownKeys(t *testing.T) {
	pkt := Packet{
		Version: ProtocolVersion,
		Kind:    KindData,
		Sender:  NewPeerID(),
		Seq:     9,
		Payload: []byte("future"),
	}

	extended := struct {
		Packet
		Extra string `cbor:"99,keyasint"`
	}{Packet: pkt, Extra: "from the future"}

	data, err := Marshal(extended)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	if decoded.Seq != 9 || !bytes.Equal(decoded.Payload, []byte("future")) {
		t.Errorf("decoded packet lost known fields: %+v", decoded)
	}
}
