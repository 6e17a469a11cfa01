package log

import (
	"testing"
	"time"
)

func TestEventRoundTrip(t *testing.T) {
	now := time.Now().Truncate(0) // strip monotonic reading

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "packet event",
			event: Event{
				Timestamp:  now,
				NodeID:     "9f2c1a44-0000-4000-8000-000000000001",
				Direction:  DirectionOut,
				Layer:      LayerReliable,
				Category:   CategoryPacket,
				RemoteAddr: "192.168.1.20:9000",
				Packet: &PacketEvent{
					Kind: "data",
					Seq:  12,
					Size: 96,
				},
			},
		},
		{
			name: "resent fragment",
			event: Event{
				Timestamp: now,
				Direction: DirectionOut,
				Layer:     LayerReliable,
				Category:  CategoryPacket,
				Packet: &PacketEvent{
					Kind:      "fragment",
					Seq:       13,
					FrameID:   2,
					FragIndex: 1,
					FragCount: 3,
					Size:      1100,
					Resend:    true,
					Retry:     2,
				},
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp: now,
				Direction: DirectionIn,
				Layer:     LayerPersistent,
				Category:  CategoryState,
				Peer:      "9f2c1a44-0000-4000-8000-000000000002",
				StateChange: &StateChangeEvent{
					OldState: "connecting",
					NewState: "connected",
					Reason:   "handshake complete",
				},
			},
		},
		{
			name: "rtt sample",
			event: Event{
				Timestamp: now,
				Direction: DirectionIn,
				Layer:     LayerPersistent,
				Category:  CategoryRTT,
				RTT: &RTTEvent{
					Sample:   3 * time.Millisecond,
					Smoothed: 2500 * time.Microsecond,
				},
			},
		},
		{
			name: "drop",
			event: Event{
				Timestamp: now,
				Direction: DirectionIn,
				Layer:     LayerFrame,
				Category:  CategoryDrop,
				Drop: &DropEvent{
					Reason: DropReassemblyTimeout,
					Size:   4096,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}

			decoded, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}

			if !decoded.Timestamp.Equal(tt.event.Timestamp) {
				t.Errorf("Timestamp mismatch: got %v, want %v", decoded.Timestamp, tt.event.Timestamp)
			}
			if decoded.Direction != tt.event.Direction {
				t.Errorf("Direction mismatch: got %v, want %v", decoded.Direction, tt.event.Direction)
			}
			if decoded.Layer != tt.event.Layer {
				t.Errorf("Layer mismatch: got %v, want %v", decoded.Layer, tt.event.Layer)
			}
			if decoded.Category != tt.event.Category {
				t.Errorf("Category mismatch: got %v, want %v", decoded.Category, tt.event.Category)
			}

			switch {
			case tt.event.Packet != nil:
				if decoded.Packet == nil {
					t.Fatalf("Packet payload lost")
				}
				if *decoded.Packet != *tt.event.Packet {
					t.Errorf("Packet mismatch: got %+v, want %+v", decoded.Packet, tt.event.Packet)
				}
			case tt.event.StateChange != nil:
				if decoded.StateChange == nil {
					t.Fatalf("StateChange payload lost")
				}
				if *decoded.StateChange != *tt.event.StateChange {
					t.Errorf("StateChange mismatch: got %+v, want %+v", decoded.StateChange, tt.event.StateChange)
				}
			case tt.event.RTT != nil:
				if decoded.RTT == nil {
					t.Fatalf("RTT payload lost")
				}
				if *decoded.RTT != *tt.event.RTT {
					t.Errorf("RTT mismatch: got %+v, want %+v", decoded.RTT, tt.event.RTT)
				}
			case tt.event.Drop != nil:
				if decoded.Drop == nil {
					t.Fatalf("Drop payload lost")
				}
				if *decoded.Drop != *tt.event.Drop {
					t.Errorf("Drop mismatch: got %+v, want %+v", decoded.Drop, tt.event.Drop)
				}
			}
		})
	}
}

func TestEnumStrings(t *testing.T) {
	if DirectionIn.String() != "IN" || DirectionOut.String() != "OUT" {
		t.Errorf("Direction strings wrong")
	}
	if LayerReliable.String() != "RELIABLE" || LayerFrame.String() != "FRAME" {
		t.Errorf("Layer strings wrong")
	}
	if Layer(99).String() != "UNKNOWN" {
		t.Errorf("unknown layer should stringify to UNKNOWN")
	}
	if CategoryRTT.String() != "RTT" || CategoryDrop.String() != "DROP" {
		t.Errorf("Category strings wrong")
	}
}
