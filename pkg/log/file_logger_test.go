package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeTestLog(t *testing.T, path string, events []Event) {
	t.Helper()

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func readAllEvents(t *testing.T, path string, filter Filter) []Event {
	t.Helper()

	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var events []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mwlog")

	now := time.Now()
	written := []Event{
		{
			Timestamp: now,
			Direction: DirectionOut,
			Layer:     LayerReliable,
			Category:  CategoryPacket,
			Packet:    &PacketEvent{Kind: "data", Seq: 1, Size: 64},
		},
		{
			Timestamp: now.Add(time.Millisecond),
			Direction: DirectionIn,
			Layer:     LayerReliable,
			Category:  CategoryPacket,
			Packet:    &PacketEvent{Kind: "ack", Seq: 1, Size: 32},
		},
		{
			Timestamp:   now.Add(2 * time.Millisecond),
			Direction:   DirectionIn,
			Layer:       LayerPersistent,
			Category:    CategoryState,
			StateChange: &StateChangeEvent{NewState: "connected"},
		},
	}
	writeTestLog(t, path, written)

	events := readAllEvents(t, path, Filter{})
	if len(events) != len(written) {
		t.Fatalf("got %d events, want %d", len(events), len(written))
	}
	for i := range written {
		if events[i].Layer != written[i].Layer {
			t.Errorf("event %d: Layer = %v, want %v", i, events[i].Layer, written[i].Layer)
		}
		if events[i].Category != written[i].Category {
			t.Errorf("event %d: Category = %v, want %v", i, events[i].Category, written[i].Category)
		}
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.mwlog")

	writeTestLog(t, path, []Event{
		{Timestamp: time.Now(), Direction: DirectionOut, Layer: LayerReliable, Category: CategoryPacket},
	})
	writeTestLog(t, path, []Event{
		{Timestamp: time.Now(), Direction: DirectionIn, Layer: LayerReliable, Category: CategoryPacket},
	})

	events := readAllEvents(t, path, Filter{})
	if len(events) != 2 {
		t.Fatalf("got %d events after two sessions, want 2", len(events))
	}
}

func TestFileLoggerLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.mwlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Must not panic, must not write
	logger.Log(Event{Timestamp: time.Now()})

	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}

	events := readAllEvents(t, path, Filter{})
	if len(events) != 0 {
		t.Errorf("got %d events after close, want 0", len(events))
	}
}
