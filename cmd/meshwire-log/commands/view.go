// Package commands implements the meshwire-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
)

// ParseLayerFlag maps a -layer flag value to a log.Layer.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "reliable":
		return log.LayerReliable, nil
	case "frame":
		return log.LayerFrame, nil
	case "persistent":
		return log.LayerPersistent, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (transport, reliable, frame, persistent, session)", s)
	}
}

// ParseDirectionFlag maps a -direction flag value to a log.Direction.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

// ParseCategoryFlag maps a -category flag value to a log.Category.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "packet":
		return log.CategoryPacket, nil
	case "state":
		return log.CategoryState, nil
	case "rtt":
		return log.CategoryRTT, nil
	case "drop":
		return log.CategoryDrop, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (packet, state, rtt, drop, error)", s)
	}
}

// RunView prints every matching event in human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
		count++
	}

	fmt.Fprintf(w, "%d event(s)\n", count)
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [node:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Packet != nil:
		typeLabel = event.Packet.Kind
	case event.StateChange != nil:
		typeLabel = "State"
	case event.RTT != nil:
		typeLabel = "RTT"
	case event.Drop != nil:
		typeLabel = "Drop"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [node:%s] %-3s %s %s\n",
		ts, shortenID(event.NodeID), event.Direction, event.Layer, typeLabel)

	if event.Peer != "" {
		fmt.Fprintf(w, "  Peer: %s", shortenID(event.Peer))
		if event.RemoteAddr != "" {
			fmt.Fprintf(w, " (%s)", event.RemoteAddr)
		}
		fmt.Fprintln(w)
	} else if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Addr: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.RTT != nil:
		formatRTTDetails(w, event.RTT)
	case event.Drop != nil:
		formatDropDetails(w, event.Drop)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenID returns the first 8 characters of a node or peer id.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatPacketDetails(w io.Writer, p *log.PacketEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", p.Size)
	if p.Seq != 0 {
		fmt.Fprintf(w, "  Seq: %d\n", p.Seq)
	}
	if p.FragCount > 0 {
		fmt.Fprintf(w, "  Fragment: %d/%d of frame %d\n", p.FragIndex+1, p.FragCount, p.FrameID)
	}
	if p.Resend {
		fmt.Fprintf(w, "  Resend: attempt %d\n", p.Retry)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  Transition: %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  State: %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatRTTDetails(w io.Writer, rtt *log.RTTEvent) {
	fmt.Fprintf(w, "  Sample: %s  Smoothed: %s\n", rtt.Sample, rtt.Smoothed)
}

func formatDropDetails(w io.Writer, d *log.DropEvent) {
	fmt.Fprintf(w, "  Reason: %s\n", d.Reason)
	if d.Size > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", d.Size)
	}
	if d.Seq != 0 {
		fmt.Fprintf(w, "  Seq: %d\n", d.Seq)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}
