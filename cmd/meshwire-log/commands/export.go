package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// jsonEvent mirrors log.Event with JSON-friendly field names. The
// enum fields export as their string forms.
type jsonEvent struct {
	Timestamp   string                `json:"timestamp"`
	NodeID      string                `json:"node_id,omitempty"`
	Direction   string                `json:"direction"`
	Layer       string                `json:"layer"`
	Category    string                `json:"category"`
	RemoteAddr  string                `json:"remote_addr,omitempty"`
	Peer        string                `json:"peer,omitempty"`
	Packet      *log.PacketEvent      `json:"packet,omitempty"`
	StateChange *log.StateChangeEvent `json:"state_change,omitempty"`
	RTT         *log.RTTEvent         `json:"rtt,omitempty"`
	Drop        *log.DropEvent        `json:"drop,omitempty"`
	Error       *log.ErrorEventData   `json:"error,omitempty"`
}

func toJSONEvent(event log.Event) jsonEvent {
	return jsonEvent{
		Timestamp:   event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		NodeID:      event.NodeID,
		Direction:   event.Direction.String(),
		Layer:       event.Layer.String(),
		Category:    event.Category.String(),
		RemoteAddr:  event.RemoteAddr,
		Peer:        event.Peer,
		Packet:      event.Packet,
		StateChange: event.StateChange,
		RTT:         event.RTT,
		Drop:        event.Drop,
		Error:       event.Error,
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(toJSONEvent(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "node_id", "direction", "layer", "category", "peer", "remote_addr", "type", "seq", "size"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType := "unknown"
		seq := ""
		size := ""
		switch {
		case event.Packet != nil:
			eventType = event.Packet.Kind
			if event.Packet.Seq != 0 {
				seq = strconv.FormatUint(event.Packet.Seq, 10)
			}
			size = strconv.Itoa(event.Packet.Size)
		case event.StateChange != nil:
			eventType = "state"
		case event.RTT != nil:
			eventType = "rtt"
		case event.Drop != nil:
			eventType = "drop:" + event.Drop.Reason
			if event.Drop.Seq != 0 {
				seq = strconv.FormatUint(event.Drop.Seq, 10)
			}
			if event.Drop.Size > 0 {
				size = strconv.Itoa(event.Drop.Size)
			}
		case event.Error != nil:
			eventType = "error"
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.NodeID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Peer,
			event.RemoteAddr,
			eventType,
			seq,
			size,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
