package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Peers             map[string]*PeerStats
	DropsByReason     map[string]int
	Resends           int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// PeerStats holds statistics for a single remote peer.
type PeerStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Addr      string
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Peers:             make(map[string]*PeerStats),
		DropsByReason:     make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.Peer != "" {
			peer, ok := stats.Peers[event.Peer]
			if !ok {
				peer = &PeerStats{
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				}
				stats.Peers[event.Peer] = peer
			}
			peer.Events++
			if event.Timestamp.After(peer.LastSeen) {
				peer.LastSeen = event.Timestamp
			}
			if event.RemoteAddr != "" {
				peer.Addr = event.RemoteAddr
			}
		}

		if event.Drop != nil {
			stats.DropsByReason[event.Drop.Reason]++
		}
		if event.Packet != nil && event.Packet.Resend {
			stats.Resends++
		}
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== meshwire Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerReliable, log.LayerFrame, log.LayerPersistent, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryPacket, log.CategoryState, log.CategoryRTT, log.CategoryDrop, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if stats.Resends > 0 {
		fmt.Fprintf(w, "Resends: %d\n", stats.Resends)
		fmt.Fprintln(w)
	}

	if len(stats.DropsByReason) > 0 {
		fmt.Fprintln(w, "Drops by Reason:")
		reasons := make([]string, 0, len(stats.DropsByReason))
		for reason := range stats.DropsByReason {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %-20s %d\n", reason+":", stats.DropsByReason[reason])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Peers: %d\n", len(stats.Peers))
	if len(stats.Peers) > 0 {
		type peerInfo struct {
			id    string
			stats *PeerStats
		}
		peers := make([]peerInfo, 0, len(stats.Peers))
		for id, ps := range stats.Peers {
			peers = append(peers, peerInfo{id, ps})
		}
		sort.Slice(peers, func(i, j int) bool {
			return peers[i].stats.FirstSeen.Before(peers[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, p := range peers {
			duration := p.stats.LastSeen.Sub(p.stats.FirstSeen).Round(time.Millisecond)
			shortID := p.id
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortID, p.stats.Events, duration)
			if p.stats.Addr != "" {
				fmt.Fprintf(w, "           Addr: %s\n", p.stats.Addr)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
