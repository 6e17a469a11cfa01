package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	// Add optional identifiers
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node", event.NodeID))
	}
	if event.Peer != "" {
		attrs = append(attrs, slog.String("peer", event.Peer))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("addr", event.RemoteAddr))
	}

	// Add type-specific attributes
	switch {
	case event.Packet != nil:
		attrs = append(attrs,
			slog.String("kind", event.Packet.Kind),
			slog.Int("size", event.Packet.Size),
		)
		if event.Packet.Seq != 0 {
			attrs = append(attrs, slog.Uint64("seq", event.Packet.Seq))
		}
		if event.Packet.FrameID != 0 {
			attrs = append(attrs,
				slog.Uint64("frame", event.Packet.FrameID),
				slog.Uint64("frag", uint64(event.Packet.FragIndex)),
				slog.Uint64("frag_count", uint64(event.Packet.FragCount)),
			)
		}
		if event.Packet.Resend {
			attrs = append(attrs,
				slog.Bool("resend", true),
				slog.Int("retry", event.Packet.Retry),
			)
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.RTT != nil:
		attrs = append(attrs,
			slog.Duration("sample", event.RTT.Sample),
			slog.Duration("smoothed", event.RTT.Smoothed),
		)
	case event.Drop != nil:
		attrs = append(attrs, slog.String("reason", event.Drop.Reason))
		if event.Drop.Size != 0 {
			attrs = append(attrs, slog.Int("size", event.Drop.Size))
		}
		if event.Drop.Seq != 0 {
			attrs = append(attrs, slog.Uint64("seq", event.Drop.Seq))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
