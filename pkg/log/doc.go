// Package log provides structured protocol logging for meshwire.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at every layer of the stack
// (transport, reliable, frame, persistent, session). It is separate
// from operational logging (slog) - protocol capture provides a
// complete machine-readable trace of what crossed the wire and why
// peers changed state.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("node.mwlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events carry one typed payload each:
//   - PacketEvent: a wire packet sent or received
//   - StateChangeEvent: a peer lifecycle transition
//   - RTTEvent: a heartbeat round-trip sample
//   - DropEvent: discarded data (malformed, duplicate, evicted, ...)
//   - ErrorEventData: errors at any layer
//
// # File Format
//
// Log files are a plain stream of CBOR events with .mwlog extension.
// The meshwire-log CLI tool provides viewing, filtering, statistics,
// and export.
package log
