// Package log provides structured protocol logging for Relay sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, session).
// It is separate from operational logging (slog): protocol capture is a
// complete machine-readable trace of what crossed the connection.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	builder.SetProtocolLogger(log.NewSlogAdapter(slog.Default()))
//
//	// For later analysis: write to a binary file
//	fl, _ := log.NewFileLogger("/var/log/relay/client.rlog")
//	builder.SetProtocolLogger(fl)
//
//	// Both
//	builder.SetProtocolLogger(log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl))
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded data frames (MessageEvent) and control frames (ControlMsgEvent)
//   - Session: state changes (StateChangeEvent)
//
// Errors at any layer are recorded as ErrorEventData.
//
// # File Format
//
// Log files are a sequence of CBOR-encoded events with the .rlog
// extension. The relay-log CLI views, filters and summarises them.
package log
