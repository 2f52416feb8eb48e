// Package log provides structured protocol capture for the device transport.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog): protocol capture provides
// a machine-readable event trace for debugging a device session offline.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: one capture file per device session
//	file, _ := log.NewFileLogger(log.CapturePath("/var/log/device", deviceID, time.Now()))
//
//	// Both: Combine drops nil sinks and fans out to the rest
//	cfg.ProtocolLogger = log.Combine(file, log.NewSlogAdapter(slog.Default()))
//
// The transport config file does the same with its capture_dir and
// capture_log keys and closes the capture when the transport is destroyed.
//
// # Event Types
//
//   - Wire: AMQP transfers and their outcomes (MessageEvent)
//   - Control: CBS put-token requests and replies (TokenEvent)
//   - State: connection, CBS, sender, receiver and controller lifecycle
//     (StateChangeEvent)
//
// Errors at any layer have a dedicated event type. Token values are never
// captured.
//
// # File Format
//
// Capture files (extension .alog) are a stream of CBOR encoded events.
// Reader iterates them with an optional Filter, for example the events of a
// single connection; a capture cut off mid-event ends with ErrTruncated.
package log
