// Package pkg provides shared utilities for the softrf streaming engine.
//
// This package contains common functionality used by the stream engine,
// its transports and the command-line tool, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for stream setup and transfer failures
//   - Status classification with conventional integer result codes
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with stream-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentRX, "stream configured", "mtu", 4096)
//
// Overrun and underrun conditions are additionally flagged with a one
// character marker ([MarkerOverrun], [MarkerUnderrun]) through [LogMarker].
//
// # Errors
//
// Errors are defined as sentinel values and wrapped with context by the
// engine, so they are matched with [errors.Is]:
//
//	n, err := eng.WriteStream(ctx, h, buf, 0, 0, time.Second)
//	if errors.Is(err, pkg.ErrTimeout) {
//	    // retry
//	}
//
// [StatusOf] maps any error to a [Status] for callers that need a result
// code rather than an error value.
package pkg
