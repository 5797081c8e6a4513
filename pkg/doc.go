// Package pkg provides shared utilities for the soundbox composite device.
//
// This package contains common functionality used by every soundbox
// component, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for storage, audio, console and transport faults
//   - A severity taxonomy that separates fatal boot errors from recoverable
//     I/O errors and silently ignored protocol edges
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentStorage, "storage mounted", "path", "/data")
//
// # Errors
//
// Errors are sentinel values wrapped with operation context:
//
//	if errors.Is(err, pkg.ErrPartitionNotFound) {
//	    // no data partition in the partition table
//	}
//
// [Classify] decides how the orchestrator reacts to an error:
//
//	switch pkg.Classify(err) {
//	case pkg.SeverityFatalInit:
//	    // halt
//	case pkg.SeverityRecoverableIO:
//	    // log and keep running
//	}
package pkg
