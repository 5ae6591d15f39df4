// Package errors provides structured error types for the wasm-debugger library.
//
// Errors are categorized by Phase (where the error occurred) and Kind
// (error category). InvalidState and NotFound errors are recoverable:
// the session stays usable and the client may retry with corrected
// input. Trap errors are fatal to the current run; the session must be
// reloaded to recover.
//
// Use the convenience constructors for common patterns:
//
//	err := errors.InvalidState(errors.PhaseRun, "no module loaded")
//	err := errors.NotFound(errors.PhaseBreakpoint, "breakpoint %d", index)
//	err := errors.Trap("integer division by zero")
//
// All errors implement the standard error interface and support
// errors.Is/As.
package errors
