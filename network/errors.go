package network

import "errors"

// Sentinel errors for the admin surface and the protocol step. Callers
// compare with errors.Is; the Scheduler wraps these with %w, and the
// console prints them at the command boundary without the scheduler
// ever panicking on them.
var (
	// ErrNodeConnect covers a missing or duplicate IP and self-connect
	// attempts.
	ErrNodeConnect = errors.New("node connect error")
	// ErrInputMismatch covers a malformed command or address syntax.
	ErrInputMismatch = errors.New("input mismatch")
	// ErrNotFound covers a reference to an IP that names no known node.
	ErrNotFound = errors.New("not found")
	// ErrFatal covers an unrecoverable scheduler state. Reaching it
	// should be unreachable in correct code; the worker loop logs and
	// stops rather than panicking.
	ErrFatal = errors.New("fatal scheduler error")
)
