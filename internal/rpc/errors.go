package rpc

import "errors"

// Sentinel errors surfaced by the framing layer. Callers classify failures
// against these with errors.Is rather than inspecting transport internals.
var (
	// ErrTransportClosed is returned to every pending request, and to any
	// new call, once the child process has exited or the connection has
	// been closed.
	ErrTransportClosed = errors.New("rpc: transport closed")

	// ErrTimeout is returned for a single request that did not receive a
	// response within its timeout. The connection itself remains open.
	ErrTimeout = errors.New("rpc: request timed out")

	// ErrIDInUse indicates an internal bug: a request was issued with an id
	// that already has a pending response handle.
	ErrIDInUse = errors.New("rpc: request id already in use")
)
