// Package tlsbio implements TLS connections that perform their I/O
// over in-memory buffers rather than sockets. The caller owns the
// real transport: it creates a linked pair of buffer endpoints with
// membio.NewPair, attaches one endpoint to a Conn, and shuttles
// bytes between the other endpoint and its socket whenever an
// operation asks for more network I/O.
//
// Operations never block on the network. When an operation cannot
// proceed it returns ErrWantRead or ErrWantWrite; the caller feeds
// or drains the network endpoint and retries the identical call.
// ErrZeroReturn reports a clean TLS-level close by the peer. All
// other errors are fatal for the connection that produced them.
//
// A Conn is not safe for concurrent use. A Context is immutable
// after construction and may be shared freely.
package tlsbio

import "github.com/ooni/tlsbio/internal/classify"

// Errors returned by connection operations. See the package
// documentation for the retry contract.
var (
	ErrWantRead     = classify.ErrWantRead
	ErrWantWrite    = classify.ErrWantWrite
	ErrZeroReturn   = classify.ErrZeroReturn
	ErrNotSupported = classify.ErrNotSupported
)

// ProtocolError is a fatal TLS-level failure.
type ProtocolError = classify.ProtocolError

// SyscallError is a fatal transport-level failure.
type SyscallError = classify.SyscallError

// AllocationError indicates that constructing a resource failed.
type AllocationError = classify.AllocationError

// InvalidArgumentError indicates a misuse of the API.
type InvalidArgumentError = classify.InvalidArgumentError
