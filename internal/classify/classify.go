// Package classify maps the raw outcome of a TLS engine call into an
// actionable result. The engine reports failures as alert values and
// transport errors whose meaning depends on which operation was in
// flight; this package is the single place where those raw outcomes
// become one of a small set of well-known errors. Nothing above this
// package re-interprets engine errors on its own.
package classify

import (
	"io"
	"net"
	"os"

	"github.com/bifurcation/mint"
)

// Op identifies the operation whose outcome is being classified. The
// engine's retry signal is direction-less, so the operation decides
// whether it becomes a want-read or a want-write.
type Op int

// The classifiable operations.
const (
	OpHandshake Op = iota
	OpRead
	OpWrite
	OpShutdown
)

// Retry and termination signals. These are not faults: ErrWantRead
// and ErrWantWrite ask the caller to satisfy an I/O condition and
// re-invoke the identical operation, while ErrZeroReturn reports a
// clean TLS-level close by the peer.
var (
	ErrWantRead   = newSignal("want read")
	ErrWantWrite  = newSignal("want write")
	ErrZeroReturn = newSignal("zero return")
)

// ErrNotSupported indicates that an optional engine capability is not
// available on the engine backing a connection.
var ErrNotSupported = newSignal("capability not supported by engine")

type signalError struct {
	message string
}

func newSignal(message string) error {
	return &signalError{message: message}
}

func (e *signalError) Error() string {
	return "tlsbio: " + e.message
}

// ProtocolError is a fatal TLS-level failure: a rejected handshake, a
// decryption failure, or an error alert received from the peer. The
// connection that produced it is unusable.
type ProtocolError struct {
	Diagnostic string
}

func (e *ProtocolError) Error() string {
	return "tlsbio: protocol error: " + e.Diagnostic
}

// NewProtocolError creates a ProtocolError with the given diagnostic.
func NewProtocolError(diagnostic string) error {
	return &ProtocolError{Diagnostic: diagnostic}
}

// SyscallError is a fatal transport-level failure with no TLS-level
// diagnostic attached. The connection that produced it is unusable.
type SyscallError struct {
	Err error
}

func (e *SyscallError) Error() string {
	return "tlsbio: transport error: " + e.Err.Error()
}

func (e *SyscallError) Unwrap() error {
	return e.Err
}

// AllocationError indicates that constructing a native resource
// failed. It is fatal to the attempted operation only.
type AllocationError struct {
	Resource string
}

func (e *AllocationError) Error() string {
	return "tlsbio: cannot allocate " + e.Resource
}

// InvalidArgumentError indicates that the caller passed an
// out-of-range value or invoked an operation in a state where it is
// not defined. It is raised before touching any engine state.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "tlsbio: invalid argument: " + e.Reason
}

// NewInvalidArgument creates an InvalidArgumentError with the
// given reason.
func NewInvalidArgument(reason string) error {
	return &InvalidArgumentError{Reason: reason}
}

// Do classifies the outcome of an engine call. A nil error stays nil.
// The classification consumes the raw error: callers should propagate
// the returned error and never inspect the original one again.
func Do(op Op, err error) error {
	if err == nil {
		return nil
	}
	if alert, ok := err.(mint.Alert); ok {
		return classifyAlert(op, alert)
	}
	if err == io.EOF {
		// The peer went away without an alert. On a read path this
		// is how the engine reports a close_notify it has already
		// absorbed; anywhere else it is a truncation.
		if op == OpRead || op == OpShutdown {
			return ErrZeroReturn
		}
		return &SyscallError{Err: io.ErrUnexpectedEOF}
	}
	if isTransportError(err) {
		return &SyscallError{Err: err}
	}
	return &ProtocolError{Diagnostic: err.Error()}
}

func classifyAlert(op Op, alert mint.Alert) error {
	switch alert {
	case mint.AlertWouldBlock:
		if op == OpWrite {
			return ErrWantWrite
		}
		return ErrWantRead
	case mint.AlertCloseNotify:
		return ErrZeroReturn
	default:
		return &ProtocolError{Diagnostic: alert.String()}
	}
}

func isTransportError(err error) bool {
	switch err.(type) {
	case *net.OpError, *os.SyscallError:
		return true
	}
	_, ok := err.(net.Error)
	return ok
}
