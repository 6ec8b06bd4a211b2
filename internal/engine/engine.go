// Package engine defines the contract between a connection and the
// TLS implementation that actually speaks the protocol. Connections
// drive an Engine; the concrete engine wraps a specific TLS stack and
// performs its I/O against an in-memory transport endpoint.
package engine

import (
	"crypto/x509"

	"github.com/bifurcation/mint"
)

// Info describes a completed or in-progress handshake. Fields that
// are not yet known are left at their zero value and, where the zero
// value is ambiguous, flagged by a companion boolean.
type Info struct {
	// CipherSuite is the negotiated cipher suite identifier.
	CipherSuite uint16

	// HaveCipherSuite indicates whether CipherSuite is meaningful.
	HaveCipherSuite bool

	// Version is the negotiated protocol version identifier.
	Version uint16

	// NegotiatedProtocol is the application protocol selected via
	// ALPN, or empty when none was negotiated.
	NegotiatedProtocol string

	// PeerCertificates is the certificate chain presented by the
	// peer, leaf first. Nil when the peer presented none, which for
	// a server-side engine is the common case.
	PeerCertificates []*x509.Certificate

	// VerifiedChains contains the validated chains built from
	// PeerCertificates to a trusted root, or nil when verification
	// was disabled or did not run.
	VerifiedChains [][]*x509.Certificate

	// Resumed indicates that the handshake used a pre-shared key
	// from a previous session rather than a full key exchange.
	Resumed bool

	// UsingEarlyData indicates that the peer accepted early data.
	UsingEarlyData bool
}

// Engine is a TLS protocol machine bound to a transport at
// construction time. All methods report raw engine errors; callers
// classify them. An Engine is not safe for concurrent use.
type Engine interface {
	// Handshake advances the handshake as far as the transport
	// allows. It returns nil when the handshake is complete and a
	// retriable or fatal error otherwise.
	Handshake() error

	// HandshakeDone indicates whether the handshake has completed.
	HandshakeDone() bool

	// Read moves decrypted application data into b.
	Read(b []byte) (int, error)

	// Write encrypts b and queues it towards the transport.
	Write(b []byte) (int, error)

	// Close ends the session and releases the transport.
	Close() error

	// Info reports what is currently known about the session.
	Info() Info
}

// EarlyDataWriter is implemented by engines that can send 0-RTT
// application data during a resumed handshake.
type EarlyDataWriter interface {
	// WriteEarlyData encrypts b under the early traffic keys.
	WriteEarlyData(b []byte) (int, error)

	// MaxEarlyData reports how many early data bytes the peer
	// advertised it will accept, or zero when unknown.
	MaxEarlyData() uint32
}

// CandidateCipherer is implemented by engines that can expose the
// cipher suite under negotiation before the handshake confirms it.
type CandidateCipherer interface {
	// CandidateCipher reports the suite currently being negotiated
	// and whether one is known at all.
	CandidateCipher() (uint16, bool)
}

// OCSPStapler is implemented by engines that surface the stapled
// OCSP response received during the handshake.
type OCSPStapler interface {
	// StapledOCSP returns the raw DER response, or nil when the
	// peer did not staple one.
	StapledOCSP() []byte
}

// StateReporter is implemented by engines that can name the protocol
// machine's current state in a human-readable way.
type StateReporter interface {
	// HandshakeStateName describes how far the handshake has
	// progressed.
	HandshakeStateName() string
}

// SignatureReporter is implemented by engines that expose which
// signature scheme the peer used during the handshake.
type SignatureReporter interface {
	// PeerSignatureScheme reports the scheme name and whether the
	// engine recorded one.
	PeerSignatureScheme() (string, bool)
}

// Resumer is implemented by engines that can export and import
// session resumption state.
type Resumer interface {
	// ResumptionState exports the current session's pre-shared key
	// and whether one is available.
	ResumptionState() (mint.PreSharedKey, bool)

	// SetResumptionState seeds the engine with a previously
	// exported pre-shared key before the handshake starts.
	SetResumptionState(psk mint.PreSharedKey) error
}
