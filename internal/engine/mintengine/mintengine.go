// Package mintengine adapts the mint TLS 1.3 stack to the engine
// contract. The engine runs mint in nonblocking mode against the
// transport it is given, so a single Handshake, Read, or Write call
// never blocks on network I/O.
package mintengine

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"net"

	"github.com/bifurcation/mint"
	"github.com/ooni/tlsbio/internal/engine"
)

// Config configures a mint engine. The zero value is a client that
// verifies against the system roots.
type Config struct {
	// Client selects the client role when true, the server role
	// otherwise.
	Client bool

	// ServerName is the SNI value sent by a client and the lookup
	// key for its resumption state.
	ServerName string

	// RootCAs overrides the verification roots when non-nil.
	RootCAs *x509.CertPool

	// InsecureSkipVerify disables chain verification.
	InsecureSkipVerify bool

	// CipherSuites restricts the offered suites when non-empty.
	CipherSuites []mint.CipherSuite

	// Certificates holds the local certificate chains. Required
	// for servers.
	Certificates []*mint.Certificate

	// NextProtos lists the ALPN protocols to offer.
	NextProtos []string

	// AllowEarlyData permits 0-RTT data on resumed sessions.
	AllowEarlyData bool

	// SendSessionTickets makes a server emit a session ticket once
	// the handshake completes.
	SendSessionTickets bool

	// PSKs caches resumption state. Sharing the same cache across
	// engines lets later connections resume earlier sessions.
	PSKs *mint.PSKMapCache
}

// Engine drives a mint connection over the given transport.
type Engine struct {
	conn       *mint.Conn
	psks       *mint.PSKMapCache
	serverName string
	isClient   bool
}

var _ engine.Engine = &Engine{}
var _ engine.EarlyDataWriter = &Engine{}
var _ engine.CandidateCipherer = &Engine{}
var _ engine.Resumer = &Engine{}
var _ engine.StateReporter = &Engine{}

// New creates an engine speaking TLS over transport. The transport's
// Read must return (0, nil) rather than block when no data is
// available, which is how the engine learns it must yield.
func New(transport net.Conn, config Config) *Engine {
	psks := config.PSKs
	if psks == nil {
		cache := mint.PSKMapCache{}
		psks = &cache
	}
	mintConfig := &mint.Config{
		ServerName:         config.ServerName,
		RootCAs:            config.RootCAs,
		InsecureSkipVerify: config.InsecureSkipVerify,
		CipherSuites:       config.CipherSuites,
		Certificates:       config.Certificates,
		NextProtos:         config.NextProtos,
		AllowEarlyData:     config.AllowEarlyData,
		SendSessionTickets: config.SendSessionTickets,
		PSKs:               psks,
		NonBlocking:        true,
	}
	var conn *mint.Conn
	if config.Client {
		conn = mint.Client(transport, mintConfig)
	} else {
		conn = mint.Server(transport, mintConfig)
	}
	return &Engine{
		conn:       conn,
		psks:       psks,
		serverName: config.ServerName,
		isClient:   config.Client,
	}
}

// Handshake advances the protocol machine until it either completes,
// needs more data from the transport, or fails. Each advancement that
// yields no alert is a state transition, so the loop terminates.
func (e *Engine) Handshake() error {
	for {
		alert := e.conn.Handshake()
		if alert == mint.AlertNoAlert {
			if e.HandshakeDone() {
				return nil
			}
			continue
		}
		return alert
	}
}

// HandshakeStateName describes how far the handshake has progressed.
func (e *Engine) HandshakeStateName() string {
	if e.HandshakeDone() {
		return "handshake finished successfully"
	}
	if e.isClient {
		return "client handshake in progress"
	}
	return "server handshake in progress"
}

// HandshakeDone indicates whether the handshake has completed.
func (e *Engine) HandshakeDone() bool {
	state := e.conn.GetHsState()
	return state == mint.StateClientConnected || state == mint.StateServerConnected
}

// Read moves decrypted application data into b.
func (e *Engine) Read(b []byte) (int, error) {
	return e.conn.Read(b)
}

// Write encrypts b and queues it towards the transport.
func (e *Engine) Write(b []byte) (int, error) {
	return e.conn.Write(b)
}

// Close shuts the connection down and closes its transport endpoint.
// The underlying stack does not emit a close_notify alert here; the
// peer observes the close as an end of stream once the ciphertext
// already queued on the transport drains.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// Info reports what is currently known about the session. Before the
// handshake completes most fields are unset.
func (e *Engine) Info() engine.Info {
	state := e.conn.ConnectionState()
	info := engine.Info{
		Version:            mintVersionTLS13,
		NegotiatedProtocol: state.NextProto,
		PeerCertificates:   state.PeerCertificates,
		VerifiedChains:     state.VerifiedChains,
		Resumed:            state.UsingPSK,
		UsingEarlyData:     state.UsingEarlyData,
	}
	if e.HandshakeDone() {
		info.CipherSuite = uint16(state.CipherSuite.Suite)
		info.HaveCipherSuite = true
	}
	return info
}

// mint only speaks TLS 1.3.
const mintVersionTLS13 = 0x0304

// WriteEarlyData encrypts b under the early traffic keys. It fails
// with a would-block alert when the connection is not in a state
// where early data may be sent.
func (e *Engine) WriteEarlyData(b []byte) (int, error) {
	if !e.conn.Writable() {
		return 0, mint.AlertWouldBlock
	}
	return e.conn.Write(b)
}

// MaxEarlyData reports the early data limit advertised by the peer.
// The underlying stack does not surface the limit from the session
// ticket, so this is always zero.
func (e *Engine) MaxEarlyData() uint32 {
	return 0
}

// CandidateCipher reports the suite being negotiated. The underlying
// stack only exposes the suite once the handshake confirms it.
func (e *Engine) CandidateCipher() (uint16, bool) {
	if !e.HandshakeDone() {
		return 0, false
	}
	return uint16(e.conn.ConnectionState().CipherSuite.Suite), true
}

// ResumptionState exports the pre-shared key cached for this
// engine's peer, if the handshake produced one.
func (e *Engine) ResumptionState() (mint.PreSharedKey, bool) {
	if e.isClient {
		return e.psks.Get(e.serverName)
	}
	// Server-side tickets are keyed by their hex identity and there
	// may be several; exporting one is not meaningful.
	return mint.PreSharedKey{}, false
}

// SetResumptionState seeds the engine with a previously exported
// pre-shared key. Clients key it by server name, which must
// therefore be configured.
func (e *Engine) SetResumptionState(psk mint.PreSharedKey) error {
	if e.isClient {
		if e.serverName == "" {
			return errors.New("mintengine: resumption requires a server name")
		}
		e.psks.Put(e.serverName, psk)
		return nil
	}
	e.psks.Put(hex.EncodeToString(psk.Identity), psk)
	return nil
}
