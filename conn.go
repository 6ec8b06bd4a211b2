package tlsbio

import (
	"bytes"
	"sync/atomic"
	"time"

	"github.com/ooni/tlsbio/handlers"
	"github.com/ooni/tlsbio/internal/classify"
	"github.com/ooni/tlsbio/internal/engine"
	"github.com/ooni/tlsbio/internal/engine/mintengine"
	"github.com/ooni/tlsbio/membio"
	"github.com/ooni/tlsbio/model"
)

// VerifyMode selects how a connection verifies its peer.
type VerifyMode int

// The supported verification modes. VerifyClientOnce only verifies
// the client during the initial handshake, which in TLS 1.3 is the
// only handshake there is.
const (
	VerifyNone VerifyMode = iota
	VerifyPeer
	VerifyFailIfNoPeerCert
	VerifyClientOnce
)

// ConnOptions are the per-connection options.
type ConnOptions struct {
	// ServerName is the SNI value sent by a client and the key
	// under which its resumption state is cached.
	ServerName string

	// VerifyMode selects peer verification. The zero value is
	// VerifyNone.
	VerifyMode VerifyMode

	// RequestOCSP asks the peer to staple an OCSP response.
	RequestOCSP bool

	// Handler receives measurement events. Nil discards them.
	Handler model.Handler
}

type connState int

const (
	stateUnconnected connState = iota
	stateHandshaking
	stateEstablished
	stateShuttingDown
	stateClosed
	stateFaulted
)

// Conn is a TLS connection performing its I/O over an in-memory
// endpoint. The zero value is not usable; create connections with
// NewConn. A Conn is not safe for concurrent use.
type Conn struct {
	beginning    time.Time
	closed       bool
	connID       int64
	ctx          *Context
	earlyWrote   bool
	eng          engine.Engine
	engClosed    bool
	handler      model.Handler
	internalEP   *membio.Endpoint
	isClient     bool
	networkEP    *membio.Endpoint
	peerClosed   bool
	pendingSess  *Session
	readErr      error
	recvBuf      bytes.Buffer
	requestOCSP  bool
	serverName   string
	shutdownSent bool
	state        connState
	verifyMode   VerifyMode
}

var nextConnID int64

// NewConn creates a connection bound to ctx. The connection holds a
// reference to ctx until Close.
func NewConn(ctx *Context, options ConnOptions) (*Conn, error) {
	if options.VerifyMode < VerifyNone || options.VerifyMode > VerifyClientOnce {
		return nil, classify.NewInvalidArgument("unknown verify mode")
	}
	if err := ctx.acquire(); err != nil {
		return nil, err
	}
	handler := options.Handler
	if handler == nil {
		handler = handlers.NoHandler
	}
	return &Conn{
		beginning:   ctx.beginning,
		connID:      atomic.AddInt64(&nextConnID, 1),
		ctx:         ctx,
		handler:     handler,
		isClient:    true,
		requestOCSP: options.RequestOCSP,
		serverName:  options.ServerName,
		verifyMode:  options.VerifyMode,
	}, nil
}

// SetClientMode makes the connection initiate the handshake. This is
// the default role. Valid only before the handshake starts.
func (c *Conn) SetClientMode() error {
	return c.setRole(true)
}

// SetServerMode makes the connection respond to a handshake. Valid
// only before the handshake starts.
func (c *Conn) SetServerMode() error {
	return c.setRole(false)
}

func (c *Conn) setRole(isClient bool) error {
	if c.state != stateUnconnected || c.eng != nil {
		return classify.NewInvalidArgument("role can only change before the handshake")
	}
	c.isClient = isClient
	return nil
}

// AttachInternalEndpoint binds the connection's I/O to endpoint. It
// must be called before the handshake starts. Attaching twice
// replaces the prior binding without releasing it; the prior
// endpoint remains the caller's to release.
func (c *Conn) AttachInternalEndpoint(endpoint *membio.Endpoint) error {
	if c.state != stateUnconnected || c.eng != nil {
		return classify.NewInvalidArgument("endpoint can only be attached before the handshake")
	}
	c.internalEP = endpoint
	return nil
}

// AdoptNetworkEndpoint records endpoint for release when the
// connection is closed. It does not affect I/O. The caller must not
// release an adopted endpoint itself. At most one endpoint can be
// adopted over a connection's lifetime.
func (c *Conn) AdoptNetworkEndpoint(endpoint *membio.Endpoint) error {
	if c.closed {
		return classify.NewInvalidArgument("connection is closed")
	}
	if c.networkEP != nil {
		return classify.NewInvalidArgument("network endpoint already adopted")
	}
	c.networkEP = endpoint
	return nil
}

// ensureEngine builds the engine on the first operation that needs
// it. From then on the role, the endpoint binding, and any pending
// session are committed.
func (c *Conn) ensureEngine() error {
	if c.eng != nil {
		return nil
	}
	if c.internalEP == nil {
		return classify.NewInvalidArgument("no internal endpoint attached")
	}
	eng := c.ctx.factory(c.internalEP, mintengine.Config{
		Client:             c.isClient,
		ServerName:         c.serverName,
		RootCAs:            c.ctx.config.RootCAs,
		InsecureSkipVerify: c.ctx.config.InsecureSkipVerify || c.verifyMode == VerifyNone,
		CipherSuites:       c.ctx.suites,
		Certificates:       c.ctx.mintCerts,
		NextProtos:         c.ctx.config.NextProtos,
		AllowEarlyData:     c.ctx.config.AllowEarlyData,
		SendSessionTickets: c.ctx.config.SendSessionTickets,
		PSKs:               c.ctx.ticketPSKs,
	})
	if eng == nil {
		return &classify.AllocationError{Resource: "TLS engine"}
	}
	if c.pendingSess != nil {
		resumer, ok := eng.(engine.Resumer)
		if !ok {
			return ErrNotSupported
		}
		if err := resumer.SetResumptionState(c.pendingSess.psk); err != nil {
			return classify.NewProtocolError("cannot install session: " + err.Error())
		}
	}
	c.eng = eng
	return nil
}

// DoHandshake advances the handshake. It returns nil once the
// handshake is complete, ErrWantRead or ErrWantWrite when the caller
// must first feed or drain the network endpoint, and a fatal error
// otherwise. Calling it again after completion is a no-op.
func (c *Conn) DoHandshake() error {
	switch c.state {
	case stateUnconnected, stateHandshaking:
	case stateEstablished:
		return nil
	default:
		return classify.NewInvalidArgument("handshake not valid in this state")
	}
	if err := c.ensureEngine(); err != nil {
		return err
	}
	c.state = stateHandshaking
	start := time.Now()
	err := classify.Do(classify.OpHandshake, c.eng.Handshake())
	if err == ErrZeroReturn {
		// The peer tore the connection down mid-handshake.
		err = classify.NewProtocolError("connection closed during handshake")
	}
	c.emit(model.Measurement{Handshake: &model.HandshakeEvent{
		ConnID:   c.connID,
		Duration: time.Since(start),
		Error:    err,
		Time:     c.elapsed(),
	}})
	if err == nil {
		c.state = stateEstablished
		c.emitNegotiated()
		return nil
	}
	if err == ErrWantRead || err == ErrWantWrite {
		return err
	}
	c.state = stateFaulted
	return err
}

// Read returns up to maxLength bytes of decrypted application data.
// ErrWantRead means the caller must supply more ciphertext on the
// network endpoint and retry. ErrZeroReturn means the peer performed
// a clean close and no further data will arrive.
func (c *Conn) Read(maxLength int) ([]byte, error) {
	if maxLength <= 0 {
		return nil, classify.NewInvalidArgument("read length must be positive")
	}
	switch c.state {
	case stateEstablished, stateShuttingDown:
	case stateClosed:
		if c.peerClosed {
			return nil, ErrZeroReturn
		}
		return nil, classify.NewInvalidArgument("read not valid in this state")
	default:
		return nil, classify.NewInvalidArgument("read not valid in this state")
	}
	start := time.Now()
	data, err := c.doRead(maxLength)
	c.emit(model.Measurement{Read: &model.ReadEvent{
		ConnID:   c.connID,
		Duration: time.Since(start),
		Error:    err,
		NumBytes: int64(len(data)),
		Time:     c.elapsed(),
	}})
	return data, err
}

func (c *Conn) doRead(maxLength int) ([]byte, error) {
	if c.recvBuf.Len() > 0 {
		return c.recvBuf.Next(maxLength), nil
	}
	if c.peerClosed {
		return nil, ErrZeroReturn
	}
	if c.readErr != nil {
		return nil, c.promoteReadErr()
	}
	buffer := make([]byte, maxLength)
	count, rawErr := c.eng.Read(buffer)
	err := classify.Do(classify.OpRead, rawErr)
	if err == ErrZeroReturn {
		c.peerClosed = true
		c.state = stateClosed
		return nil, ErrZeroReturn
	}
	if err != nil {
		if err != ErrWantRead && err != ErrWantWrite {
			c.state = stateFaulted
		}
		return nil, err
	}
	if count == 0 {
		return nil, ErrWantRead
	}
	return buffer[:count], nil
}

// Write encrypts data and queues it towards the internal endpoint.
// It returns the number of bytes consumed, which may be less than
// len(data); the caller must resubmit the remainder. ErrWantWrite
// means the caller must drain the network endpoint first.
func (c *Conn) Write(data []byte) (int, error) {
	if c.state != stateEstablished {
		return 0, classify.NewInvalidArgument("write not valid in this state")
	}
	start := time.Now()
	count, rawErr := c.eng.Write(data)
	err := classify.Do(classify.OpWrite, rawErr)
	if err != nil && err != ErrWantRead && err != ErrWantWrite {
		c.state = stateFaulted
	}
	c.emit(model.Measurement{Write: &model.WriteEvent{
		ConnID:   c.connID,
		Duration: time.Since(start),
		Error:    err,
		NumBytes: int64(count),
		Time:     c.elapsed(),
	}})
	return count, err
}

// Pending returns how many already-decrypted bytes a Read would
// return without any further network I/O.
func (c *Conn) Pending() int {
	if c.state == stateEstablished || c.state == stateShuttingDown {
		c.fillRecvBuffer()
	}
	return c.recvBuf.Len()
}

// fillRecvBuffer moves whatever decrypted data the engine already
// holds into the receive buffer. Reading ahead may also consume the
// record carrying a fatal condition, so that condition is recorded
// and surfaced by the next Read once the buffered data before it has
// been served.
func (c *Conn) fillRecvBuffer() {
	if c.readErr != nil {
		return
	}
	for {
		buffer := make([]byte, 4096)
		count, rawErr := c.eng.Read(buffer)
		if count > 0 {
			c.recvBuf.Write(buffer[:count])
		}
		if rawErr != nil {
			err := classify.Do(classify.OpRead, rawErr)
			if err != ErrWantRead && err != ErrWantWrite {
				c.readErr = err
			}
			return
		}
		if count <= 0 {
			return
		}
	}
}

// promoteReadErr surfaces a condition recorded while reading ahead.
func (c *Conn) promoteReadErr() error {
	if c.readErr == ErrZeroReturn {
		c.peerClosed = true
		c.state = stateClosed
		return ErrZeroReturn
	}
	c.state = stateFaulted
	return c.readErr
}

// ShutdownResult reports how far the TLS-level shutdown has
// progressed.
type ShutdownResult int

const (
	// ShutdownSent means we ended our side of the session but the
	// peer's end of stream has not been observed yet.
	ShutdownSent ShutdownResult = iota

	// ShutdownComplete means the shutdown is fully complete.
	ShutdownComplete
)

// Shutdown ends the TLS session. The first call shuts the engine
// down, which closes the internal endpoint; ciphertext already queued
// stays readable from the network endpoint and is followed by end of
// stream, which is how the peer observes the clean close. The first
// call reports ShutdownSent unless the peer's close was already
// observed. Shutdown is idempotent: a second call reports
// ShutdownComplete without doing anything further.
func (c *Conn) Shutdown() (ShutdownResult, error) {
	switch c.state {
	case stateEstablished, stateFaulted, stateShuttingDown, stateClosed:
	default:
		return 0, classify.NewInvalidArgument("shutdown not valid in this state")
	}
	start := time.Now()
	result := ShutdownComplete
	var err error
	if !c.shutdownSent && c.state != stateClosed {
		if c.eng != nil && !c.engClosed {
			err = classify.Do(classify.OpShutdown, c.eng.Close())
			c.engClosed = true
			if err == ErrZeroReturn {
				err = nil
			}
		}
		c.shutdownSent = true
		switch {
		case err != nil:
			c.state = stateFaulted
		case c.peerClosed:
			c.state = stateClosed
		default:
			result = ShutdownSent
			c.state = stateShuttingDown
		}
	} else {
		c.shutdownSent = true
		c.state = stateClosed
	}
	c.emit(model.Measurement{Shutdown: &model.ShutdownEvent{
		Complete: result == ShutdownComplete && err == nil,
		ConnID:   c.connID,
		Duration: time.Since(start),
		Error:    err,
		Time:     c.elapsed(),
	}})
	return result, err
}

// Close releases everything the connection owns: the adopted network
// endpoint if any, then the engine together with the internal
// endpoint, then the Context reference. It is idempotent and
// tolerates partially constructed connections.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	start := time.Now()
	var err error
	if c.networkEP != nil {
		err = c.networkEP.Close()
	}
	if !c.engClosed {
		c.engClosed = true
		var closeErr error
		if c.eng != nil {
			closeErr = c.eng.Close()
		} else if c.internalEP != nil {
			closeErr = c.internalEP.Close()
		}
		if err == nil {
			err = closeErr
		}
	}
	c.state = stateClosed
	c.ctx.release()
	c.emit(model.Measurement{Close: &model.CloseEvent{
		ConnID:   c.connID,
		Duration: time.Since(start),
		Error:    err,
		Time:     c.elapsed(),
	}})
	return err
}

func (c *Conn) emit(m model.Measurement) {
	c.handler.OnMeasurement(m)
}

func (c *Conn) elapsed() time.Duration {
	return time.Since(c.beginning)
}

func (c *Conn) emitNegotiated() {
	info := c.eng.Info()
	state := model.ConnectionState{
		CipherSuite:        info.CipherSuite,
		NegotiatedProtocol: info.NegotiatedProtocol,
		Resumed:            info.Resumed,
		Version:            info.Version,
	}
	for _, cert := range info.PeerCertificates {
		der := make([]byte, len(cert.Raw))
		copy(der, cert.Raw)
		state.PeerCertificates = append(state.PeerCertificates, model.X509Certificate{Data: der})
	}
	c.emit(model.Measurement{Negotiated: &model.NegotiatedEvent{
		ConnID:          c.connID,
		ConnectionState: state,
		ServerName:      c.serverName,
		Time:            c.elapsed(),
	}})
}
