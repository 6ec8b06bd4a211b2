package tlsbio

import (
	"time"

	"github.com/bifurcation/mint"
	"github.com/ooni/tlsbio/internal/classify"
	"github.com/ooni/tlsbio/internal/engine"
)

// Session is an independently owned snapshot of resumption state. It
// remains valid after the connection it was read from is closed and
// may be installed into another connection created from a compatible
// Context to request a resumed handshake.
type Session struct {
	psk mint.PreSharedKey
}

// CipherSuiteID returns the wire identifier of the suite the session
// was negotiated with. A resumed handshake must use a compatible
// suite.
func (s *Session) CipherSuiteID() uint16 {
	return uint16(s.psk.CipherSuite)
}

// Expiry returns when the peer will stop honoring the session.
func (s *Session) Expiry() time.Time {
	return s.psk.ExpiresAt
}

func clonePSK(psk mint.PreSharedKey) mint.PreSharedKey {
	out := psk
	out.Identity = append([]byte(nil), psk.Identity...)
	out.Key = append([]byte(nil), psk.Key...)
	return out
}

// GetSession snapshots the connection's current resumption state. It
// returns nil without error when the peer has not issued one yet.
// Session tickets arrive after the handshake, so GetSession first
// lets the engine consume whatever records the caller has already
// fed to the network endpoint; a ticket still in flight needs
// another feed-and-retry round.
func (c *Conn) GetSession() (*Session, error) {
	if c.eng == nil {
		return nil, nil
	}
	resumer, ok := c.eng.(engine.Resumer)
	if !ok {
		return nil, ErrNotSupported
	}
	if c.state == stateEstablished || c.state == stateShuttingDown {
		c.fillRecvBuffer()
	}
	psk, have := resumer.ResumptionState()
	if !have {
		return nil, nil
	}
	return &Session{psk: clonePSK(psk)}, nil
}

// SetSession requests resumption of session on the next handshake.
// Valid only before the handshake starts. It fails with a protocol
// error when the session's parameters are incompatible with this
// connection's cipher policy.
func (c *Conn) SetSession(session *Session) error {
	if session == nil {
		return classify.NewInvalidArgument("nil session")
	}
	if c.state != stateUnconnected || c.eng != nil {
		return classify.NewInvalidArgument("session must be installed before the handshake")
	}
	if _, ok := cipherByID[uint16(session.psk.CipherSuite)]; !ok {
		return classify.NewProtocolError("session uses an unsupported cipher suite")
	}
	if len(c.ctx.suites) > 0 && !suiteEnabled(c.ctx.suites, session.psk.CipherSuite) {
		return classify.NewProtocolError("session cipher suite not enabled by the context")
	}
	c.pendingSess = &Session{psk: clonePSK(session.psk)}
	return nil
}

func suiteEnabled(suites []mint.CipherSuite, suite mint.CipherSuite) bool {
	for _, enabled := range suites {
		if enabled == suite {
			return true
		}
	}
	return false
}
