package tlsbio

import (
	"crypto/x509"

	"golang.org/x/crypto/ocsp"

	"github.com/ooni/tlsbio/internal/certview"
	"github.com/ooni/tlsbio/internal/classify"
	"github.com/ooni/tlsbio/internal/engine"
	"github.com/ooni/tlsbio/internal/ocspx"
)

// negotiated indicates whether a handshake has completed on this
// connection, regardless of later shutdown progress.
func (c *Conn) negotiated() bool {
	return c.eng != nil && c.eng.HandshakeDone()
}

// PeerCertificate returns an independently owned copy of the peer's
// leaf certificate, or nil when the peer presented none.
func (c *Conn) PeerCertificate() (*x509.Certificate, error) {
	if !c.negotiated() {
		return nil, classify.NewInvalidArgument("handshake not completed")
	}
	certs := c.eng.Info().PeerCertificates
	if len(certs) == 0 {
		return nil, nil
	}
	return certview.Clone(certs[0]), nil
}

// PeerCertificateChain returns independently owned copies of the
// peer's certificate chain, leaf first. It fails with a protocol
// error when no chain is available at all, which is distinct from an
// empty chain.
func (c *Conn) PeerCertificateChain() ([]*x509.Certificate, error) {
	if !c.negotiated() {
		return nil, classify.NewInvalidArgument("handshake not completed")
	}
	certs := c.eng.Info().PeerCertificates
	if certs == nil {
		return nil, classify.NewProtocolError("no certificate chain available")
	}
	return certview.CloneChain(certs), nil
}

// VerifiedChains returns independently owned copies of the validated
// chains built from the peer's certificates, or nil when
// verification was disabled or did not run.
func (c *Conn) VerifiedChains() ([][]*x509.Certificate, error) {
	if !c.negotiated() {
		return nil, classify.NewInvalidArgument("handshake not completed")
	}
	chains := c.eng.Info().VerifiedChains
	if chains == nil {
		return nil, nil
	}
	out := make([][]*x509.Certificate, len(chains))
	for i, chain := range chains {
		out[i] = certview.CloneChain(chain)
	}
	return out, nil
}

// VerifyResult reports the engine's verification verdict. It returns
// nil when verification succeeded or was disabled and a protocol
// error when the peer presented a chain that did not verify.
func (c *Conn) VerifyResult() error {
	if !c.negotiated() {
		return classify.NewInvalidArgument("handshake not completed")
	}
	if c.verifyMode == VerifyNone || c.ctx.config.InsecureSkipVerify {
		return nil
	}
	info := c.eng.Info()
	if len(info.PeerCertificates) > 0 && info.VerifiedChains == nil {
		return classify.NewProtocolError("certificate verify failed")
	}
	if len(info.PeerCertificates) == 0 && c.verifyMode == VerifyFailIfNoPeerCert {
		return classify.NewProtocolError("peer did not present a certificate")
	}
	return nil
}

// OCSPView is a parsed stapled OCSP response together with an
// independently owned snapshot of the peer chain observed when the
// response was received.
type OCSPView struct {
	// Response is the parsed OCSP response.
	Response *ocsp.Response

	// PeerChain is the peer certificate chain, leaf first.
	PeerChain []*x509.Certificate
}

// StapledOCSPResponse returns the OCSP response the peer stapled
// during the handshake. It returns nil without error when the peer
// stapled nothing or the engine lacks the capability, and fails when
// bytes were present but malformed.
func (c *Conn) StapledOCSPResponse() (*OCSPView, error) {
	stapler, ok := c.eng.(engine.OCSPStapler)
	if !ok {
		return nil, nil
	}
	raw := stapler.StapledOCSP()
	if raw == nil {
		return nil, nil
	}
	response, err := ocspx.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &OCSPView{
		Response:  response,
		PeerChain: certview.CloneChain(c.eng.Info().PeerCertificates),
	}, nil
}

// currentCipher resolves the cipher to report: the candidate under
// negotiation when the engine exposes one, the committed cipher
// otherwise.
func (c *Conn) currentCipher() (CipherDescription, bool) {
	if c.eng == nil {
		return CipherDescription{}, false
	}
	if candidater, ok := c.eng.(engine.CandidateCipherer); ok {
		if id, have := candidater.CandidateCipher(); have {
			if descr, found := cipherByID[id]; found {
				return descr, true
			}
		}
	}
	info := c.eng.Info()
	if info.HaveCipherSuite {
		if descr, found := cipherByID[info.CipherSuite]; found {
			return descr, true
		}
	}
	return CipherDescription{}, false
}

// CurrentCipherName returns the name of the current or candidate
// cipher, or an empty string before any negotiation.
func (c *Conn) CurrentCipherName() string {
	descr, ok := c.currentCipher()
	if !ok {
		return ""
	}
	return descr.Name
}

// CipherBits returns the strength of the current or candidate
// cipher, or zero before any negotiation.
func (c *Conn) CipherBits() int {
	descr, ok := c.currentCipher()
	if !ok {
		return 0
	}
	return descr.Bits
}

// CipherProtocolID returns the wire identifier of the current or
// candidate cipher and whether one is known.
func (c *Conn) CipherProtocolID() (uint16, bool) {
	descr, ok := c.currentCipher()
	if !ok {
		return 0, false
	}
	return descr.ProtocolID, true
}

var versionString = map[uint16]string{
	0x0301: "TLSv1",
	0x0302: "TLSv1.1",
	0x0303: "TLSv1.2",
	0x0304: "TLSv1.3",
}

// NegotiatedVersion returns the negotiated protocol version
// identifier and whether the handshake has completed.
func (c *Conn) NegotiatedVersion() (uint16, bool) {
	if !c.negotiated() {
		return 0, false
	}
	return c.eng.Info().Version, true
}

// NegotiatedVersionString returns the negotiated protocol version as
// a human-readable string, or an empty string before completion.
func (c *Conn) NegotiatedVersionString() string {
	version, ok := c.NegotiatedVersion()
	if !ok {
		return ""
	}
	return versionString[version]
}

// HandshakeStateString describes where the connection is in its
// lifecycle in a human-readable way, preferring the engine's own
// description of its handshake progress when it offers one.
func (c *Conn) HandshakeStateString() string {
	switch c.state {
	case stateUnconnected:
		return "before handshake initialization"
	case stateFaulted:
		return "fatal error"
	case stateShuttingDown, stateClosed:
		return "connection closed"
	}
	if reporter, ok := c.eng.(engine.StateReporter); ok {
		return reporter.HandshakeStateName()
	}
	if c.eng.HandshakeDone() {
		return "handshake finished successfully"
	}
	return "handshake in progress"
}

// NegotiatedProtocol returns the application protocol selected via
// ALPN, or an empty string when none was negotiated.
func (c *Conn) NegotiatedProtocol() string {
	if !c.negotiated() {
		return ""
	}
	return c.eng.Info().NegotiatedProtocol
}

// Resumed reports whether the handshake used a pre-shared key from
// an earlier session rather than a full key exchange.
func (c *Conn) Resumed() bool {
	return c.negotiated() && c.eng.Info().Resumed
}

// SecureRenegotiationSupport reports whether the peer supports
// secure renegotiation. TLS 1.3 removed renegotiation entirely, so
// this is true on every established connection.
func (c *Conn) SecureRenegotiationSupport() bool {
	return c.negotiated()
}

// Renegotiate requests a new handshake on an established connection.
// TLS 1.3 has no renegotiation, so this always fails.
func (c *Conn) Renegotiate() error {
	return classify.NewProtocolError("renegotiation is not available in TLS 1.3")
}

// CurrentCompressionMethod returns the negotiated compression
// method. TLS record compression is never negotiated, so this is
// always empty.
func (c *Conn) CurrentCompressionMethod() string {
	return ""
}

// AvailableCompressionMethods returns the compression methods this
// package can negotiate, which is none.
func AvailableCompressionMethods() []string {
	return nil
}

// PeerSignatureScheme reports the signature scheme the peer used in
// the handshake, when the engine records it. This is a best-effort
// capability and absence does not signal an error.
func (c *Conn) PeerSignatureScheme() (string, bool) {
	reporter, ok := c.eng.(engine.SignatureReporter)
	if !ok {
		return "", false
	}
	return reporter.PeerSignatureScheme()
}
