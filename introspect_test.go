package tlsbio

import (
	"crypto/x509"
	"errors"
	"net"
	"testing"

	"github.com/bifurcation/mint"
	"github.com/ooni/tlsbio/internal/engine"
	"github.com/ooni/tlsbio/internal/engine/enginetest"
	"github.com/ooni/tlsbio/internal/engine/mintengine"
)

func makeCert(t *testing.T, name string) *x509.Certificate {
	t.Helper()
	_, cert, err := mint.MakeNewSelfSignedCert(name, mint.ECDSA_P256_SHA256)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestPeerCertificate(t *testing.T) {
	t.Run("before handshake", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		var invalidErr *InvalidArgumentError
		if _, err := tc.conn.PeerCertificate(); !errors.As(err, &invalidErr) {
			t.Fatal("not the error we expected")
		}
	})
	t.Run("anonymous peer", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		cert, err := tc.conn.PeerCertificate()
		if err != nil {
			t.Fatal(err)
		}
		if cert != nil {
			t.Fatal("expected nil certificate")
		}
	})
	t.Run("with peer certificate", func(t *testing.T) {
		orig := makeCert(t, "peer.example.org")
		tc := newFakeConn(t, &enginetest.Fake{
			InfoValue: engine.Info{
				PeerCertificates: []*x509.Certificate{orig},
			},
		})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		cert, err := tc.conn.PeerCertificate()
		if err != nil {
			t.Fatal(err)
		}
		if cert == orig {
			t.Fatal("expected an independent copy")
		}
		if !cert.Equal(orig) {
			t.Fatal("expected an equal certificate")
		}
	})
}

func TestPeerCertificateChain(t *testing.T) {
	t.Run("no chain at all", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		var protoErr *ProtocolError
		if _, err := tc.conn.PeerCertificateChain(); !errors.As(err, &protoErr) {
			t.Fatal("not the error we expected")
		}
	})
	t.Run("empty chain is not an error", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{
			InfoValue: engine.Info{
				PeerCertificates: []*x509.Certificate{},
			},
		})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		chain, err := tc.conn.PeerCertificateChain()
		if err != nil {
			t.Fatal(err)
		}
		if chain == nil || len(chain) != 0 {
			t.Fatal("expected an empty non-nil chain")
		}
	})
	t.Run("chain survives close", func(t *testing.T) {
		orig := makeCert(t, "peer.example.org")
		tc := newFakeConn(t, &enginetest.Fake{
			InfoValue: engine.Info{
				PeerCertificates: []*x509.Certificate{orig},
			},
		})
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		chain, err := tc.conn.PeerCertificateChain()
		if err != nil {
			t.Fatal(err)
		}
		if err := tc.conn.Close(); err != nil {
			t.Fatal(err)
		}
		if len(chain) != 1 || !chain[0].Equal(orig) {
			t.Fatal("chain must stay valid after close")
		}
	})
}

func TestStapledOCSPResponse(t *testing.T) {
	t.Run("engine without the capability", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		factory := tc.ctx.factory
		tc.ctx.factory = func(transport net.Conn, config mintengine.Config) engine.Engine {
			return &bareEngine{factory(transport, config)}
		}
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		view, err := tc.conn.StapledOCSPResponse()
		if view != nil || err != nil {
			t.Fatal("expected nil view and nil error")
		}
	})
	t.Run("nothing stapled", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		view, err := tc.conn.StapledOCSPResponse()
		if view != nil || err != nil {
			t.Fatal("expected nil view and nil error")
		}
	})
	t.Run("malformed bytes are an error", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{OCSP: []byte("junk")})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		view, err := tc.conn.StapledOCSPResponse()
		if view != nil {
			t.Fatal("expected nil view")
		}
		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) {
			t.Fatal("not the error we expected")
		}
	})
}

// bareEngine hides every optional capability of the engine it wraps.
type bareEngine struct {
	engine.Engine
}

func TestHandshakeStateString(t *testing.T) {
	t.Run("lifecycle", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{
			StateName: "handshake finished successfully",
		})
		defer tc.conn.Close()
		if tc.conn.HandshakeStateString() != "before handshake initialization" {
			t.Fatal("unexpected state string")
		}
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		if tc.conn.HandshakeStateString() != "handshake finished successfully" {
			t.Fatal("unexpected state string")
		}
		if _, err := tc.conn.Shutdown(); err != nil {
			t.Fatal(err)
		}
		if tc.conn.HandshakeStateString() != "connection closed" {
			t.Fatal("unexpected state string")
		}
	})
	t.Run("engine without the capability", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		factory := tc.ctx.factory
		tc.ctx.factory = func(transport net.Conn, config mintengine.Config) engine.Engine {
			return &bareEngine{factory(transport, config)}
		}
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		if tc.conn.HandshakeStateString() != "handshake finished successfully" {
			t.Fatal("unexpected state string")
		}
	})
}

func TestCipherIntrospection(t *testing.T) {
	t.Run("before any negotiation", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		if tc.conn.CurrentCipherName() != "" {
			t.Fatal("expected empty name")
		}
		if tc.conn.CipherBits() != 0 {
			t.Fatal("expected zero bits")
		}
		if _, ok := tc.conn.CipherProtocolID(); ok {
			t.Fatal("expected no protocol ID")
		}
	})
	t.Run("candidate during handshake", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{
			HandshakeOutcomes: []error{mint.AlertWouldBlock},
			Candidate:         0x1302,
			HaveCandidate:     true,
		})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != ErrWantRead {
			t.Fatal("not the error we expected")
		}
		if tc.conn.CurrentCipherName() != "TLS_AES_256_GCM_SHA384" {
			t.Fatal("unexpected cipher name")
		}
		if tc.conn.CipherBits() != 256 {
			t.Fatal("unexpected bits")
		}
	})
	t.Run("committed after handshake", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{
			InfoValue: engine.Info{
				CipherSuite:     0x1301,
				HaveCipherSuite: true,
				Version:         0x0304,
			},
		})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		if tc.conn.CurrentCipherName() != "TLS_AES_128_GCM_SHA256" {
			t.Fatal("unexpected cipher name")
		}
		id, ok := tc.conn.CipherProtocolID()
		if !ok || id != 0x1301 {
			t.Fatal("unexpected protocol ID")
		}
	})
}

func TestVersionIntrospection(t *testing.T) {
	tc := newFakeConn(t, &enginetest.Fake{
		InfoValue: engine.Info{Version: 0x0304},
	})
	defer tc.conn.Close()
	if _, ok := tc.conn.NegotiatedVersion(); ok {
		t.Fatal("expected no version before the handshake")
	}
	if tc.conn.NegotiatedVersionString() != "" {
		t.Fatal("expected empty version string")
	}
	if err := tc.conn.DoHandshake(); err != nil {
		t.Fatal(err)
	}
	version, ok := tc.conn.NegotiatedVersion()
	if !ok || version != 0x0304 {
		t.Fatal("unexpected version")
	}
	if tc.conn.NegotiatedVersionString() != "TLSv1.3" {
		t.Fatal("unexpected version string")
	}
}

func TestMiscIntrospection(t *testing.T) {
	tc := newFakeConn(t, &enginetest.Fake{
		InfoValue:       engine.Info{NegotiatedProtocol: "h2", Resumed: true},
		SignatureScheme: "ecdsa_secp256r1_sha256",
		HaveSignature:   true,
	})
	defer tc.conn.Close()
	if tc.conn.SecureRenegotiationSupport() {
		t.Fatal("expected false before the handshake")
	}
	if err := tc.conn.DoHandshake(); err != nil {
		t.Fatal(err)
	}
	if tc.conn.NegotiatedProtocol() != "h2" {
		t.Fatal("unexpected ALPN protocol")
	}
	if !tc.conn.Resumed() {
		t.Fatal("expected a resumed session")
	}
	if !tc.conn.SecureRenegotiationSupport() {
		t.Fatal("expected true once established")
	}
	if tc.conn.CurrentCompressionMethod() != "" {
		t.Fatal("expected no compression")
	}
	if AvailableCompressionMethods() != nil {
		t.Fatal("expected no compression methods")
	}
	var protoErr *ProtocolError
	if !errors.As(tc.conn.Renegotiate(), &protoErr) {
		t.Fatal("not the error we expected")
	}
	scheme, ok := tc.conn.PeerSignatureScheme()
	if !ok || scheme != "ecdsa_secp256r1_sha256" {
		t.Fatal("unexpected signature scheme")
	}
}
