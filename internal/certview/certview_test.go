package certview

import (
	"crypto/x509"
	"testing"

	"github.com/bifurcation/mint"
)

func makeCert(t *testing.T) *x509.Certificate {
	t.Helper()
	_, cert, err := mint.MakeNewSelfSignedCert("example.org", mint.ECDSA_P256_SHA256)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestCloneWithNil(t *testing.T) {
	if Clone(nil) != nil {
		t.Fatal("expected nil")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cert := makeCert(t)
	clone := Clone(cert)
	if clone == cert {
		t.Fatal("expected a distinct certificate")
	}
	if &clone.Raw[0] == &cert.Raw[0] {
		t.Fatal("expected the DER to be copied")
	}
	if !clone.Equal(cert) {
		t.Fatal("expected an equal certificate")
	}
	if clone.Subject.CommonName != cert.Subject.CommonName {
		t.Fatal("subject mismatch")
	}
}

func TestCloneChain(t *testing.T) {
	t.Run("nil chain", func(t *testing.T) {
		if CloneChain(nil) != nil {
			t.Fatal("expected nil")
		}
	})
	t.Run("empty chain", func(t *testing.T) {
		chain := CloneChain([]*x509.Certificate{})
		if chain == nil || len(chain) != 0 {
			t.Fatal("expected an empty non-nil chain")
		}
	})
	t.Run("full chain", func(t *testing.T) {
		orig := []*x509.Certificate{makeCert(t), makeCert(t)}
		chain := CloneChain(orig)
		if len(chain) != 2 {
			t.Fatal("unexpected chain length")
		}
		for i := range chain {
			if chain[i] == orig[i] {
				t.Fatal("expected distinct certificates")
			}
			if !chain[i].Equal(orig[i]) {
				t.Fatal("expected equal certificates")
			}
		}
	})
}
