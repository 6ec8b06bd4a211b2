// Package certview produces caller-owned snapshots of certificates
// held by a connection. Returned certificates share no memory with
// the originals, so they stay valid after the connection is closed.
package certview

import "crypto/x509"

// Clone returns an independent copy of cert, or nil for nil input.
func Clone(cert *x509.Certificate) *x509.Certificate {
	if cert == nil {
		return nil
	}
	raw := make([]byte, len(cert.Raw))
	copy(raw, cert.Raw)
	// Reparsing is the only way to get a certificate with no
	// aliased internal slices. The DER came from a successful
	// parse, so this cannot fail.
	clone, err := x509.ParseCertificate(raw)
	if err != nil {
		panic("certview: reparsing a parsed certificate failed: " + err.Error())
	}
	return clone
}

// CloneChain returns an independent copy of chain, or nil for nil
// input. An empty non-nil chain stays empty and non-nil.
func CloneChain(chain []*x509.Certificate) []*x509.Certificate {
	if chain == nil {
		return nil
	}
	out := make([]*x509.Certificate, len(chain))
	for i, cert := range chain {
		out[i] = Clone(cert)
	}
	return out
}
