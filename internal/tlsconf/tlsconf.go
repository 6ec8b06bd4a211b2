// Package tlsconf helps with configuring TLS
package tlsconf

import (
	"crypto/x509"
	"errors"
	"io/ioutil"
)

// LoadCABundle reads a PEM bundle from path and returns the
// resulting certificate pool.
func LoadCABundle(path string) (*x509.CertPool, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.New("tlsconf: no certificates in bundle")
	}
	return pool, nil
}
