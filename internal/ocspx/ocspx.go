// Package ocspx parses stapled OCSP responses.
package ocspx

import (
	"golang.org/x/crypto/ocsp"

	"github.com/ooni/tlsbio/internal/classify"
)

// Response statuses as reported by Parse.
const (
	StatusGood    = ocsp.Good
	StatusRevoked = ocsp.Revoked
	StatusUnknown = ocsp.Unknown
)

// Parse decodes a raw DER OCSP response. A malformed response yields
// a protocol error rather than a partially decoded structure.
func Parse(raw []byte) (*ocsp.Response, error) {
	response, err := ocsp.ParseResponse(raw, nil)
	if err != nil {
		return nil, classify.NewProtocolError("cannot decode OCSP response: " + err.Error())
	}
	return response, nil
}
