// Package enginetest provides a scriptable engine for testing the
// code that drives an engine without involving a real TLS stack.
package enginetest

import (
	"github.com/bifurcation/mint"
	"github.com/ooni/tlsbio/internal/engine"
)

// Fake is a scripted engine. Each Handshake call pops the next entry
// from HandshakeOutcomes, and each Read call pops from ReadOutcomes.
// When a script runs out, the last outcome repeats. The zero value
// handshakes successfully on the first call and reads nothing.
type Fake struct {
	// HandshakeOutcomes are errors returned by successive
	// Handshake calls. A nil entry completes the handshake.
	HandshakeOutcomes []error

	// ReadOutcomes are returned by successive Read calls. Payload
	// is copied into the caller's buffer when Err is nil.
	ReadOutcomes []ReadOutcome

	// WriteErr, when non-nil, is returned by every Write call.
	WriteErr error

	// CloseErr is returned by Close.
	CloseErr error

	// InfoValue is returned by Info.
	InfoValue engine.Info

	// Candidate, when HaveCandidate is set, is reported by
	// CandidateCipher.
	Candidate     uint16
	HaveCandidate bool

	// OCSP is the raw stapled response reported by StapledOCSP.
	OCSP []byte

	// PSK and HavePSK back ResumptionState. SetResumptionState
	// overwrites them.
	PSK     mint.PreSharedKey
	HavePSK bool

	// MaxEarly is reported by MaxEarlyData.
	MaxEarly uint32

	// SignatureScheme and HaveSignature back PeerSignatureScheme.
	SignatureScheme string
	HaveSignature   bool

	// StateName is returned by HandshakeStateName.
	StateName string

	// EarlyWriteErr, when non-nil, is returned by WriteEarlyData.
	EarlyWriteErr error

	// Written accumulates all bytes passed to Write.
	Written []byte

	// EarlyWritten accumulates all bytes passed to WriteEarlyData.
	EarlyWritten []byte

	// CloseCalls counts Close invocations.
	CloseCalls int

	done          bool
	handshakeStep int
	readStep      int
}

// ReadOutcome is one scripted result of a Read call.
type ReadOutcome struct {
	Payload []byte
	Err     error
}

var _ engine.Engine = &Fake{}
var _ engine.EarlyDataWriter = &Fake{}
var _ engine.CandidateCipherer = &Fake{}
var _ engine.OCSPStapler = &Fake{}
var _ engine.Resumer = &Fake{}
var _ engine.SignatureReporter = &Fake{}
var _ engine.StateReporter = &Fake{}

// Handshake pops the next scripted outcome.
func (f *Fake) Handshake() error {
	err := popError(f.HandshakeOutcomes, &f.handshakeStep)
	if err == nil {
		f.done = true
	}
	return err
}

// HandshakeDone reports whether a Handshake call succeeded.
func (f *Fake) HandshakeDone() bool {
	return f.done
}

// Read pops the next scripted outcome and copies its payload into b.
func (f *Fake) Read(b []byte) (int, error) {
	if len(f.ReadOutcomes) == 0 {
		return 0, mint.AlertWouldBlock
	}
	step := f.readStep
	if step >= len(f.ReadOutcomes) {
		step = len(f.ReadOutcomes) - 1
	} else {
		f.readStep++
	}
	outcome := f.ReadOutcomes[step]
	if outcome.Err != nil {
		return 0, outcome.Err
	}
	n := copy(b, outcome.Payload)
	return n, nil
}

// Write records b and returns WriteErr.
func (f *Fake) Write(b []byte) (int, error) {
	if f.WriteErr != nil {
		return 0, f.WriteErr
	}
	f.Written = append(f.Written, b...)
	return len(b), nil
}

// Close counts the call and returns CloseErr.
func (f *Fake) Close() error {
	f.CloseCalls++
	return f.CloseErr
}

// Info returns the configured InfoValue.
func (f *Fake) Info() engine.Info {
	return f.InfoValue
}

// WriteEarlyData records b and returns EarlyWriteErr.
func (f *Fake) WriteEarlyData(b []byte) (int, error) {
	if f.EarlyWriteErr != nil {
		return 0, f.EarlyWriteErr
	}
	f.EarlyWritten = append(f.EarlyWritten, b...)
	return len(b), nil
}

// MaxEarlyData returns the configured limit.
func (f *Fake) MaxEarlyData() uint32 {
	return f.MaxEarly
}

// CandidateCipher returns the configured candidate.
func (f *Fake) CandidateCipher() (uint16, bool) {
	return f.Candidate, f.HaveCandidate
}

// StapledOCSP returns the configured raw response.
func (f *Fake) StapledOCSP() []byte {
	return f.OCSP
}

// HandshakeStateName returns the configured state name.
func (f *Fake) HandshakeStateName() string {
	return f.StateName
}

// PeerSignatureScheme returns the configured scheme.
func (f *Fake) PeerSignatureScheme() (string, bool) {
	return f.SignatureScheme, f.HaveSignature
}

// ResumptionState returns the configured pre-shared key.
func (f *Fake) ResumptionState() (mint.PreSharedKey, bool) {
	return f.PSK, f.HavePSK
}

// SetResumptionState stores the pre-shared key.
func (f *Fake) SetResumptionState(psk mint.PreSharedKey) error {
	f.PSK = psk
	f.HavePSK = true
	return nil
}

func popError(script []error, step *int) error {
	if len(script) == 0 {
		return nil
	}
	idx := *step
	if idx >= len(script) {
		idx = len(script) - 1
	} else {
		*step++
	}
	return script[idx]
}
