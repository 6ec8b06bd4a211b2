package tlsbio

import (
	"github.com/ooni/tlsbio/internal/classify"
	"github.com/ooni/tlsbio/internal/engine"
)

// EarlyDataStatus describes the fate of early data on a connection.
type EarlyDataStatus int

const (
	// EarlyDataNotSent means no early data was written.
	EarlyDataNotSent EarlyDataStatus = iota

	// EarlyDataRejected means early data was written but the peer
	// has not accepted it. Before the handshake completes this is
	// provisional and may still become EarlyDataAccepted.
	EarlyDataRejected

	// EarlyDataAccepted means the peer accepted the early data.
	EarlyDataAccepted
)

// WriteEarlyData sends 0-RTT application data before the handshake
// completes. It requires a resumable session installed with
// SetSession and an engine with the early data capability, and
// returns how many bytes were accepted.
func (c *Conn) WriteEarlyData(data []byte) (int, error) {
	switch c.state {
	case stateUnconnected, stateHandshaking:
	default:
		return 0, classify.NewInvalidArgument("early data must precede handshake completion")
	}
	if err := c.ensureEngine(); err != nil {
		return 0, err
	}
	writer, ok := c.eng.(engine.EarlyDataWriter)
	if !ok {
		return 0, ErrNotSupported
	}
	if c.state == stateUnconnected {
		// The early traffic keys only exist once the first flight
		// is out, so push the handshake one step first.
		err := c.DoHandshake()
		if err != nil && err != ErrWantRead && err != ErrWantWrite {
			return 0, err
		}
	}
	count, rawErr := writer.WriteEarlyData(data)
	err := classify.Do(classify.OpWrite, rawErr)
	if err == nil {
		c.earlyWrote = true
	}
	return count, err
}

// EarlyDataStatus reports whether early data written on this
// connection has been accepted by the peer.
func (c *Conn) EarlyDataStatus() EarlyDataStatus {
	if !c.earlyWrote {
		return EarlyDataNotSent
	}
	if c.eng != nil && c.eng.Info().UsingEarlyData {
		return EarlyDataAccepted
	}
	return EarlyDataRejected
}

// MaxEarlyData reports the early data limit advertised by the peer,
// or zero when the engine does not surface one.
func (c *Conn) MaxEarlyData() uint32 {
	if writer, ok := c.eng.(engine.EarlyDataWriter); ok {
		return writer.MaxEarlyData()
	}
	return 0
}
