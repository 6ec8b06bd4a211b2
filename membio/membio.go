// Package membio implements a pair of linked in-memory buffer
// endpoints that substitute for a real socket. Bytes written into one
// endpoint become readable from the other. The typical arrangement is
// that a TLS engine owns the internal endpoint while the code that
// owns the real socket feeds and drains the network endpoint.
package membio

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ErrClosed indicates a write on an endpoint that has been closed.
var ErrClosed = errors.New("membio: endpoint is closed")

// pairState is the state shared by the two endpoints of a pair. A
// single mutex guards both directions because the engine and the
// caller touch the two ends from different goroutines.
type pairState struct {
	mu         sync.Mutex
	aToB       bytes.Buffer
	bToA       bytes.Buffer
	aToBClosed bool
	bToAClosed bool
}

// Endpoint is one end of an in-memory pair. It implements net.Conn
// so that a TLS engine can use it directly as its transport. Reads
// never block: an open endpoint with no buffered data returns (0, nil)
// and lets the engine translate that into its retry signal.
type Endpoint struct {
	shared     *pairState
	recv       *bytes.Buffer
	send       *bytes.Buffer
	recvClosed *bool
	sendClosed *bool
	closed     bool
	releases   int
}

// NewPair creates two linked endpoints. Data written to the first is
// readable from the second and vice versa. The two endpoints share
// their buffers: closing one of them does not discard the buffered
// data still readable from the other, but it does end the
// conversation, so once the peer drains its buffer it reads io.EOF.
func NewPair() (*Endpoint, *Endpoint) {
	shared := new(pairState)
	first := &Endpoint{
		shared:     shared,
		recv:       &shared.bToA,
		send:       &shared.aToB,
		recvClosed: &shared.bToAClosed,
		sendClosed: &shared.aToBClosed,
	}
	second := &Endpoint{
		shared:     shared,
		recv:       &shared.aToB,
		send:       &shared.bToA,
		recvClosed: &shared.aToBClosed,
		sendClosed: &shared.bToAClosed,
	}
	return first, second
}

// Read reads buffered data. An endpoint whose incoming direction is
// open but empty returns (0, nil). Once the direction is closed the
// remaining data drains and further reads return io.EOF.
func (ep *Endpoint) Read(b []byte) (n int, err error) {
	ep.shared.mu.Lock()
	defer ep.shared.mu.Unlock()
	if ep.recv.Len() == 0 {
		if ep.closed || *ep.recvClosed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n, err = ep.recv.Read(b)
	if err == io.EOF {
		// Cannot happen given the length check above, but never
		// surface the buffer's EOF for an open endpoint.
		err = nil
	}
	return
}

// Write appends data for the peer endpoint to read.
func (ep *Endpoint) Write(b []byte) (n int, err error) {
	ep.shared.mu.Lock()
	defer ep.shared.mu.Unlock()
	if ep.closed || *ep.sendClosed {
		return 0, ErrClosed
	}
	return ep.send.Write(b)
}

// Pending returns the number of bytes buffered and readable from
// this endpoint without any further write from the peer.
func (ep *Endpoint) Pending() int {
	ep.shared.mu.Lock()
	defer ep.shared.mu.Unlock()
	return ep.recv.Len()
}

// Close releases the endpoint and closes both directions of the
// pair. Each call is counted so that tests can verify that an
// endpoint is released exactly once. Reads on either end keep
// draining already-buffered data and then report io.EOF; further
// writes fail with ErrClosed.
func (ep *Endpoint) Close() error {
	ep.shared.mu.Lock()
	defer ep.shared.mu.Unlock()
	ep.closed = true
	*ep.sendClosed = true
	*ep.recvClosed = true
	ep.releases++
	return nil
}

// CloseWrite closes the outgoing direction only, the way shutting
// down the write half of a socket does. The peer drains whatever is
// already buffered and then reads io.EOF; reads on this endpoint are
// unaffected. CloseWrite does not release the endpoint.
func (ep *Endpoint) CloseWrite() error {
	ep.shared.mu.Lock()
	defer ep.shared.mu.Unlock()
	*ep.sendClosed = true
	return nil
}

// Releases returns how many times Close has been called. Useful to
// verify ownership invariants in tests and diagnostics.
func (ep *Endpoint) Releases() int {
	ep.shared.mu.Lock()
	defer ep.shared.mu.Unlock()
	return ep.releases
}

// LocalAddr implements net.Conn. There is no address.
func (ep *Endpoint) LocalAddr() net.Addr { return nil }

// RemoteAddr implements net.Conn. There is no address.
func (ep *Endpoint) RemoteAddr() net.Addr { return nil }

// SetDeadline implements net.Conn. Deadlines are meaningless for
// in-memory endpoints, so this is a no-op.
func (ep *Endpoint) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline implements net.Conn as a no-op.
func (ep *Endpoint) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline implements net.Conn as a no-op.
func (ep *Endpoint) SetWriteDeadline(t time.Time) error { return nil }
