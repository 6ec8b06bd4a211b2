// Package model contains the data model. Connection events are
// tagged using a unique int64 ConnID. These IDs are never reused.
//
// All events have a Time. This is always the time in which an event
// has been emitted. We use a monotonic clock. Hence, the Time is
// relative to a predefined zero in time.
//
// Duration, where present, indicates for how long the code has been
// working towards an event. For example, HandshakeEvent.Duration
// covers the whole handshake call, including its retries.
//
// When an operation may fail, we also include the Error.
package model

import "time"

// X509Certificate is an x.509 certificate.
type X509Certificate struct {
	// Data contains the certificate bytes in DER format.
	Data []byte
}

// ConnectionState describes a negotiated TLS session.
type ConnectionState struct {
	CipherSuite        uint16
	NegotiatedProtocol string
	PeerCertificates   []X509Certificate
	Resumed            bool
	Version            uint16
}

// HandshakeEvent is emitted every time conn.DoHandshake returns,
// including the returns that merely request more network I/O.
type HandshakeEvent struct {
	ConnID   int64
	Duration time.Duration
	Error    error
	Time     time.Duration
}

// NegotiatedEvent is emitted once, when the handshake completes.
type NegotiatedEvent struct {
	ConnID          int64
	ConnectionState ConnectionState
	ServerName      string
	Time            time.Duration
}

// ReadEvent is emitted when conn.Read returns.
type ReadEvent struct {
	ConnID   int64
	Duration time.Duration
	Error    error
	NumBytes int64
	Time     time.Duration
}

// WriteEvent is emitted when conn.Write returns.
type WriteEvent struct {
	ConnID   int64
	Duration time.Duration
	Error    error
	NumBytes int64
	Time     time.Duration
}

// ShutdownEvent is emitted when conn.Shutdown returns.
type ShutdownEvent struct {
	Complete bool
	ConnID   int64
	Duration time.Duration
	Error    error
	Time     time.Duration
}

// CloseEvent is emitted when conn.Close returns.
type CloseEvent struct {
	ConnID   int64
	Duration time.Duration
	Error    error
	Time     time.Duration
}

// Measurement contains zero or more events. Do not assume that at any
// time a Measurement will only contain a single event. When a
// Measurement contains an event, the corresponding pointer is non nil.
type Measurement struct {
	Close      *CloseEvent      `json:",omitempty"`
	Handshake  *HandshakeEvent  `json:",omitempty"`
	Negotiated *NegotiatedEvent `json:",omitempty"`
	Read       *ReadEvent       `json:",omitempty"`
	Shutdown   *ShutdownEvent   `json:",omitempty"`
	Write      *WriteEvent      `json:",omitempty"`
}

// Handler handles measurement events.
type Handler interface {
	// OnMeasurement is called when an event occurs. There will be
	// no events after Close has returned on the connection that
	// was emitting them.
	OnMeasurement(Measurement)
}
