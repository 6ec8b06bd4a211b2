// Package logger is a handler that emits logs
package logger

import (
	"github.com/apex/log"
	"github.com/ooni/tlsbio/model"
)

var tlsVersion = map[uint16]string{
	0x0301: "TLSv1",
	0x0302: "TLSv1.1",
	0x0303: "TLSv1.2",
	0x0304: "TLSv1.3",
}

// Handler is a handler that logs events.
type Handler struct {
	logger log.Interface
}

// NewHandler returns a new logging handler.
func NewHandler(logger log.Interface) *Handler {
	return &Handler{logger: logger}
}

// OnMeasurement logs the specific measurement
func (h *Handler) OnMeasurement(m model.Measurement) {
	if m.Handshake != nil {
		h.logger.WithFields(log.Fields{
			"blockedFor": m.Handshake.Duration,
			"connID":     m.Handshake.ConnID,
			"elapsed":    m.Handshake.Time,
			"error":      m.Handshake.Error,
		}).Debug("tls: handshake step done")
	}
	if m.Negotiated != nil {
		h.logger.WithFields(log.Fields{
			"alpn":       m.Negotiated.ConnectionState.NegotiatedProtocol,
			"connID":     m.Negotiated.ConnID,
			"elapsed":    m.Negotiated.Time,
			"resumed":    m.Negotiated.ConnectionState.Resumed,
			"serverName": m.Negotiated.ServerName,
			"version":    tlsVersion[m.Negotiated.ConnectionState.Version],
		}).Debug("tls: handshake done")
	}
	if m.Read != nil {
		h.logger.WithFields(log.Fields{
			"blockedFor": m.Read.Duration,
			"connID":     m.Read.ConnID,
			"elapsed":    m.Read.Time,
			"numBytes":   m.Read.NumBytes,
		}).Debug("tls: read done")
	}
	if m.Write != nil {
		h.logger.WithFields(log.Fields{
			"blockedFor": m.Write.Duration,
			"connID":     m.Write.ConnID,
			"elapsed":    m.Write.Time,
			"numBytes":   m.Write.NumBytes,
		}).Debug("tls: write done")
	}
	if m.Shutdown != nil {
		h.logger.WithFields(log.Fields{
			"blockedFor": m.Shutdown.Duration,
			"complete":   m.Shutdown.Complete,
			"connID":     m.Shutdown.ConnID,
			"elapsed":    m.Shutdown.Time,
		}).Debug("tls: shutdown done")
	}
	if m.Close != nil {
		h.logger.WithFields(log.Fields{
			"blockedFor": m.Close.Duration,
			"connID":     m.Close.ConnID,
			"elapsed":    m.Close.Time,
		}).Debug("tls: close done")
	}
}
