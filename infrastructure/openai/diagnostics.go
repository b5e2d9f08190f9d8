package openai

import "github.com/sirupsen/logrus"

// CloseReason labels the terminal transition of one stream.
type CloseReason string

const (
	CloseSentinel       CloseReason = "sentinel"
	CloseEOF            CloseReason = "eof"
	CloseCancelled      CloseReason = "cancelled"
	CloseTransportError CloseReason = "transport_error"
)

// Diagnostics is the side channel for observing decode failures and terminal
// transitions. Implementations must not block and must not influence the
// fragment sequence's ordering or termination.
type Diagnostics interface {
	DecodeFailed(payload string, cause error)
	StreamClosed(reason CloseReason, err error)
}

type logDiagnostics struct{}

// NewLogDiagnostics returns a Diagnostics backed by the standard logrus
// logger. This is the default sink when none is configured.
func NewLogDiagnostics() Diagnostics { return logDiagnostics{} }

func (logDiagnostics) DecodeFailed(payload string, cause error) {
	logrus.WithError(cause).WithField("payload", payload).Warn("Failed to decode streaming chunk")
}

func (logDiagnostics) StreamClosed(reason CloseReason, err error) {
	entry := logrus.WithField("reason", reason)
	if err != nil {
		entry.WithError(err).Debug("Stream closed with error")
		return
	}
	entry.Debug("Stream closed")
}

type nopDiagnostics struct{}

// NopDiagnostics returns a Diagnostics that discards everything.
func NopDiagnostics() Diagnostics { return nopDiagnostics{} }

func (nopDiagnostics) DecodeFailed(string, error)      {}
func (nopDiagnostics) StreamClosed(CloseReason, error) {}
