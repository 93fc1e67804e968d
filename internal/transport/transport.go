// ABOUTME: Abstract Transport contract shared by local WS, proxy WS, and WebRTC data-channel variants
// ABOUTME: State enum and error-recoverability classification consumed by ConnectionSupervisor
package transport

import (
	"errors"
	"strings"

	"github.com/sendspin-audio/client-go/internal/errkind"
)

// State is the transport's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener receives lifecycle and data events from a Transport. All
// methods are called from the transport's own goroutine(s); implementers
// must not block.
type Listener interface {
	OnConnected()
	OnText(data []byte)
	OnBinary(data []byte)
	OnClosing(code int, reason string)
	OnClosed(code int, reason string)
	OnFailure(err error, recoverable bool)
}

// Transport is the abstract contract SessionEngine drives regardless of
// which variant (local WS, proxy WS, WebRTC data channel) backs it.
type Transport interface {
	// Connect dials/negotiates and blocks until connected or failed.
	Connect() error

	// SendText and SendBinary return false without queuing when the
	// transport is not currently connected.
	SendText(data []byte) bool
	SendBinary(data []byte) bool

	// Close performs a graceful shutdown with a close code/reason,
	// best-effort on transports (like WebRTC) that don't natively carry one.
	Close(code int, reason string)

	// Destroy releases every resource the transport holds, including any
	// pooled HTTP client — Close alone does not. The supervisor relies on
	// this distinction when rotating transport variants.
	Destroy()

	State() State
}

// ClassifyError applies the default "unknown-host / SSL-handshake /
// connect-refused / no-route / 401 / 403" => fatal, everything else =>
// recoverable policy shared by every transport variant.
func ClassifyError(err error) (kind error, recoverable bool) {
	if err == nil {
		return nil, true
	}

	msg := strings.ToLower(err.Error())
	fatalSubstrings := []string{
		"no such host",
		"unknown host",
		"nodename nor servname",
		"certificate",
		"tls handshake",
		"x509",
		"connection refused",
		"no route to host",
		"network is unreachable",
		"401",
		"403",
		"unauthorized",
		"forbidden",
	}
	for _, s := range fatalSubstrings {
		if strings.Contains(msg, s) {
			return errors.Join(errkind.TransportFatal, err), false
		}
	}
	return errors.Join(errkind.TransportRecoverable, err), true
}
