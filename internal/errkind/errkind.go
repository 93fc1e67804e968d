// ABOUTME: Error-kind taxonomy shared across transport, protocol, and decode
// ABOUTME: Kinds are sentinels wrapped via fmt.Errorf so callers compare with errors.Is
package errkind

import "errors"

// Kind sentinels. Wrap one with fmt.Errorf("...: %w", Kind) and compare
// downstream with errors.Is.
var (
	// ConfigError is non-recoverable and surfaced immediately: an
	// impossible request such as local-only with no local descriptor, a
	// malformed remote identifier, or an invalid URL.
	ConfigError = errors.New("config error")

	// TransportRecoverable covers socket reset, timeout, broken pipe, and
	// premature close. ConnectionSupervisor retries on this kind.
	TransportRecoverable = errors.New("recoverable transport error")

	// TransportFatal covers unknown host, TLS handshake failure,
	// connection refused, no-route, and HTTP 401/403. Retries are
	// suppressed; the supervisor may rotate to another transport variant.
	TransportFatal = errors.New("fatal transport error")

	// ProtocolError covers malformed JSON, a missing required field in
	// server/hello, or a binary frame shorter than the 9-byte header.
	ProtocolError = errors.New("protocol error")

	// DecoderError covers a failed codec configure or an unrecoverable
	// decode failure. The current stream is aborted; the session remains
	// otherwise connected awaiting a fresh stream/start.
	DecoderError = errors.New("decoder error")

	// TimeSyncWarning covers isolated stale responses or a whole lost
	// burst. Logged only; the session continues with the filter's
	// existing belief.
	TimeSyncWarning = errors.New("time sync warning")
)

// IsAuthRejection reports whether an HTTP status code from a proxy
// handshake should be classified TransportFatal rather than recoverable.
func IsAuthRejection(statusCode int) bool {
	return statusCode == 401 || statusCode == 403
}
