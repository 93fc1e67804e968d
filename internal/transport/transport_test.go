// ABOUTME: Tests for transport-variant error classification and WebSocketConfig URL/auth handling
package transport

import (
	"errors"
	"testing"

	"github.com/sendspin-audio/client-go/internal/errkind"
)

func TestClassifyErrorFatalSubstrings(t *testing.T) {
	cases := []string{
		"dial tcp: lookup foo.example: no such host",
		"x509: certificate signed by unknown authority",
		"dial tcp 127.0.0.1:80: connect: connection refused",
		"401 Unauthorized",
		"403 Forbidden",
	}
	for _, msg := range cases {
		_, recoverable := ClassifyError(errors.New(msg))
		if recoverable {
			t.Errorf("expected %q to classify as non-recoverable", msg)
		}
	}
}

func TestClassifyErrorRecoverableByDefault(t *testing.T) {
	kind, recoverable := ClassifyError(errors.New("connection reset by peer"))
	if !recoverable {
		t.Error("expected recoverable by default")
	}
	if !errors.Is(kind, errkind.TransportRecoverable) {
		t.Error("expected TransportRecoverable sentinel")
	}
}

func TestClassifyErrorNilIsRecoverable(t *testing.T) {
	kind, recoverable := ClassifyError(nil)
	if kind != nil || !recoverable {
		t.Errorf("nil error should classify as (nil, true), got (%v, %v)", kind, recoverable)
	}
}

func TestWebSocketConfigResolvedURLTranslatesScheme(t *testing.T) {
	cases := map[string]string{
		"https://proxy.example.com/ws": "wss://proxy.example.com/ws",
		"http://proxy.example.com/ws":  "ws://proxy.example.com/ws",
		"ws://192.168.1.5:8927/ws":     "ws://192.168.1.5:8927/ws",
	}
	for in, want := range cases {
		cfg := WebSocketConfig{URL: in}
		got, err := cfg.resolvedURL()
		if err != nil {
			t.Fatalf("resolvedURL(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("resolvedURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWebSocketConfigAuthHeaderBearer(t *testing.T) {
	cfg := WebSocketConfig{URL: "https://x/y", Bearer: "tok123"}
	h := cfg.authHeader()
	if got := h.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("Authorization header = %q, want Bearer tok123", got)
	}
}

func TestWebSocketConfigAuthHeaderBasic(t *testing.T) {
	cfg := WebSocketConfig{URL: "https://x/y", Username: "alice", Password: "hunter2"}
	h := cfg.authHeader()
	got := h.Get("Authorization")
	if got == "" || got[:6] != "Basic " {
		t.Errorf("Authorization header = %q, want Basic prefix", got)
	}
}

func TestWebSocketConfigAuthHeaderNoneByDefault(t *testing.T) {
	cfg := WebSocketConfig{URL: "ws://x/y"}
	if cfg.authHeader() != nil {
		t.Error("expected nil auth header with no credentials")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateFailed:       "failed",
		StateClosed:       "closed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestSendWithoutConnectReturnsFalse(t *testing.T) {
	fl := &fakeListener{}
	tr := NewWebSocketTransport(WebSocketConfig{URL: "ws://127.0.0.1:1/x"}, fl, nil)
	if tr.SendText([]byte("hi")) {
		t.Error("SendText before Connect should return false")
	}
	if tr.SendBinary([]byte{1, 2}) {
		t.Error("SendBinary before Connect should return false")
	}
}

type fakeListener struct {
	connected   int
	texts       [][]byte
	binaries    [][]byte
	closing     int
	closed      int
	failures    int
	lastErr     error
	lastRecover bool
}

func (f *fakeListener) OnConnected()                  { f.connected++ }
func (f *fakeListener) OnText(data []byte)             { f.texts = append(f.texts, data) }
func (f *fakeListener) OnBinary(data []byte)           { f.binaries = append(f.binaries, data) }
func (f *fakeListener) OnClosing(code int, reason string) { f.closing++ }
func (f *fakeListener) OnClosed(code int, reason string)  { f.closed++ }
func (f *fakeListener) OnFailure(err error, recoverable bool) {
	f.failures++
	f.lastErr = err
	f.lastRecover = recoverable
}
