// ABOUTME: Tests for variant selection, the reconnect FSM, and cancellation determinism
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sendspin-audio/client-go/internal/audio"
	"github.com/sendspin-audio/client-go/internal/endpoint"
	"github.com/sendspin-audio/client-go/internal/errkind"
	"github.com/sendspin-audio/client-go/internal/netclass"
	"github.com/sendspin-audio/client-go/internal/outputsink"
	"github.com/sendspin-audio/client-go/internal/protocol"
	"github.com/sendspin-audio/client-go/internal/session"
	"github.com/sendspin-audio/client-go/internal/timefilter"
	"github.com/sendspin-audio/client-go/internal/transport"
)

func testEndpoint(policy endpoint.SelectionPolicy, local, proxy, remote bool) endpoint.Endpoint {
	ep := endpoint.Endpoint{ID: "e1", Name: "Test", Policy: policy}
	if local {
		ep.Local = &endpoint.LocalAddress{Host: "127.0.0.1", Port: 8927, Path: "/ws"}
	}
	if proxy {
		ep.Proxy = &endpoint.ProxyDescriptor{URL: "https://proxy.example/ws", Auth: endpoint.ProxyAuth{BearerToken: "tok"}}
	}
	if remote {
		ep.Remote = endpoint.RemoteHandle("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	return ep
}

func TestVariantsForAutoPolicyByNetworkClass(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyAuto, true, true, true)

	cases := []struct {
		class netclass.Class
		want  []Variant
	}{
		{netclass.ClassWifi, []Variant{VariantLocal, VariantProxy, VariantRemote}},
		{netclass.ClassEthernet, []Variant{VariantLocal, VariantProxy, VariantRemote}},
		{netclass.ClassCellular, []Variant{VariantProxy, VariantRemote}},
		{netclass.ClassVPN, []Variant{VariantProxy, VariantRemote, VariantLocal}},
		{netclass.ClassUnknown, []Variant{VariantProxy, VariantRemote, VariantLocal}},
	}
	for _, c := range cases {
		got := VariantsFor(ep, c.class)
		if !equalVariants(got, c.want) {
			t.Errorf("class %v: got %v, want %v", c.class, got, c.want)
		}
	}
}

func TestVariantsForFiltersUnconfiguredDescriptors(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyAuto, false, true, false)
	got := VariantsFor(ep, netclass.ClassWifi)
	want := []Variant{VariantProxy}
	if !equalVariants(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestVariantsForPolicyOnlyIgnoresPriorityTable(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyRemoteOnly, true, true, true)
	got := VariantsFor(ep, netclass.ClassWifi)
	want := []Variant{VariantRemote}
	if !equalVariants(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestVariantsForPolicyOnlyWithoutDescriptorReturnsEmpty(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyLocalOnly, false, true, true)
	got := VariantsFor(ep, netclass.ClassWifi)
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func equalVariants(a, b []Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBackoffDelayTableMatchesSpec(t *testing.T) {
	want := []time.Duration{
		500 * time.Millisecond, 1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second,
		60 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, w := range want {
		if got := backoffDelay(i); got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", i, got, w)
		}
	}
	// Beyond the table, the delay repeats the final entry.
	if got := backoffDelay(20); got != 60*time.Second {
		t.Errorf("backoffDelay(20) = %v, want 60s", got)
	}
}

// fakeTransport is a minimal transport.Transport whose Connect() behavior
// is scripted by the test: it either reports connected or fails, driven
// through the real transport.Listener the Dialer bound it to (mirroring
// how a real variant would call back into session.NewTransportListener).
type fakeTransport struct {
	listener  transport.Listener
	onConnect func(l transport.Listener)
}

func (f *fakeTransport) Connect() error {
	go f.onConnect(f.listener)
	return nil
}
func (f *fakeTransport) SendText(data []byte) bool   { return true }
func (f *fakeTransport) SendBinary(data []byte) bool { return true }
func (f *fakeTransport) Close(code int, reason string) {
	f.listener.OnClosed(code, reason)
}
func (f *fakeTransport) Destroy()           {}
func (f *fakeTransport) State() transport.State { return transport.StateConnected }

type nopSink struct{}

func (nopSink) Configure(audio.Format) error               { return nil }
func (nopSink) Push(int64, []int32) bool                   { return true }
func (nopSink) Pause() error                                { return nil }
func (nopSink) Resume() error                               { return nil }
func (nopSink) Flush() error                                { return nil }
func (nopSink) LatencyFloor() time.Duration                 { return 0 }
func (nopSink) Close() error                                { return nil }

type nopSessionListener struct{}

func (nopSessionListener) OnStateChanged(session.State)                       {}
func (nopSessionListener) OnServerHello(hello protocol.ServerHello)           {}
func (nopSessionListener) OnMetadata(session.Metadata)                       {}
func (nopSessionListener) OnPlayerState(session.PlayerState)                  {}
func (nopSessionListener) OnGroupUpdate(update protocol.GroupUpdate)         {}
func (nopSessionListener) OnAuxFrame(tag byte, timestampUs int64, data []byte) {}
func (nopSessionListener) OnSyncOffset(playerID string, offsetMs int, source string) {}
func (nopSessionListener) OnError(err error)                                  {}

var _ outputsink.Sink = nopSink{}

// scriptedDialer builds a real session.Engine wired to a fakeTransport per
// call, driving it toward either connected (then later dropped on demand)
// or an immediate failure, as scripted by outcomes.
type scriptedDialer struct {
	mu       sync.Mutex
	calls    int
	outcomes []string // "configerr", "fatal", "recoverable", "connect"
	engines  []*session.Engine
}

func (d *scriptedDialer) Dial(attemptCtx, sessionCtx context.Context, variant Variant, ep endpoint.Endpoint) (*session.Engine, error) {
	d.mu.Lock()
	idx := d.calls
	d.calls++
	d.mu.Unlock()

	outcome := "recoverable"
	if idx < len(d.outcomes) {
		outcome = d.outcomes[idx]
	}

	switch outcome {
	case "configerr":
		return nil, fmt.Errorf("%w: bad config", errkind.ConfigError)
	case "fatal":
		return nil, fmt.Errorf("%w: 401 unauthorized", errkind.TransportFatal)
	case "recoverable":
		return nil, fmt.Errorf("%w: connection reset", errkind.TransportRecoverable)
	}

	e := session.New(session.Config{}, timefilter.New(nil), nopSink{}, nopSessionListener{}, nil)
	listener := session.NewTransportListener(e)
	tr := &fakeTransport{listener: listener, onConnect: func(l transport.Listener) {
		l.OnConnected()
	}}
	e.BindTransport(tr)
	e.Start(sessionCtx)

	d.mu.Lock()
	d.engines = append(d.engines, e)
	d.mu.Unlock()
	return e, nil
}

type captureListener struct {
	mu         sync.Mutex
	states     []AppState
	connected  int
	reconnects []int
	failed     error
}

func (c *captureListener) OnStateChanged(s AppState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}
func (c *captureListener) OnConnected(e *session.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected++
}
func (c *captureListener) OnReconnectAttempt(attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects = append(c.reconnects, attempt)
}
func (c *captureListener) OnFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = err
}

func (c *captureListener) snapshot() (states []AppState, connected int, reconnects []int, failed error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AppState(nil), c.states...), c.connected, append([]int(nil), c.reconnects...), c.failed
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

func TestConfigErrorStopsImmediatelyWithoutRetry(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyLocalOnly, false, false, false) // no descriptor at all
	listener := &captureListener{}
	s := New(Config{Endpoint: ep, Listener: listener}, nil)

	s.Start(context.Background())
	waitUntil(t, time.Second, func() bool {
		_, _, _, failed := listener.snapshot()
		return failed != nil
	})

	_, connected, _, failed := listener.snapshot()
	if connected != 0 {
		t.Errorf("connected count = %d, want 0", connected)
	}
	if !errors.Is(failed, errkind.ConfigError) {
		t.Errorf("failed error = %v, want ConfigError", failed)
	}
}

func TestFatalErrorRotatesToNextVariantWithoutConsumingAttempt(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyAuto, false, true, true) // proxy, remote configured
	dialer := &scriptedDialer{outcomes: []string{"fatal", "connect"}}
	listener := &captureListener{}
	s := New(Config{
		Endpoint:    ep,
		NetObserver: nil, // unknown class -> proxy, remote, local priority
		Dialer:      dialer,
		Listener:    listener,
	}, nil)

	s.Start(context.Background())
	waitUntil(t, time.Second, func() bool {
		_, connected, _, _ := listener.snapshot()
		return connected == 1
	})

	dialer.mu.Lock()
	calls := dialer.calls
	dialer.mu.Unlock()
	if calls != 2 {
		t.Errorf("dialer calls = %d, want 2 (proxy fatal, then remote connect)", calls)
	}
	_, _, reconnects, _ := listener.snapshot()
	if len(reconnects) != 0 {
		t.Errorf("reconnect attempts recorded = %v, want none (variant rotation isn't a reconnect attempt)", reconnects)
	}
}

func TestCancelReconnectionStopsFurtherAttemptsDeterministically(t *testing.T) {
	ep := testEndpoint(endpoint.PolicyProxyOnly, false, true, false)
	dialer := &scriptedDialer{outcomes: []string{"recoverable", "recoverable", "recoverable", "recoverable", "recoverable"}}
	listener := &captureListener{}
	s := New(Config{
		Endpoint:             ep,
		Dialer:               dialer,
		Listener:             listener,
		MaxReconnectAttempts: 11,
	}, nil)

	s.Start(context.Background())
	waitUntil(t, 2*time.Second, func() bool { return s.IsReconnecting() })

	s.CancelReconnection()
	if s.IsReconnecting() {
		t.Fatalf("IsReconnecting() = true immediately after CancelReconnection")
	}

	dialer.mu.Lock()
	callsAtCancel := dialer.calls
	dialer.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	dialer.mu.Lock()
	callsAfter := dialer.calls
	dialer.mu.Unlock()
	if callsAfter != callsAtCancel {
		t.Errorf("dialer was called again after cancellation: %d -> %d", callsAtCancel, callsAfter)
	}
}
