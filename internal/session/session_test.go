// ABOUTME: Engine lifecycle tests: handshake, stream start/end, commands, and disconnect/failure paths
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sendspin-audio/client-go/internal/audio"
	"github.com/sendspin-audio/client-go/internal/outputsink"
	"github.com/sendspin-audio/client-go/internal/protocol"
	"github.com/sendspin-audio/client-go/internal/timefilter"
	"github.com/sendspin-audio/client-go/internal/transport"
)

// fakeTransport is driven directly by the test: SendText captures every
// client->server envelope, and the test replays server messages back in
// by calling the transport.Listener it was bound with.
type fakeTransport struct {
	mu       sync.Mutex
	listener transport.Listener
	sent     [][]byte
	closed   bool
	closeArg struct {
		code   int
		reason string
	}
}

func (f *fakeTransport) Connect() error { return nil }
func (f *fakeTransport) SendText(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return true
}
func (f *fakeTransport) SendBinary(data []byte) bool { return true }
func (f *fakeTransport) Close(code int, reason string) {
	f.mu.Lock()
	f.closed = true
	f.closeArg.code, f.closeArg.reason = code, reason
	f.mu.Unlock()
	f.listener.OnClosed(code, reason)
}
func (f *fakeTransport) Destroy()               {}
func (f *fakeTransport) State() transport.State { return transport.StateConnected }

func (f *fakeTransport) lastSent() (string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return "", nil
	}
	last := f.sent[len(f.sent)-1]
	msg, _ := protocol.DecodeEnvelope(last)
	return msg.Type, last
}

func (f *fakeTransport) countSent(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, raw := range f.sent {
		msg, err := protocol.DecodeEnvelope(raw)
		if err == nil && msg.Type == msgType {
			n++
		}
	}
	return n
}

type nopSink struct{}

func (nopSink) Configure(audio.Format) error       { return nil }
func (nopSink) Push(int64, []int32) bool           { return true }
func (nopSink) Pause() error                       { return nil }
func (nopSink) Resume() error                      { return nil }
func (nopSink) Flush() error                       { return nil }
func (nopSink) LatencyFloor() time.Duration        { return 0 }
func (nopSink) Close() error                       { return nil }

var _ outputsink.Sink = nopSink{}

type captureListener struct {
	mu          sync.Mutex
	states      []State
	errs        []error
	metadata    []Metadata
	players     []PlayerState
	groupUpds   []protocol.GroupUpdate
	syncOffsets []syncOffsetCall
}

type syncOffsetCall struct {
	playerID string
	offsetMs int
	source   string
}

func (c *captureListener) OnStateChanged(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}
func (c *captureListener) OnServerHello(protocol.ServerHello) {}
func (c *captureListener) OnMetadata(m Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = append(c.metadata, m)
}
func (c *captureListener) OnPlayerState(p PlayerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.players = append(c.players, p)
}
func (c *captureListener) OnGroupUpdate(g protocol.GroupUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupUpds = append(c.groupUpds, g)
}
func (c *captureListener) OnAuxFrame(byte, int64, []byte) {}
func (c *captureListener) OnSyncOffset(playerID string, offsetMs int, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncOffsets = append(c.syncOffsets, syncOffsetCall{playerID: playerID, offsetMs: offsetMs, source: source})
}
func (c *captureListener) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *captureListener) hasState(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.states {
		if st == s {
			return true
		}
	}
	return false
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

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *captureListener) {
	e, tr, listener, _ := newTestEngineWithFilter(t)
	return e, tr, listener
}

func newTestEngineWithFilter(t *testing.T) (*Engine, *fakeTransport, *captureListener, *timefilter.Filter) {
	t.Helper()
	listener := &captureListener{}
	filter := timefilter.New(nil)
	e := New(Config{ClientID: "c1", Name: "test"}, filter, nopSink{}, listener, nil)
	tl := NewTransportListener(e)
	tr := &fakeTransport{listener: tl}
	e.BindTransport(tr)
	e.Start(context.Background())
	t.Cleanup(func() { e.Disconnect("test teardown") })
	return e, tr, listener, filter
}

func TestHandshakeCompletesToConnected(t *testing.T) {
	e, tr, listener := newTestEngine(t)

	waitUntil(t, time.Second, func() bool { return tr.countSent(protocol.TypeClientHello) == 1 })

	tr.listener.OnText(mustEncode(t, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: "srv1", ActiveRoles: []string{"player@v1"},
	}))

	waitUntil(t, time.Second, func() bool { return e.State() == StateConnected })
	if !listener.hasState(StateHandshaking) {
		t.Error("never observed StateHandshaking")
	}
	waitUntil(t, time.Second, func() bool { return tr.countSent(protocol.TypeClientState) >= 1 })
}

func TestStreamStartTransitionsToStreamActiveAndDecodesAudio(t *testing.T) {
	e, tr, _ := newTestEngine(t)
	completeHandshake(t, e, tr)

	tr.listener.OnText(mustEncode(t, protocol.TypeStreamStart, protocol.StreamStart{
		Player: &protocol.StreamStartPlayer{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16},
	}))
	waitUntil(t, time.Second, func() bool { return e.State() == StateStreamActive })

	frame := protocol.BuildBinaryFrame(protocol.FrameTypeAudio, 1000, make([]byte, 8))
	tr.listener.OnBinary(frame)

	tr.listener.OnText(mustEncode(t, protocol.TypeStreamEnd, struct{}{}))
	waitUntil(t, time.Second, func() bool { return e.State() == StateConnected })
}

func TestServerCommandAppliesVolumeAndMute(t *testing.T) {
	e, tr, listener := newTestEngine(t)
	completeHandshake(t, e, tr)

	tr.listener.OnText(mustEncode(t, protocol.TypeServerCommand, protocol.ServerCommand{
		Player: &protocol.PlayerCommand{Command: "volume", Volume: 42},
	}))
	waitUntil(t, time.Second, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return len(listener.players) > 0 && listener.players[len(listener.players)-1].Volume == 42
	})

	tr.listener.OnText(mustEncode(t, protocol.TypeServerCommand, protocol.ServerCommand{
		Player: &protocol.PlayerCommand{Command: "mute", Mute: true},
	}))
	waitUntil(t, time.Second, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return len(listener.players) > 0 && listener.players[len(listener.players)-1].Muted
	})
}

func TestSyncOffsetAppliesOnlyToOwnPlayer(t *testing.T) {
	e, tr, listener, filter := newTestEngineWithFilter(t)
	completeHandshake(t, e, tr)

	tr.listener.OnText(mustEncode(t, protocol.TypeClientSyncOffs, protocol.SyncOffset{
		PlayerID: "someone-else", OffsetMs: 40, Source: "group_leader",
	}))
	waitUntil(t, time.Second, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return len(listener.syncOffsets) == 1
	})
	if got := filter.StaticDelayUs(); got != 0 {
		t.Errorf("static delay changed for another player's sync_offset: got %dus, want 0", got)
	}

	tr.listener.OnText(mustEncode(t, protocol.TypeClientSyncOffs, protocol.SyncOffset{
		PlayerID: e.cfg.ClientID, OffsetMs: 40, Source: "group_leader",
	}))
	waitUntil(t, time.Second, func() bool { return filter.StaticDelayUs() == 40_000 })

	listener.mu.Lock()
	got := listener.syncOffsets[len(listener.syncOffsets)-1]
	listener.mu.Unlock()
	if got.playerID != e.cfg.ClientID || got.offsetMs != 40 || got.source != "group_leader" {
		t.Errorf("OnSyncOffset got %+v", got)
	}
}

func TestSetVolumeClampsAndReportsState(t *testing.T) {
	e, tr, listener := newTestEngine(t)
	completeHandshake(t, e, tr)

	e.SetVolume(500)
	waitUntil(t, time.Second, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return len(listener.players) > 0 && listener.players[len(listener.players)-1].Volume == 100
	})
}

func TestUnexpectedCloseFailsSession(t *testing.T) {
	e, tr, listener := newTestEngine(t)
	completeHandshake(t, e, tr)

	tr.listener.OnClosed(1006, "abnormal closure")
	waitUntil(t, time.Second, func() bool { return e.State() == StateFailed })
	if !listener.hasState(StateFailed) {
		t.Error("listener never observed StateFailed")
	}
}

func TestDisconnectSendsGoodbyeAndClosesTransport(t *testing.T) {
	e, tr, _ := newTestEngine(t)
	completeHandshake(t, e, tr)

	e.Disconnect("shutting down")
	waitUntil(t, time.Second, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.closed
	})
	if tr.countSent(protocol.TypeClientGoodbye) != 1 {
		t.Errorf("client/goodbye sent %d times, want 1", tr.countSent(protocol.TypeClientGoodbye))
	}
}

func completeHandshake(t *testing.T, e *Engine, tr *fakeTransport) {
	t.Helper()
	waitUntil(t, time.Second, func() bool { return tr.countSent(protocol.TypeClientHello) == 1 })
	tr.listener.OnText(mustEncode(t, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: "srv1", ActiveRoles: []string{"player@v1"},
	}))
	waitUntil(t, time.Second, func() bool { return e.State() == StateConnected })
}

func mustEncode(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", msgType, err)
	}
	return data
}
