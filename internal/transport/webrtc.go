// ABOUTME: WebRTC data-channel Transport variant, wrapping a negotiated webrtcpeer.Peer
// ABOUTME: Close code/reason are best-effort here since data channels carry neither natively
package transport

import (
	"fmt"
	"log"
	"sync"

	"github.com/sendspin-audio/client-go/internal/webrtcpeer"
)

// WebRTCTransport adapts an already-negotiated webrtcpeer.Peer (negotiation
// itself is driven by a SignalingClient, outside this transport's scope)
// to the Transport contract.
type WebRTCTransport struct {
	peer     *webrtcpeer.Peer
	listener Listener
	logger   *log.Logger

	mu    sync.RWMutex
	state State
}

// NewWebRTCTransport wraps peer, whose data channel is expected to already
// be negotiating or open by the time Connect is called.
func NewWebRTCTransport(peer *webrtcpeer.Peer, listener Listener, logger *log.Logger) *WebRTCTransport {
	if logger == nil {
		logger = log.Default()
	}
	return &WebRTCTransport{peer: peer, listener: listener, logger: logger, state: StateDisconnected}
}

func (t *WebRTCTransport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Connect marks the transport connecting. Two callers exist: DialWebRTC
// negotiates the data channel before the Transport is ever handed to an
// Engine, so by the time Connect is called the transport may already be
// StateConnected — in that case OnConnected fires immediately (the caller
// is now listening, since this is invoked from Engine.Start after its
// event loop is wired up). Otherwise the open event arrives asynchronously
// via OnOpen.
func (t *WebRTCTransport) Connect() error {
	t.mu.Lock()
	alreadyConnected := t.state == StateConnected
	if !alreadyConnected {
		t.state = StateConnecting
	}
	t.mu.Unlock()
	if alreadyConnected {
		t.listener.OnConnected()
	}
	return nil
}

// OnOpen is invoked by the owning webrtcpeer.Listener glue when the data
// channel opens.
func (t *WebRTCTransport) OnOpen() {
	t.mu.Lock()
	t.state = StateConnected
	t.mu.Unlock()
	t.listener.OnConnected()
}

// OnMessage is invoked by the owning webrtcpeer.Listener glue on every
// inbound data-channel message.
func (t *WebRTCTransport) OnMessage(data []byte, isBinary bool) {
	if isBinary {
		t.listener.OnBinary(data)
	} else {
		t.listener.OnText(data)
	}
}

// OnClose is invoked when the data channel or peer connection closes,
// satisfying webrtcpeer.Listener.
func (t *WebRTCTransport) OnClose() {
	t.mu.Lock()
	t.state = StateClosed
	t.mu.Unlock()
	t.listener.OnClosed(0, "webrtc data channel closed")
}

// OnFailure is invoked when the underlying peer connection fails,
// satisfying webrtcpeer.Listener. Peer-connection failure always surfaces
// as a transport failure per spec's variant-C contract; it is never
// classified non-recoverable here since connect-refused/unknown-host
// style causes don't apply to an already-negotiated data channel.
func (t *WebRTCTransport) OnFailure(err error) {
	t.mu.Lock()
	t.state = StateFailed
	t.mu.Unlock()
	t.listener.OnFailure(fmt.Errorf("webrtc peer failure: %w", err), true)
}

func (t *WebRTCTransport) SendText(data []byte) bool {
	if t.State() != StateConnected {
		return false
	}
	return t.peer.SendText(data)
}

func (t *WebRTCTransport) SendBinary(data []byte) bool {
	if t.State() != StateConnected {
		return false
	}
	return t.peer.SendBinary(data)
}

// Close and Destroy both tear down the peer connection; WebRTC data
// channels carry no native close code/reason, so both are best-effort.
func (t *WebRTCTransport) Close(code int, reason string) {
	t.listener.OnClosing(code, reason)
	if err := t.peer.Close(); err != nil {
		t.logger.Printf("webrtc transport: close error: %v", err)
	}
	t.mu.Lock()
	t.state = StateClosed
	t.mu.Unlock()
	t.listener.OnClosed(code, reason)
}

func (t *WebRTCTransport) Destroy() {
	if t.State() != StateClosed {
		t.Close(1000, "destroy")
	}
}
