// ABOUTME: Blocking dial orchestration for the WebRTC data-channel transport variant
// ABOUTME: Drives SignalingClient + webrtcpeer.Peer negotiation to a connected WebRTCTransport or an error
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/sendspin-audio/client-go/internal/signaling"
	"github.com/sendspin-audio/client-go/internal/webrtcpeer"
)

// webrtcDialResult is sent once, either a connected transport or an error.
type webrtcDialResult struct {
	transport *WebRTCTransport
	err       error
}

// signalingGlue adapts signaling.Listener callbacks into the offerer side
// of a peer-connection negotiation, completing dialDone exactly once.
type signalingGlue struct {
	remoteID string
	client   *signaling.Client
	logger   *log.Logger
	listener Listener

	mu       sync.Mutex
	peer     *webrtcpeer.Peer
	wt       *WebRTCTransport
	done     chan struct{}
	doneOnce sync.Once
	result   webrtcDialResult
}

func (g *signalingGlue) finish(res webrtcDialResult) {
	g.doneOnce.Do(func() {
		g.result = res
		close(g.done)
	})
}

func (g *signalingGlue) OnConnected(sessionID string, iceServers []webrtc.ICEServer) {
	peer, err := webrtcpeer.New(iceServers, true, g, g.logger)
	if err != nil {
		g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: create peer: %w", err)})
		return
	}
	g.mu.Lock()
	g.peer = peer
	g.wt = NewWebRTCTransport(peer, g.listener, g.logger)
	g.mu.Unlock()

	peer.OnLocalICECandidate(func(c webrtc.ICECandidateInit) {
		if err := g.client.SendICECandidate(g.remoteID, c); err != nil {
			g.logger.Printf("webrtc dial: send ice candidate: %v", err)
		}
	})

	offer, err := peer.CreateOffer()
	if err != nil {
		g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: create offer: %w", err)})
		return
	}
	if err := g.client.SendOffer(g.remoteID, offer.SDP); err != nil {
		g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: send offer: %w", err)})
	}
}

func (g *signalingGlue) OnAnswer(sdp string) {
	g.mu.Lock()
	peer := g.peer
	g.mu.Unlock()
	if peer == nil {
		g.logger.Printf("webrtc dial: answer received before peer created")
		return
	}
	if err := peer.SetRemoteAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: set remote answer: %w", err)})
	}
}

func (g *signalingGlue) OnRemoteICECandidate(candidate webrtc.ICECandidateInit) {
	g.mu.Lock()
	peer := g.peer
	g.mu.Unlock()
	if peer == nil {
		return
	}
	if err := peer.AddICECandidate(candidate); err != nil {
		g.logger.Printf("webrtc dial: add ice candidate: %v", err)
	}
}

func (g *signalingGlue) OnPeerDisconnected() {
	g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: peer disconnected during negotiation")})
}

func (g *signalingGlue) OnError(message string) {
	g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: signaling error: %s", message)})
}

// OnOpen satisfies webrtcpeer.Listener; it's the only success path out of
// the negotiation — the data channel reaching open is what "connected"
// means for this transport variant.
func (g *signalingGlue) OnOpen() {
	g.mu.Lock()
	wt := g.wt
	g.mu.Unlock()
	if wt != nil {
		wt.mu.Lock()
		wt.state = StateConnected
		wt.mu.Unlock()
	}
	g.finish(webrtcDialResult{transport: wt})
}

func (g *signalingGlue) OnMessage(data []byte, isBinary bool) {
	g.mu.Lock()
	wt := g.wt
	g.mu.Unlock()
	if wt != nil {
		wt.OnMessage(data, isBinary)
	}
}

func (g *signalingGlue) OnClose() {
	g.mu.Lock()
	wt := g.wt
	g.mu.Unlock()
	if wt != nil {
		wt.OnClose()
	} else {
		g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: data channel closed before open")})
	}
}

func (g *signalingGlue) OnFailure(err error) {
	g.mu.Lock()
	wt := g.wt
	g.mu.Unlock()
	if wt != nil {
		wt.OnFailure(err)
	}
	g.finish(webrtcDialResult{err: fmt.Errorf("webrtc dial: %w", err)})
}

// DialWebRTC negotiates a WebRTC data-channel transport against remoteID
// through the signaling endpoint at signalingURL, blocking until the data
// channel opens, negotiation fails, or ctx is done. On success the returned
// Transport is already in StateConnected and listener.OnConnected has NOT
// yet been called (the caller's Engine.Start drives that the same way it
// does for the WebSocket variants, to keep a single connect-then-listen
// contract across all three variants).
func DialWebRTC(ctx context.Context, signalingURL, remoteID string, listener Listener, logger *log.Logger) (*WebRTCTransport, error) {
	if logger == nil {
		logger = log.Default()
	}
	if !signaling.ValidateRemoteID(remoteID) {
		return nil, fmt.Errorf("remote id must be 26 upper-case letters or digits")
	}

	glue := &signalingGlue{remoteID: remoteID, logger: logger, listener: listener, done: make(chan struct{})}
	client := signaling.New(signalingURL, glue, logger)
	glue.client = client

	if err := client.Connect(remoteID); err != nil {
		return nil, fmt.Errorf("webrtc dial: %w", err)
	}

	select {
	case <-glue.done:
		client.Close()
		if glue.result.err != nil {
			return nil, glue.result.err
		}
		return glue.result.transport, nil
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}
}
