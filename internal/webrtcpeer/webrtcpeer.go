// ABOUTME: WebRTC peer connection wrapper exposing a single reliable, ordered data channel
// ABOUTME: Negotiation (offer/answer/ICE) is driven externally by SignalingClient
package webrtcpeer

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// dataChannelLabel is the single channel this peer negotiates; the
// transport protocol multiplexes text/binary messages over it itself, so
// one ordered, reliable channel per connection is sufficient.
const dataChannelLabel = "resonate"

// Listener receives data-channel and connection lifecycle events.
type Listener interface {
	OnOpen()
	OnMessage(data []byte, isBinary bool)
	OnClose()
	OnFailure(err error)
}

// Peer wraps a pion PeerConnection plus its one data channel, and exposes
// just enough surface for a WebRTC Transport variant and a SignalingClient
// to drive negotiation without either depending on pion directly.
type Peer struct {
	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	listener Listener
	logger   *log.Logger

	onLocalICECandidate func(candidate webrtc.ICECandidateInit)
}

// New creates a PeerConnection configured with the given ICE servers and,
// if isOfferer is true, opens the data channel itself (the offering side
// creates the channel; the answering side receives it via OnDataChannel).
func New(iceServers []webrtc.ICEServer, isOfferer bool, listener Listener, logger *log.Logger) (*Peer, error) {
	if logger == nil {
		logger = log.Default()
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, listener: listener, logger: logger}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || p.onLocalICECandidate == nil {
			return
		}
		p.onLocalICECandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Printf("webrtcpeer: connection state %s", s)
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.listener.OnFailure(fmt.Errorf("peer connection state %s", s))
		}
	})

	if isOfferer {
		dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
		if err != nil {
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		p.bindDataChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			p.bindDataChannel(dc)
		})
	}

	return p, nil
}

func (p *Peer) bindDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.listener.OnOpen()
	})
	dc.OnClose(func() {
		p.listener.OnClose()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.listener.OnMessage(msg.Data, !msg.IsString)
	})
}

// OnLocalICECandidate registers the callback invoked whenever this peer
// generates a local ICE candidate to forward over signaling.
func (p *Peer) OnLocalICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.onLocalICECandidate = fn
}

// CreateOffer creates and sets the local offer description.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

// CreateAnswer sets the given remote offer and creates/sets the local answer.
func (p *Peer) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

// SetRemoteAnswer completes offerer-side negotiation with the remote answer.
func (p *Peer) SetRemoteAnswer(answer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// AddICECandidate adds a remote trickle ICE candidate.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// SendText and SendBinary return false if the data channel isn't open yet.
func (p *Peer) SendText(data []byte) bool {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return false
	}
	return dc.SendText(string(data)) == nil
}

func (p *Peer) SendBinary(data []byte) bool {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return false
	}
	return dc.Send(data) == nil
}

// Close tears down the data channel and peer connection.
func (p *Peer) Close() error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc != nil {
		_ = dc.Close()
	}
	return p.pc.Close()
}
