// ABOUTME: WebSocket signaling client for WebRTC negotiation against a fixed signaling endpoint
// ABOUTME: Validates the remote id, merges server-provided ICE servers with a baked-in STUN fallback
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

var remoteIDPattern = regexp.MustCompile(`^[A-Z0-9]{26}$`)

// ValidateRemoteID reports whether id is a well-formed 26-character
// upper-case alphanumeric remote identifier.
func ValidateRemoteID(id string) bool {
	return remoteIDPattern.MatchString(id)
}

// defaultSTUNServers is the baked-in fallback used when the signaling
// server's "connected" message carries no ICE servers of its own.
var defaultSTUNServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
	{URLs: []string{"stun:stun2.l.google.com:19302"}},
	{URLs: []string{"stun:stun.cloudflare.com:3478"}},
}

// outgoing envelope shapes.
type connectRequestMsg struct {
	Type     string `json:"type"`
	RemoteID string `json:"remoteId"`
}

type offerData struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type offerMsg struct {
	Type      string    `json:"type"`
	RemoteID  string    `json:"remoteId"`
	SessionID string    `json:"sessionId"`
	Data      offerData `json:"data"`
}

type candidateData struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

type iceCandidateMsg struct {
	Type      string        `json:"type"`
	RemoteID  string        `json:"remoteId"`
	SessionID string        `json:"sessionId"`
	Data      candidateData `json:"data"`
}

// incoming envelope shapes, parsed permissively.
type incomingEnvelope struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"sessionId"`
	ICEServers []iceServerWire   `json:"iceServers"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error"`
	Message    string            `json:"message"`
}

type iceServerWire struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

type answerDataWire struct {
	SDP string `json:"sdp"`
}

// Listener receives signaling lifecycle events.
type Listener interface {
	// OnConnected reports the session id and the merged ICE server list to
	// use for the subsequent peer connection.
	OnConnected(sessionID string, iceServers []webrtc.ICEServer)
	OnAnswer(sdp string)
	OnRemoteICECandidate(candidate webrtc.ICECandidateInit)
	OnPeerDisconnected()
	OnError(message string)
}

// Client is a WebSocket client to a fixed signaling endpoint, negotiating
// a WebRTC session on behalf of one remote id at a time.
type Client struct {
	url      string
	listener Listener
	logger   *log.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string

	cancel context.CancelFunc
}

// New creates a signaling client for the given fixed endpoint URL.
// logger may be nil, in which case log.Default() is used.
func New(url string, listener Listener, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{url: url, listener: listener, logger: logger}
}

// Connect dials the signaling endpoint and sends a connect-request for
// remoteID. remoteID must already be a valid 26-character upper-case
// alphanumeric identifier.
func (c *Client) Connect(remoteID string) error {
	if !ValidateRemoteID(remoteID) {
		return fmt.Errorf("signaling: remote id must be 26 upper-case letters or digits")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("signaling: dial: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	if err := conn.WriteJSON(connectRequestMsg{Type: "connect-request", RemoteID: remoteID}); err != nil {
		conn.Close()
		return fmt.Errorf("signaling: send connect-request: %w", err)
	}

	go c.readLoop(ctx)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Printf("signaling: read error: %v", err)
			c.listener.OnPeerDisconnected()
			return
		}

		var env incomingEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Printf("signaling: malformed message: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env incomingEnvelope) {
	switch env.Type {
	case "connected":
		c.mu.Lock()
		c.sessionID = env.SessionID
		c.mu.Unlock()
		c.listener.OnConnected(env.SessionID, mergeICEServers(env.ICEServers))

	case "answer":
		var d answerDataWire
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Printf("signaling: malformed answer data: %v", err)
			return
		}
		c.listener.OnAnswer(d.SDP)

	case "ice-candidate":
		var d candidateData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Printf("signaling: malformed ice-candidate data: %v", err)
			return
		}
		init := webrtc.ICECandidateInit{Candidate: d.Candidate}
		if d.SDPMid != nil {
			init.SDPMid = d.SDPMid
		}
		if d.SDPMLineIndex != nil {
			init.SDPMLineIndex = d.SDPMLineIndex
		}
		c.listener.OnRemoteICECandidate(init)

	case "peer-disconnected":
		c.listener.OnPeerDisconnected()

	case "error":
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		c.listener.OnError(msg)

	default:
		c.logger.Printf("signaling: unknown message type %q", env.Type)
	}
}

// mergeICEServers merges the server-provided list uniquely (by first URL)
// with the baked-in STUN fallback, or returns the fallback alone when the
// server list is absent or empty.
func mergeICEServers(wire []iceServerWire) []webrtc.ICEServer {
	if len(wire) == 0 {
		return append([]webrtc.ICEServer(nil), defaultSTUNServers...)
	}

	seen := make(map[string]bool)
	merged := make([]webrtc.ICEServer, 0, len(wire)+len(defaultSTUNServers))
	for _, w := range wire {
		if len(w.URLs) == 0 {
			continue
		}
		key := w.URLs[0]
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, webrtc.ICEServer{
			URLs:       w.URLs,
			Username:   w.Username,
			Credential: w.Credential,
		})
	}
	for _, s := range defaultSTUNServers {
		key := s.URLs[0]
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, s)
	}
	return merged
}

// SendOffer forwards a local SDP offer to the remote peer via signaling.
func (c *Client) SendOffer(remoteID, sdp string) error {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling: not connected")
	}
	return conn.WriteJSON(offerMsg{
		Type:      "offer",
		RemoteID:  remoteID,
		SessionID: sessionID,
		Data:      offerData{SDP: sdp, Type: "offer"},
	})
}

// SendICECandidate forwards a local trickle ICE candidate.
func (c *Client) SendICECandidate(remoteID string, candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling: not connected")
	}

	var mid *string
	var mLineIndex *uint16
	if candidate.SDPMid != nil {
		mid = candidate.SDPMid
	}
	if candidate.SDPMLineIndex != nil {
		mLineIndex = candidate.SDPMLineIndex
	}

	return conn.WriteJSON(iceCandidateMsg{
		Type:      "ice-candidate",
		RemoteID:  remoteID,
		SessionID: sessionID,
		Data: candidateData{
			Candidate:     candidate.Candidate,
			SDPMid:        mid,
			SDPMLineIndex: mLineIndex,
		},
	})
}

// Close tears down the signaling connection.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(500 * time.Millisecond)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(1000, ""), deadline)
		_ = conn.Close()
	}
}
