// ABOUTME: Local and authenticated-proxy WebSocket transport variants
// ABOUTME: Built on gorilla/websocket, following the teacher's dial/read-loop/Close idiom
package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	connectTimeout    = 5 * time.Second
	idlePingInterval  = 30 * time.Second
	highPowerPingRate = 15 * time.Second
)

// WebSocketConfig configures either the local or the authenticated-proxy
// WebSocket variant. URL determines which: a "ws://"/"http://" URL dials
// directly; an "https://" URL is translated to "wss://" and, when Bearer
// or Username is set, carries an Authorization header on the upgrade.
type WebSocketConfig struct {
	URL      string
	Bearer   string
	Username string
	Password string

	// HighPower requests the shorter 15s idle-ping interval.
	HighPower bool
}

func (c WebSocketConfig) resolvedURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse transport url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c WebSocketConfig) authHeader() http.Header {
	if c.Bearer != "" {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+c.Bearer)
		return h
	}
	if c.Username != "" {
		h := http.Header{}
		h.Set("Authorization", "Basic "+basicAuth(c.Username, c.Password))
		return h
	}
	return nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// WebSocketTransport implements Transport over a gorilla/websocket
// connection, for both the local and authenticated-proxy variants — they
// differ only in WebSocketConfig, not in behavior.
type WebSocketTransport struct {
	cfg      WebSocketConfig
	listener Listener
	logger   *log.Logger

	mu    sync.RWMutex
	conn  *websocket.Conn
	state State

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebSocketTransport constructs either variant A (local) or variant B
// (authenticated proxy), depending entirely on cfg.URL's scheme and
// whether auth credentials are set.
func NewWebSocketTransport(cfg WebSocketConfig, listener Listener, logger *log.Logger) *WebSocketTransport {
	if logger == nil {
		logger = log.Default()
	}
	return &WebSocketTransport{cfg: cfg, listener: listener, logger: logger, state: StateDisconnected}
}

func (t *WebSocketTransport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *WebSocketTransport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Connect dials with a 5s timeout and, on success, starts the read loop
// and idle-ping ticker.
func (t *WebSocketTransport) Connect() error {
	t.setState(StateConnecting)

	target, err := t.cfg.resolvedURL()
	if err != nil {
		t.setState(StateFailed)
		kind, recoverable := ClassifyError(err)
		t.listener.OnFailure(kind, recoverable)
		return kind
	}

	dialer := &websocket.Dialer{HandshakeTimeout: connectTimeout}

	conn, resp, err := dialer.Dial(target, t.cfg.authHeader())
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			err = fmt.Errorf("%s: %w", resp.Status, err)
		}
		t.setState(StateFailed)
		kind, recoverable := ClassifyError(err)
		t.listener.OnFailure(kind, recoverable)
		return kind
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.ctx = ctx
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = StateConnected
	t.mu.Unlock()

	go t.readLoop()
	go t.pingLoop()

	t.listener.OnConnected()
	return nil
}

func (t *WebSocketTransport) pingInterval() time.Duration {
	if t.cfg.HighPower {
		return highPowerPingRate
	}
	return idlePingInterval
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.mu.RLock()
			conn := t.conn
			t.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.logger.Printf("transport: ping failed: %v", err)
			}
		}
	}
}

// readLoop has no socket read timeout, matching variant A's "reads have
// no socket timeout" contract; connection loss surfaces via ReadMessage's
// own error return.
func (t *WebSocketTransport) readLoop() {
	defer close(t.done)
	for {
		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
			}
			t.setState(StateFailed)
			kind, recoverable := ClassifyError(err)
			t.listener.OnFailure(kind, recoverable)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			t.listener.OnText(data)
		case websocket.BinaryMessage:
			t.listener.OnBinary(data)
		}
	}
}

func (t *WebSocketTransport) SendText(data []byte) bool {
	t.mu.RLock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.RUnlock()
	if !connected || conn == nil {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}

func (t *WebSocketTransport) SendBinary(data []byte) bool {
	t.mu.RLock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.RUnlock()
	if !connected || conn == nil {
		return false
	}
	return conn.WriteMessage(websocket.BinaryMessage, data) == nil
}

// Close sends a best-effort close frame and tears down the read loop, but
// keeps the dialer/transport-level resources until Destroy.
func (t *WebSocketTransport) Close(code int, reason string) {
	t.mu.RLock()
	conn := t.conn
	cancel := t.cancel
	done := t.done
	t.mu.RUnlock()

	if conn == nil {
		return
	}
	t.listener.OnClosing(code, reason)

	deadline := time.Now().Add(1 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)

	if cancel != nil {
		cancel()
	}
	_ = conn.Close()
	if done != nil {
		<-done
	}

	t.setState(StateClosed)
	t.listener.OnClosed(code, reason)
}

// Destroy releases every resource Close does, guaranteeing idempotence —
// the supervisor may call Destroy on a transport Close already tore down
// during variant rotation.
func (t *WebSocketTransport) Destroy() {
	t.mu.RLock()
	conn := t.conn
	state := t.state
	t.mu.RUnlock()

	if state != StateClosed && state != StateDisconnected {
		t.Close(1000, "destroy")
	}
	if conn != nil {
		_ = conn.Close()
	}
}
