package session

import (
	"context"
	"time"

	"github.com/sendspin-audio/client-go/internal/protocol"
)

func (e *Engine) handleConnected() {
	e.setState(StateHandshaking)

	hello := protocol.ClientHello{
		ClientID:       e.cfg.ClientID,
		Name:           e.cfg.Name,
		Version:        1,
		SupportedRoles: e.cfg.SupportedRoles,
		DeviceInfo: &protocol.DeviceInfo{
			ProductName:     e.cfg.ProductName,
			Manufacturer:    e.cfg.Manufacturer,
			SoftwareVersion: e.cfg.SoftwareVersion,
		},
		PlayerSupport: &protocol.PlayerSupport{
			SupportedFormats:  e.cfg.SupportedFormats,
			BufferCapacity:    e.cfg.BufferCapacity,
			SupportedCommands: e.cfg.SupportedCommands,
		},
	}
	e.sendMessage(protocol.TypeClientHello, hello)

	e.startHandshakeTimer()
}

func (e *Engine) startHandshakeTimer() {
	ctx, cancel := context.WithCancel(e.ctx)
	e.handshakeCancel = cancel
	go func() {
		select {
		case <-time.After(handshakeTimeout):
			e.enqueue(handshakeTimeoutEvent{})
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) stopHandshakeTimer() {
	if e.handshakeCancel != nil {
		e.handshakeCancel()
		e.handshakeCancel = nil
	}
}

func (e *Engine) handleHandshakeTimeout() {
	if e.State() != StateHandshaking {
		return
	}
	e.listener.OnError(newProtocolError("server/hello not received within handshake timeout"))
	e.failSession()
}

// handleServerHello completes the handshake: sends the initial
// client/state, transitions to connected, and starts the burst manager.
func (e *Engine) handleServerHello(hello protocol.ServerHello) {
	if e.State() != StateHandshaking {
		return
	}
	e.stopHandshakeTimer()

	e.listener.OnServerHello(hello)

	e.mu.Lock()
	player := e.player
	e.mu.Unlock()

	e.sendMessage(protocol.TypeClientState, protocol.ClientState{
		State:  "synchronized",
		Player: protocol.ClientPlayerState{Volume: player.Volume, Muted: player.Muted},
	})

	e.setState(StateConnected)
	e.startTimeSync()
}

// startTimeSync binds BurstSyncManager to this engine's send-client/time
// function and starts it, per spec §4.6 ("as soon as connected is
// entered, start BurstSyncManager").
func (e *Engine) startTimeSync() {
	e.burst.Start(e.ctx)
}

func (e *Engine) sendClientTime(t1Us int64) error {
	e.sendMessage(protocol.TypeClientTime, protocol.ClientTime{ClientTransmitted: t1Us})
	return nil
}

func (e *Engine) handleServerTime(st protocol.ServerTime) {
	e.burst.ProcessTimeResponse(st.ClientTransmitted, st.ServerReceived, st.ServerTransmitted)
}
