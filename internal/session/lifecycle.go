// ABOUTME: Closing, failure, and user-initiated disconnect handling
package session

import (
	"fmt"

	"github.com/sendspin-audio/client-go/internal/errkind"
	"github.com/sendspin-audio/client-go/internal/protocol"
)

func newTransportError(msg string, recoverable bool) error {
	kind := errkind.TransportRecoverable
	if !recoverable {
		kind = errkind.TransportFatal
	}
	return &wrappedError{msg: msg, kind: kind}
}

// failSession transitions to Failed and tears down the engine's context,
// which in turn stops the scheduler, the audio drain loop, and (after this
// event finishes processing) the worker itself.
func (e *Engine) failSession() {
	e.stopHandshakeTimer()
	e.burst.Stop()
	e.setState(StateFailed)
	if e.cancel != nil {
		e.cancel()
	}
}

// handleClosed processes a transport close. A close observed while the
// engine itself requested it (Closing, via Disconnect) is the expected end
// of a clean shutdown; any other close is an unexpected drop and fails the
// session so the supervisor can decide whether to reconnect.
func (e *Engine) handleClosed(code int, reason string) {
	if e.State() == StateClosing {
		e.stopHandshakeTimer()
		e.burst.Stop()
		if e.cancel != nil {
			e.cancel()
		}
		return
	}
	e.listener.OnError(newTransportError(fmt.Sprintf("transport closed unexpectedly (%d): %s", code, reason), true))
	e.failSession()
}

// handleFailure processes a transport-reported failure. recoverable mirrors
// transport.ClassifyError's verdict, so the supervisor can tell a retry-same-
// variant failure from a rotate-to-next-variant one.
func (e *Engine) handleFailure(err error, recoverable bool) {
	e.listener.OnError(newTransportError(err.Error(), recoverable))
	e.failSession()
}

// handleDisconnect performs the user-initiated shutdown sequence: send
// client/goodbye, stop the burst manager, freeze the time filter if it is
// ready (copying its estimate into the filter's frozen slot; the engine
// never calls Thaw), then close the transport.
func (e *Engine) handleDisconnect(reason string) {
	switch e.State() {
	case StateClosing, StateFailed, StateIdle:
		return
	}
	e.setState(StateClosing)
	e.sendMessage(protocol.TypeClientGoodbye, protocol.ClientGoodbye{Reason: reason})
	e.burst.Stop()
	if e.filter.Ready() {
		e.filter.Freeze()
	}
	e.transport.Close(1000, reason)
}

// handleServerState applies a server/state push: metadata snapshot always
// replaces the prior one, since the server resends the whole thing on every
// change rather than deltas.
func (e *Engine) handleServerState(ss protocol.ServerState) {
	if ss.Metadata == nil {
		return
	}
	m := Metadata{
		Timestamp:   ss.Metadata.Timestamp,
		Title:       ss.Metadata.Title,
		Artist:      ss.Metadata.Artist,
		AlbumArtist: ss.Metadata.AlbumArtist,
		Album:       ss.Metadata.Album,
		ArtworkURL:  ss.Metadata.ArtworkURL,
		Year:        ss.Metadata.Year,
		Track:       ss.Metadata.Track,
	}
	if ss.Metadata.Progress != nil {
		m.TrackProgressMs = ss.Metadata.Progress.TrackProgressMs
		m.TrackDurationMs = ss.Metadata.Progress.TrackDurationMs
		m.PlaybackSpeed = ss.Metadata.Progress.PlaybackSpeed
	}

	e.mu.Lock()
	e.metadata = m
	e.mu.Unlock()

	e.listener.OnMetadata(m)
}

// handleServerCommand applies a role-specific command pushed by the server,
// e.g. a group volume/mute change initiated by another controller.
func (e *Engine) handleServerCommand(cmd protocol.ServerCommand) {
	if cmd.Player == nil {
		return
	}
	switch cmd.Player.Command {
	case "volume":
		e.handleSetVolume(cmd.Player.Volume)
	case "mute":
		e.handleSetMuted(cmd.Player.Mute)
	default:
		e.logger.Printf("session: unknown server/command player command %q, dropped", cmd.Player.Command)
	}
}

func (e *Engine) handleSetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	e.mu.Lock()
	e.player.Volume = volume
	player := e.player
	e.mu.Unlock()
	e.reportPlayerState(player)
}

func (e *Engine) handleSetMuted(muted bool) {
	e.mu.Lock()
	e.player.Muted = muted
	player := e.player
	e.mu.Unlock()
	e.reportPlayerState(player)
}

// reportPlayerState pushes the new local player condition to the server
// (client/state) and notifies the listener, matching the handshake's own
// client/state send.
func (e *Engine) reportPlayerState(player PlayerState) {
	if s := e.State(); s == StateConnected || s == StateStreamActive {
		e.sendMessage(protocol.TypeClientState, protocol.ClientState{
			State:  "synchronized",
			Player: protocol.ClientPlayerState{Volume: player.Volume, Muted: player.Muted},
		})
	}
	e.listener.OnPlayerState(player)
}
