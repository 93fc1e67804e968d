// ABOUTME: Text-message envelope dispatch and binary audio-frame routing
package session

import (
	"github.com/sendspin-audio/client-go/internal/errkind"
	"github.com/sendspin-audio/client-go/internal/protocol"
)

func newProtocolError(msg string) error {
	return &wrappedError{msg: msg, kind: errkind.ProtocolError}
}

// wrappedError lets handlers attach a human-readable message to an
// errkind sentinel without pulling in fmt.Errorf at every call site.
type wrappedError struct {
	msg  string
	kind error
}

func (w *wrappedError) Error() string { return w.msg + ": " + w.kind.Error() }
func (w *wrappedError) Unwrap() error { return w.kind }

func (e *Engine) handleText(data []byte) {
	msg, err := protocol.DecodeEnvelope(data)
	if err != nil {
		e.listener.OnError(newProtocolError(err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeServerHello:
		var hello protocol.ServerHello
		if err := protocol.DecodePayload(msg, &hello); err != nil {
			e.listener.OnError(newProtocolError("malformed server/hello: " + err.Error()))
			return
		}
		if hello.ServerID == "" {
			e.listener.OnError(newProtocolError("server/hello missing required server_id"))
			return
		}
		e.handleServerHello(hello)

	case protocol.TypeServerTime:
		var st protocol.ServerTime
		if err := protocol.DecodePayload(msg, &st); err != nil {
			e.logger.Printf("session: malformed server/time: %v", err)
			return
		}
		e.handleServerTime(st)

	case protocol.TypeServerState:
		var ss protocol.ServerState
		if err := protocol.DecodePayload(msg, &ss); err != nil {
			e.logger.Printf("session: malformed server/state: %v", err)
			return
		}
		e.handleServerState(ss)

	case protocol.TypeStreamStart:
		var start protocol.StreamStart
		if err := protocol.DecodePayload(msg, &start); err != nil {
			e.listener.OnError(newProtocolError("malformed stream/start: " + err.Error()))
			return
		}
		e.handleStreamStart(start)

	case protocol.TypeStreamEnd:
		e.handleStreamEnd()

	case protocol.TypeStreamClear:
		e.handleStreamClear()

	case protocol.TypeServerCommand:
		var cmd protocol.ServerCommand
		if err := protocol.DecodePayload(msg, &cmd); err != nil {
			e.logger.Printf("session: malformed server/command: %v", err)
			return
		}
		e.handleServerCommand(cmd)

	case protocol.TypeGroupUpdate:
		var gu protocol.GroupUpdate
		if err := protocol.DecodePayload(msg, &gu); err != nil {
			e.logger.Printf("session: malformed group/update: %v", err)
			return
		}
		e.listener.OnGroupUpdate(gu)

	case protocol.TypeClientSyncOffs:
		var so protocol.SyncOffset
		if err := protocol.DecodePayload(msg, &so); err != nil {
			e.logger.Printf("session: malformed client/sync_offset: %v", err)
			return
		}
		e.handleSyncOffset(so)

	default:
		e.logger.Printf("session: unknown message type %q, dropped", msg.Type)
	}
}

func (e *Engine) handleBinary(data []byte) {
	frame, err := protocol.ParseBinaryFrame(data)
	if err != nil {
		e.listener.OnError(newProtocolError(err.Error()))
		return
	}

	if !protocol.IsKnownFrameType(frame.Type) {
		e.logger.Printf("session: unknown binary frame type %d, dropped", frame.Type)
		return
	}

	if frame.Type == protocol.FrameTypeAudio {
		e.handleAudioFrame(frame)
		return
	}

	// Artwork and visualizer frames are passed through as opaque bytes;
	// decoding them beyond passthrough is out of scope for this engine.
	e.listener.OnAuxFrame(frame.Type, frame.Timestamp, frame.Payload)
}

// handleSyncOffset routes a server-pushed client/sync_offset out through the
// listener unconditionally, and additionally applies it to this client's own
// static delay only when player_id names this client. sync_offset is a
// per-player correction broadcast to a group, not a global clock nudge, and
// must not clobber a host-configured static_delay_ms meant for a different
// player.
func (e *Engine) handleSyncOffset(so protocol.SyncOffset) {
	e.listener.OnSyncOffset(so.PlayerID, so.OffsetMs, so.Source)
	if so.PlayerID != "" && so.PlayerID != e.cfg.ClientID {
		return
	}
	e.filter.SetStaticDelay(float64(so.OffsetMs))
}
