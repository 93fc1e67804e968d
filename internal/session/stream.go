// ABOUTME: stream/start, stream/end, stream/clear, and audio-frame decode+enqueue handling
package session

import (
	"github.com/sendspin-audio/client-go/internal/audio"
	"github.com/sendspin-audio/client-go/internal/protocol"
)

// handleStreamStart captures the negotiated audio format, reconfigures the
// decoder pipeline (tearing down any previous codec), and transitions to
// stream_active.
func (e *Engine) handleStreamStart(start protocol.StreamStart) {
	if start.Player == nil {
		e.listener.OnError(newProtocolError("stream/start missing player format"))
		return
	}

	header, err := decodeCodecHeader(start.Player.CodecHeader)
	if err != nil {
		e.listener.OnError(newProtocolError("stream/start codec_header is not valid base64: " + err.Error()))
		return
	}

	format := audio.Format{
		Codec:       start.Player.Codec,
		SampleRate:  start.Player.SampleRate,
		Channels:    start.Player.Channels,
		BitDepth:    start.Player.BitDepth,
		CodecHeader: header,
	}

	if err := e.decoder.Configure(format); err != nil {
		e.listener.OnError(err)
		return
	}
	if err := e.sink.Configure(format); err != nil {
		e.listener.OnError(err)
		return
	}

	e.mu.Lock()
	e.format = format
	e.streamed = true
	e.mu.Unlock()

	e.setState(StateStreamActive)
}

// handleStreamEnd drains the decoder and marks no-stream, returning to
// connected without disturbing the scheduler's already-queued audio.
func (e *Engine) handleStreamEnd() {
	_ = e.decoder.Flush()

	e.mu.Lock()
	e.streamed = false
	e.mu.Unlock()

	if e.State() == StateStreamActive {
		e.setState(StateConnected)
	}
}

// handleStreamClear additionally flushes the scheduler queue and discards
// the time filter: the next stream is a new logical session.
func (e *Engine) handleStreamClear() {
	_ = e.decoder.Flush()
	e.sched.Clear()
	e.filter.ResetAndDiscard()

	e.mu.Lock()
	e.streamed = false
	e.mu.Unlock()

	if e.State() == StateStreamActive {
		e.setState(StateConnected)
	}
}

// handleAudioFrame decodes one tag=4 binary frame and enqueues the result
// into the scheduler. A decode failure aborts the current stream but keeps
// the session otherwise connected, awaiting a fresh stream/start.
func (e *Engine) handleAudioFrame(frame protocol.BinaryFrame) {
	if e.State() != StateStreamActive {
		return
	}

	samples, err := e.decoder.Decode(frame.Payload)
	if err != nil {
		e.listener.OnError(err)
		e.handleStreamEnd()
		return
	}

	e.sched.Push(audio.Buffer{
		ServerTimestampUs: frame.Timestamp,
		Samples:           samples,
		Format:             e.decoder.Format(),
	})
}
