// ABOUTME: DecoderPipeline: owns the live Codec for the current stream, reconfigured on every stream/start
// ABOUTME: Every call here runs on the dedicated audio worker goroutine (spec §5); decode never blocks on I/O
package decode

import (
	"fmt"

	"github.com/sendspin-audio/client-go/internal/audio"
)

// Pipeline owns at most one configured Codec at a time. It is not safe for
// concurrent use: the session engine hands it binary audio frames in
// arrival order from a single audio worker goroutine.
type Pipeline struct {
	codec  Codec
	format audio.Format
}

// NewPipeline returns an empty pipeline; Configure must be called once a
// stream/start message names a format before Decode is usable.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Configure tears down any previously-configured codec and builds a fresh
// one for format, matching spec §4.6's "reconfigures the DecoderPipeline
// (tearing down any previous decoder)" contract. On Configure failure, the
// partially-built codec is released and the error surfaced; the pipeline
// is left unconfigured.
func (p *Pipeline) Configure(format audio.Format) error {
	if p.codec != nil {
		_ = p.codec.Release()
		p.codec = nil
	}

	codec, err := NewCodec(format)
	if err != nil {
		return fmt.Errorf("decode pipeline: %w", err)
	}
	if err := codec.Configure(format.SampleRate, format.Channels, format.BitDepth, format.CodecHeader); err != nil {
		_ = codec.Release()
		return fmt.Errorf("decode pipeline: configure %s: %w", format.Codec, err)
	}

	p.codec = codec
	p.format = format
	return nil
}

// IsConfigured reports whether Configure has succeeded and Release/a
// failed re-Configure hasn't since torn it down.
func (p *Pipeline) IsConfigured() bool {
	return p.codec != nil && p.codec.IsConfigured()
}

// Decode converts one compressed audio-tagged binary frame's payload to
// PCM samples. A decode failure here is fatal to the current stream per
// spec §4.7/§7: the caller aborts stream_active back toward connected
// rather than retrying, since a stateful codec (Opus) that failed mid-
// stream cannot be trusted to resynchronize on the next frame.
func (p *Pipeline) Decode(compressed []byte) ([]int32, error) {
	if p.codec == nil {
		return nil, fmt.Errorf("decode pipeline: no codec configured")
	}
	return p.codec.Decode(compressed)
}

// Format returns the format passed to the last successful Configure.
func (p *Pipeline) Format() audio.Format {
	return p.format
}

// Flush discards buffered decoder state for stream/end, without tearing
// the codec down — a fresh stream/start may follow with the same format.
func (p *Pipeline) Flush() error {
	if p.codec == nil {
		return nil
	}
	return p.codec.Flush()
}

// Release tears down the current codec, leaving the pipeline unconfigured
// until the next Configure. stream/clear does not use it; it flushes.
func (p *Pipeline) Release() error {
	if p.codec == nil {
		return nil
	}
	err := p.codec.Release()
	p.codec = nil
	return err
}
