// ABOUTME: Codec interface shared by every per-codec decoder
// ABOUTME: Configure/Decode/Flush/Release/IsConfigured mirrors a synchronous MediaCodec-style contract (spec §4.7)
package decode

import (
	"fmt"

	"github.com/sendspin-audio/client-go/internal/audio"
	"github.com/sendspin-audio/client-go/internal/errkind"
)

// Codec decodes one compressed-audio format to PCM. A Codec instance is
// configured once per stream/start and torn down on the next stream/start
// or on session close; DecoderPipeline owns exactly one live instance at a
// time, driven from the single audio worker goroutine (spec §5).
type Codec interface {
	// Configure prepares the codec for a negotiated format. codecHeader is
	// the optional opaque per-codec header (FLAC STREAMINFO, Opus ID
	// header, AAC AudioSpecificConfig); nil when the codec needs none.
	Configure(sampleRate, channels, bitDepth int, codecHeader []byte) error

	// Decode converts one compressed frame's payload to interleaved int32
	// PCM samples (24-bit range). May return fewer or more samples than a
	// naive frame-count multiple — see audio.Buffer's deadline-inheritance
	// note.
	Decode(compressed []byte) ([]int32, error)

	// Flush discards any buffered/in-flight state without tearing down the
	// underlying codec instance, for stream/end.
	Flush() error

	// Release tears the codec down. Idempotent; Release errors are logged,
	// never surfaced, matching the base MediaCodec-like contract's
	// best-effort teardown.
	Release() error

	IsConfigured() bool
}

// NewCodec dispatches to the per-codec constructor named by format.Codec.
// Configure is not called here — DecoderPipeline calls it once construction
// succeeds, so a failed Configure can release a partially-built codec and
// surface the error per spec §4.7.
func NewCodec(format audio.Format) (Codec, error) {
	switch format.Codec {
	case "pcm":
		return &PCMCodec{}, nil
	case "opus":
		return &OpusCodec{}, nil
	case "flac":
		return &FLACCodec{}, nil
	case "aac":
		return &AACCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported codec %q", errkind.DecoderError, format.Codec)
	}
}
