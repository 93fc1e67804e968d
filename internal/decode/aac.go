// ABOUTME: AAC codec stub: no Go AAC decoding library exists in this pack or the wider ecosystem surveyed for it
package decode

import (
	"fmt"

	"github.com/sendspin-audio/client-go/internal/errkind"
)

// AACCodec satisfies Codec so "aac" is a recognized entry in codec_preference
// and stream/start negotiation, but Decode always fails: every decoder here
// wraps a real third-party library (mewkiz/flac, hraban/opus) except this
// one, since no such Go library was found. Configure still validates and
// succeeds so the failure is reported per-frame through DecoderError
// (fatal to the current stream, not to configuration) rather than refusing
// the codec outright at negotiation time.
type AACCodec struct {
	configured bool
}

func (d *AACCodec) Configure(sampleRate, channels, bitDepth int, codecHeader []byte) error {
	d.configured = true
	return nil
}

func (d *AACCodec) IsConfigured() bool { return d.configured }

func (d *AACCodec) Decode(data []byte) ([]int32, error) {
	return nil, fmt.Errorf("%w: aac decoding is not available in this build", errkind.DecoderError)
}

func (d *AACCodec) Flush() error { return nil }

func (d *AACCodec) Release() error {
	d.configured = false
	return nil
}
