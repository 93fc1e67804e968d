// ABOUTME: Opus codec, decoding via hraban/opus's libopus binding
package decode

import (
	"fmt"

	"github.com/sendspin-audio/client-go/internal/audio"
	opus "gopkg.in/hraban/opus.v2"
)

// OpusCodec wraps a libopus decoder instance. Opus's ID header (RFC 7845
// §5.1) is parsed by libopus internally from the negotiated sample
// rate/channel count alone, so codecHeader is accepted but unused —
// Configure does not store it.
type OpusCodec struct {
	decoder    *opus.Decoder
	sampleRate int
	channels   int
	configured bool
}

func (d *OpusCodec) Configure(sampleRate, channels, bitDepth int, codecHeader []byte) error {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return fmt.Errorf("opus: create decoder: %w", err)
	}
	d.decoder = dec
	d.sampleRate = sampleRate
	d.channels = channels
	d.configured = true
	return nil
}

func (d *OpusCodec) IsConfigured() bool { return d.configured }

func (d *OpusCodec) Decode(data []byte) ([]int32, error) {
	if !d.configured {
		return nil, fmt.Errorf("opus: decode before configure")
	}
	// 5760 samples/channel is libopus's maximum frame size at 48kHz (120ms).
	pcm16 := make([]int16, 5760*d.channels)

	n, err := d.decoder.Decode(data, pcm16)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}

	actual := n * d.channels
	pcm32 := make([]int32, actual)
	for i := 0; i < actual; i++ {
		pcm32[i] = audio.SampleFromInt16(pcm16[i])
	}
	return pcm32, nil
}

// Flush drops the current decoder and recreates it, which is libopus's own
// recommendation for clearing its internal PLC/history state across a
// discontinuity (stream/clear), since the binding exposes no reset call.
func (d *OpusCodec) Flush() error {
	if !d.configured {
		return nil
	}
	dec, err := opus.NewDecoder(d.sampleRate, d.channels)
	if err != nil {
		return fmt.Errorf("opus: flush: recreate decoder: %w", err)
	}
	d.decoder = dec
	return nil
}

func (d *OpusCodec) Release() error {
	d.decoder = nil
	d.configured = false
	return nil
}
