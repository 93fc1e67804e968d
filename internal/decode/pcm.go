// ABOUTME: PCM passthrough codec: 16-bit and 24-bit little-endian frames to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/sendspin-audio/client-go/internal/audio"
)

// PCMCodec decodes raw PCM, the identity case of spec §3's decoded-buffer
// contract: no codec header, no internal state beyond the negotiated bit
// depth.
type PCMCodec struct {
	bitDepth   int
	configured bool
}

func (d *PCMCodec) Configure(sampleRate, channels, bitDepth int, codecHeader []byte) error {
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("pcm: unsupported bit depth %d (supported: 16, 24)", bitDepth)
	}
	d.bitDepth = bitDepth
	d.configured = true
	return nil
}

func (d *PCMCodec) IsConfigured() bool { return d.configured }

func (d *PCMCodec) Decode(data []byte) ([]int32, error) {
	if !d.configured {
		return nil, fmt.Errorf("pcm: decode before configure")
	}
	if d.bitDepth == 24 {
		n := len(data) / 3
		samples := make([]int32, n)
		for i := 0; i < n; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
		return samples, nil
	}
	n := len(data) / 2
	samples := make([]int32, n)
	for i := 0; i < n; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	return samples, nil
}

// Flush is a no-op: PCM carries no decoder state to discard.
func (d *PCMCodec) Flush() error { return nil }

func (d *PCMCodec) Release() error {
	d.configured = false
	return nil
}
