// ABOUTME: FLAC codec, decoding each frame by wrapping it with a synthetic STREAMINFO stream header for mewkiz/flac
package decode

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
)

// flacMagic and the metadata-block-header byte for a last (and only),
// STREAMINFO (type 0) block of the standard 34-byte length precede every
// synthetic single-frame stream this codec hands to mewkiz/flac.
var flacMagic = []byte("fLaC")

const streamInfoLen = 34

// FLACCodec decodes individual FLAC frames. The wire protocol delivers
// stream/start's codec_header as the bare STREAMINFO metadata block (no
// "fLaC" marker, no block header) and each subsequent binary frame as one
// compressed FLAC frame with no container around it; mewkiz/flac only
// parses whole streams, so Decode reconstructs a minimal one-frame stream
// for every call.
type FLACCodec struct {
	streamInfo []byte // the 34-byte STREAMINFO block, header-wrapped once
	channels   int
	bitDepth   int
	configured bool
}

func (d *FLACCodec) Configure(sampleRate, channels, bitDepth int, codecHeader []byte) error {
	if len(codecHeader) != streamInfoLen {
		return fmt.Errorf("flac: expected %d-byte STREAMINFO codec header, got %d", streamInfoLen, len(codecHeader))
	}

	header := make([]byte, 0, len(flacMagic)+4+streamInfoLen)
	header = append(header, flacMagic...)
	// Metadata block header: bit 7 = last-metadata-block, bits 6-0 = type
	// (0 = STREAMINFO); the following 3 bytes are the big-endian length.
	header = append(header, 0x80,
		byte(streamInfoLen>>16), byte(streamInfoLen>>8), byte(streamInfoLen))
	header = append(header, codecHeader...)

	d.streamInfo = header
	d.channels = channels
	d.bitDepth = bitDepth
	d.configured = true
	return nil
}

func (d *FLACCodec) IsConfigured() bool { return d.configured }

func (d *FLACCodec) Decode(data []byte) ([]int32, error) {
	if !d.configured {
		return nil, fmt.Errorf("flac: decode before configure")
	}

	synthetic := make([]byte, 0, len(d.streamInfo)+len(data))
	synthetic = append(synthetic, d.streamInfo...)
	synthetic = append(synthetic, data...)

	stream, err := flac.New(bytes.NewReader(synthetic))
	if err != nil {
		return nil, fmt.Errorf("flac: parse stream header: %w", err)
	}

	frame, err := stream.ParseNext()
	if err != nil {
		return nil, fmt.Errorf("flac: parse frame: %w", err)
	}

	blockSize := int(frame.BlockSize)
	samples := make([]int32, 0, blockSize*d.channels)

	for i := 0; i < blockSize; i++ {
		for ch := 0; ch < d.channels; ch++ {
			sample := frame.Subframes[ch].Samples[i]
			samples = append(samples, rescaleTo24Bit(sample, d.bitDepth))
		}
	}
	return samples, nil
}

// rescaleTo24Bit widens or narrows a FLAC sample (stored at its native bit
// depth) into the pipeline's 24-bit-range convention.
func rescaleTo24Bit(sample int32, bitDepth int) int32 {
	shift := bitDepth - 24
	switch {
	case shift == 0:
		return sample
	case shift > 0:
		return sample >> uint(shift)
	default:
		return sample << uint(-shift)
	}
}

// Flush is a no-op: each Decode call is already a fresh, self-contained
// stream with no carried decoder state.
func (d *FLACCodec) Flush() error { return nil }

func (d *FLACCodec) Release() error {
	d.streamInfo = nil
	d.configured = false
	return nil
}
