// ABOUTME: Binary audio-frame framing for the Sendspin wire protocol
// ABOUTME: 9-byte fixed header (type tag + big-endian microsecond timestamp) plus payload
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary frame type tags, per spec §3.
const (
	FrameTypeAudio       byte = 4
	FrameTypeArtwork0    byte = 8
	FrameTypeArtwork1    byte = 9
	FrameTypeArtwork2    byte = 10
	FrameTypeArtwork3    byte = 11
	FrameTypeVisualizer  byte = 16
	binaryFrameHeaderLen      = 9
)

// BinaryFrame is a parsed binary frame: a type tag, a server-domain
// microsecond timestamp, and an opaque payload.
type BinaryFrame struct {
	Type      byte
	Timestamp int64 // microseconds, server clock domain
	Payload   []byte
}

// ParseBinaryFrame decodes the 9-byte fixed header and splits off the
// payload. Frames shorter than the header are a protocol error.
func ParseBinaryFrame(data []byte) (BinaryFrame, error) {
	if len(data) < binaryFrameHeaderLen {
		return BinaryFrame{}, fmt.Errorf("binary frame too short: %d bytes (need >= %d)", len(data), binaryFrameHeaderLen)
	}

	return BinaryFrame{
		Type:      data[0],
		Timestamp: int64(binary.BigEndian.Uint64(data[1:9])),
		Payload:   data[9:],
	}, nil
}

// BuildBinaryFrame encodes a frame into wire bytes, the exact inverse of
// ParseBinaryFrame for any known type.
func BuildBinaryFrame(frameType byte, timestamp int64, payload []byte) []byte {
	out := make([]byte, binaryFrameHeaderLen+len(payload))
	out[0] = frameType
	binary.BigEndian.PutUint64(out[1:9], uint64(timestamp))
	copy(out[9:], payload)
	return out
}

// IsKnownFrameType reports whether a tag is one the client understands.
// Unknown tags are dropped by the caller with a log entry, not an error.
func IsKnownFrameType(t byte) bool {
	switch t {
	case FrameTypeAudio, FrameTypeArtwork0, FrameTypeArtwork1, FrameTypeArtwork2, FrameTypeArtwork3, FrameTypeVisualizer:
		return true
	default:
		return false
	}
}
