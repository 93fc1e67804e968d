// Package decode provides a pluggable decoder pipeline: a Codec interface
// plus synchronous PCM, FLAC, and Opus decoders (and an AAC stub), all
// producing interleaved int32 samples in 24-bit range.
package decode
