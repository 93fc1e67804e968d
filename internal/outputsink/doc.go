// Package outputsink provides deadline-aware audio output adapters behind a
// single Sink contract: Configure, Push, Pause, Resume, Flush, LatencyFloor.
// MalgoSink is the default for 24-bit formats; OtoSink is a 16-bit-only
// reference adapter kept for platforms without miniaudio support.
package outputsink
