package outputsink

import (
	"time"

	"github.com/sendspin-audio/client-go/internal/audio"
)

// Sink is the contract the scheduler hands decoded PCM to. Push is
// non-blocking: a full sink rejects the buffer (accepted=false) rather than
// stalling the caller, and the scheduler's own overflow policy is what
// decides what gets dropped upstream of that.
type Sink interface {
	// Configure (re)opens the device for the given format. Safe to call
	// again with a new format; implementations reinitialize as needed.
	Configure(format audio.Format) error

	// Push offers one buffer's worth of interleaved PCM samples for a given
	// local playout deadline (microseconds, monotonic clock). Returns false
	// if the sink's internal buffer has no room.
	Push(deadlineUs int64, pcm []int32) (accepted bool)

	// Pause stops consuming queued audio without discarding it.
	Pause() error

	// Resume resumes consumption after Pause.
	Resume() error

	// Flush discards any buffered-but-not-yet-played audio.
	Flush() error

	// LatencyFloor is the minimum time between a buffer being handed to the
	// sink and it reaching the speaker. The scheduler uses this to decide
	// when a queued buffer counts as imminent.
	LatencyFloor() time.Duration

	// Close releases the underlying device.
	Close() error
}

// VolumeControl is implemented by sinks that support host-side gain and
// mute, independent of the negotiated PCM format.
type VolumeControl interface {
	SetVolume(volume int)
	SetMuted(muted bool)
}
