// ABOUTME: oto/v3-backed Sink, a 16-bit-only reference adapter for platforms without miniaudio
package outputsink

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sendspin-audio/client-go/internal/audio"
)

// otoLatencyFloor reflects oto's own internal player buffering, which this
// adapter cannot query directly.
const otoLatencyFloor = 50 * time.Millisecond

const otoFeedInterval = 10 * time.Millisecond

// OtoSink plays 16-bit PCM through oto. Unlike MalgoSink it has no
// device-driven pull callback, so a background goroutine drains the ring
// buffer into oto's streaming pipe on a fixed tick.
type OtoSink struct {
	ctx    context.Context
	cancel context.CancelFunc

	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	format audio.Format
	ready  bool
	paused bool

	volume int
	muted  bool

	ring *ringBuffer

	mu sync.Mutex
}

// NewOtoSink constructs an unconfigured sink at full, unmuted volume.
func NewOtoSink() *OtoSink {
	return &OtoSink{volume: 100}
}

func (o *OtoSink) Configure(format audio.Format) error {
	if format.BitDepth != 16 {
		return fmt.Errorf("outputsink: oto adapter only supports 16-bit PCM, got %d", format.BitDepth)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil && o.format.Codec == format.Codec && o.format.SampleRate == format.SampleRate &&
		o.format.Channels == format.Channels && o.format.BitDepth == format.BitDepth {
		return nil
	}
	if o.otoCtx != nil {
		// oto allows only one context per process; reuse it rather than
		// recreating, matching the format already negotiated.
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("outputsink: create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	capacitySamples := (format.SampleRate * format.Channels * ringBufferMs) / 1000
	o.ring = newRingBuffer(capacitySamples)

	o.ctx, o.cancel = context.WithCancel(context.Background())
	go o.feedLoop(o.ctx, format.Channels)

	o.ready = true
	return nil
}

func (o *OtoSink) Push(_ int64, pcm []int32) bool {
	o.mu.Lock()
	ready := o.ready
	volume, muted := o.volume, o.muted
	ring := o.ring
	o.mu.Unlock()

	if !ready {
		return false
	}
	if ring.Free() < len(pcm) {
		return false
	}
	ring.Write(applyVolume(pcm, volume, muted))
	return true
}

// feedLoop drains the ring buffer into oto's blocking pipe writer. Runs
// until ctx is cancelled by Close.
func (o *OtoSink) feedLoop(ctx context.Context, channels int) {
	ticker := time.NewTicker(otoFeedInterval)
	defer ticker.Stop()

	chunk := make([]int32, channels*1024)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			paused := o.paused
			ring := o.ring
			writer := o.pipeWriter
			o.mu.Unlock()
			if paused || ring == nil || writer == nil {
				continue
			}

			n := ring.Available()
			if n == 0 {
				continue
			}
			if n > len(chunk) {
				n = len(chunk)
			}
			samples := chunk[:n]
			ring.Read(samples)

			out := make([]byte, len(samples)*2)
			for i, s := range samples {
				binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(s)))
			}
			if _, err := writer.Write(out); err != nil {
				return
			}
		}
	}
}

func (o *OtoSink) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	return nil
}

func (o *OtoSink) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	return nil
}

func (o *OtoSink) Flush() error {
	o.mu.Lock()
	ring := o.ring
	o.mu.Unlock()
	if ring != nil {
		ring.Clear()
	}
	return nil
}

func (o *OtoSink) LatencyFloor() time.Duration {
	return otoLatencyFloor
}

func (o *OtoSink) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clampVolume(volume)
}

func (o *OtoSink) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}

func (o *OtoSink) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}
	return nil
}
